/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package domain

import "github.com/tomoncle/pluto/database"

// Model priorities: referenced tables first, join and owned tables last.
const (
	PriorityAuthor    = 10
	PriorityTag       = 10
	PriorityCourse    = 20
	PriorityCover     = 30
	PriorityCourseTag = 40
)

func init() {
	Register(database.DefaultRegistry())
}

// Models returns the SQL models of the domain with their foreign keys.
func Models() []database.SQLModel {
	return []database.SQLModel{
		database.NewModelAdapter((*Author)(nil), PriorityAuthor),
		database.NewModelAdapter((*Tag)(nil), PriorityTag),
		database.NewModelAdapter((*Course)(nil), PriorityCourse, database.ForeignKeyConstraint{
			Table:           "courses",
			Column:          "author_id",
			ReferenceTable:  "authors",
			ReferenceColumn: "id",
			OnDelete:        "RESTRICT",
		}),
		database.NewModelAdapter((*Cover)(nil), PriorityCover, database.ForeignKeyConstraint{
			Table:           "covers",
			Column:          "id",
			ReferenceTable:  "courses",
			ReferenceColumn: "id",
			OnDelete:        "CASCADE",
		}),
		database.NewModelAdapter((*CourseTag)(nil), PriorityCourseTag,
			database.ForeignKeyConstraint{
				Table:           "course_tags",
				Column:          "course_id",
				ReferenceTable:  "courses",
				ReferenceColumn: "id",
				OnDelete:        "CASCADE",
			},
			database.ForeignKeyConstraint{
				Table:           "course_tags",
				Column:          "tag_id",
				ReferenceTable:  "tags",
				ReferenceColumn: "id",
				OnDelete:        "CASCADE",
			},
		),
	}
}

// Indexes returns the secondary indexes of the domain tables.
func Indexes() []database.Index {
	return []database.Index{
		{Name: "idx_courses_author_id", Table: "courses", Columns: []string{"author_id"}},
		{Name: "idx_course_tags_tag_id", Table: "course_tags", Columns: []string{"tag_id"}},
	}
}

// Register adds the domain models and indexes to registry.
func Register(registry database.ModelRegistry) {
	registry.Register(Models()...)
	registry.RegisterIndexes(Indexes()...)
}
