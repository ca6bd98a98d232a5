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

package repository

import (
	"context"

	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/tracking"
)

type authorRepository struct {
	*baseRepositoryImpl[domain.Author]
}

// NewAuthorRepository returns the author repository of scope.
func NewAuthorRepository(scope Scope) AuthorRepository {
	return &authorRepository{baseRepositoryImpl: newBase[domain.Author](scope)}
}

func (r *authorRepository) GetAuthorWithCourses(ctx context.Context, id int64) (*domain.Author, error) {
	if e, ok := r.scope.Tracker.Lookup(r.typ, id); ok && e.State() == tracking.Deleted {
		return nil, errs.NotFound(r.name, id)
	}
	items, err := r.Find("?TableAlias.id = ?", id).Include("Courses").Take(1).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NotFound(r.name, id)
	}
	author := items[0]
	if author.Courses == nil {
		author.Courses = []*domain.Course{}
	}
	return author, nil
}

func (r *authorRepository) GetAuthorsWithCourseCount(ctx context.Context) ([]AuthorCourseCount, error) {
	if err := r.scope.check("count courses"); err != nil {
		return nil, err
	}
	rows := make([]AuthorCourseCount, 0)
	err := r.scope.Session.Select(ctx, &store.QuerySpec{
		Model: (*domain.Author)(nil),
		Columns: []string{
			"author.id AS author_id",
			"author.name AS name",
			"COUNT(course.id) AS course_count",
		},
		Joins:   []string{"LEFT JOIN courses AS course ON course.author_id = author.id"},
		GroupBy: []string{"author.id", "author.name"},
		Orders:  []string{"author.name ASC", "author.id ASC"},
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
