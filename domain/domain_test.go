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

import (
	"sort"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
)

func identity(v any) any { return v }

func validCourse() *Course {
	return &Course{
		Name:        "Clean Architecture",
		Description: "Layers and boundaries",
		FullPrice:   decimal.NewFromInt(10),
		Level:       Beginner,
		AuthorID:    1,
	}
}

func TestAuthorValidate(t *testing.T) {
	assert.NoError(t, (&Author{Name: "Mosh"}).Validate())

	err := (&Author{}).Validate()
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "name")

	assert.Error(t, (&Author{Name: strings.Repeat("x", 256)}).Validate())
}

func TestCourseValidate(t *testing.T) {
	assert.NoError(t, validCourse().Validate())

	c := validCourse()
	c.Name = ""
	c.Description = strings.Repeat("d", 2001)
	c.FullPrice = decimal.NewFromInt(-1)
	c.Level = CourseLevel(7)
	c.AuthorID = 0

	e := errs.Validation("course", c.Validate())
	assert.ErrorIs(t, e, errs.ErrValidation)
	assert.Equal(t, []string{"author_id", "description", "full_price", "level", "name"}, sortedKeys(e.Fields))
	assert.Equal(t, "must not be negative", e.Fields["full_price"])
}

func TestCourseAuthorIDOptionalWithAuthor(t *testing.T) {
	c := validCourse()
	c.AuthorID = 0
	c.Author = &Author{Name: "Mosh"}

	assert.NoError(t, c.Validate())
}

func TestTagValidate(t *testing.T) {
	assert.NoError(t, (&Tag{Name: "go"}).Validate())
	assert.Error(t, (&Tag{Name: ""}).Validate())
}

func TestLinkForeignKeys(t *testing.T) {
	staged := &Author{Name: "Mosh"}
	written := &Author{ID: 42, Name: "Mosh"}
	c := validCourse()
	c.Author = staged

	c.LinkForeignKeys(func(v any) any {
		if v == staged {
			return written
		}
		return v
	})
	assert.Equal(t, int64(42), c.AuthorID)

	unsaved := validCourse()
	unsaved.Author = &Author{Name: "new"}
	unsaved.LinkForeignKeys(identity)
	assert.Equal(t, int64(1), unsaved.AuthorID)
}

func TestCourseOwnedRows(t *testing.T) {
	c := validCourse()
	c.Tags = []*Tag{{ID: 3, Name: "go"}, {ID: 5, Name: "sql"}}

	rows, err := c.OwnedRows(9, identity)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, &Cover{ID: 9}, rows[0])
	assert.Equal(t, &CourseTag{CourseID: 9, TagID: 5}, rows[2])

	c.Tags = append(c.Tags, &Tag{Name: "transient"})
	_, err = c.OwnedRows(9, identity)
	assert.ErrorIs(t, err, errs.ErrValidation)

	c.AdoptOwned(9)
	require.NotNil(t, c.Cover)
	assert.Equal(t, int64(9), c.Cover.ID)
}

func TestConstraints(t *testing.T) {
	c := validCourse()
	rules := c.Constraints()
	require.Len(t, rules.References, 1)
	assert.Equal(t, int64(1), rules.References[0].ID)
	assert.Len(t, rules.Cascade, 2)
	assert.Empty(t, rules.Restrict)

	var _ store.Linker = c
	var _ store.Owner = c
	var _ store.Versioned = &Tag{}

	assert.Equal(t, "author_id", (&Author{}).Constraints().Restrict[0].Column)
	assert.Equal(t, "tag_id", (&Tag{}).Constraints().Cascade[0].Column)
}

func TestCourseLevel(t *testing.T) {
	assert.Equal(t, []CourseLevel{Beginner, Intermediate, Advanced}, CourseLevels())
	assert.Equal(t, 2, Intermediate.Number())
	assert.Equal(t, "advanced", Advanced.String())
	assert.False(t, CourseLevel(0).IsValid())
	assert.Equal(t, -1, CourseLevel(9).Number())

	l, ok := ParseCourseLevel(" Intermediate")
	assert.True(t, ok)
	assert.Equal(t, Intermediate, l)
	_, ok = CourseLevelOf(4)
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	reg := database.NewModelRegistry()
	Register(reg)

	models := reg.Models()
	require.Len(t, models, 5)
	assert.IsType(t, (*CourseTag)(nil), models[4].Instance())
	p, ok := reg.Priority(&Course{})
	assert.True(t, ok)
	assert.Equal(t, PriorityCourse, p)
	assert.Len(t, reg.Indexes(), 2)
	assert.Empty(t, database.NewForeignKeyManager(nil, reg).Validate())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
