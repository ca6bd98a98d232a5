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
	"iter"

	"github.com/shopspring/decimal"

	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/tracking"
	"github.com/tomoncle/pluto/types"
)

// Scope is what every repository of one unit of work shares.
type Scope struct {
	Session store.Session
	Tracker *tracking.Tracker
	// Guard rejects operations once the owning unit of work has ended.
	Guard func(op string) error
}

func (s Scope) check(op string) error {
	if s.Guard != nil {
		return s.Guard(op)
	}
	return nil
}

// Repository is the per-entity collection of a unit of work.
type Repository[T any] interface {
	// Get returns the entity with identity id, from the identity map when
	// it is already tracked.
	Get(ctx context.Context, id int64) (*T, error)
	// GetAll returns a deferred query over every entity.
	GetAll() *Query[T]
	Find(where string, args ...any) *Query[T]
	// SingleOrDefault returns nil when nothing matches and an error when
	// more than one entity does.
	SingleOrDefault(ctx context.Context, where string, args ...any) (*T, error)
	Add(entity *T) error
	AddRange(entities ...*T) error
	Remove(entity *T) error
	RemoveRange(entities ...*T) error
}

// Materializer is implemented by deferred queries.
type Materializer[T any] interface {
	List(ctx context.Context) ([]*T, error)
	All(ctx context.Context) iter.Seq2[*T, error]
	First(ctx context.Context) (*T, error)
	Count(ctx context.Context) (int, error)
	Any(ctx context.Context) (bool, error)
	Page(ctx context.Context, req types.PageRequest) (*types.Pagination[T], error)
}

type AuthorRepository interface {
	Repository[domain.Author]
	// GetAuthorWithCourses returns the author with all its courses ordered by id.
	GetAuthorWithCourses(ctx context.Context, id int64) (*domain.Author, error)
	// GetAuthorsWithCourseCount returns one untracked row per author ordered by name.
	GetAuthorsWithCourseCount(ctx context.Context) ([]AuthorCourseCount, error)
}

type CourseRepository interface {
	Repository[domain.Course]
	Query() *CourseQuery
	// GetTopSellingCourses returns at most count courses by descending full price.
	GetTopSellingCourses(ctx context.Context, count int) ([]*domain.Course, error)
	// GetCoursesWithAuthors returns the 1-based page pageIndex of courses
	// ordered by name with their authors.
	GetCoursesWithAuthors(ctx context.Context, pageIndex, pageSize int) (*types.Pagination[domain.Course], error)
	GroupByLevel(ctx context.Context) (map[domain.CourseLevel][]*domain.Course, error)
	PriceSummary(ctx context.Context) (*PriceSummary, error)
}

// AuthorCourseCount is a projection row of GetAuthorsWithCourseCount.
type AuthorCourseCount struct {
	AuthorID    int64  `bun:"author_id" json:"author_id"`
	Name        string `bun:"name" json:"name"`
	CourseCount int    `bun:"course_count" json:"course_count"`
}

// PriceSummary aggregates course full prices. Min, Max and Average are
// zero when there are no courses.
type PriceSummary struct {
	Count   int             `json:"count"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Average decimal.Decimal `json:"average"`
}

func notTracked(op string) error {
	return errs.InvalidState(op, "entity is not an identifiable model")
}
