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
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/types"
)

// CourseQuery is a deferred course query with typed filters.
type CourseQuery struct {
	*Query[domain.Course]
}

func (q *CourseQuery) wrap(inner *Query[domain.Course]) *CourseQuery {
	return &CourseQuery{Query: inner}
}

func (q *CourseQuery) Where(expr string, args ...any) *CourseQuery {
	return q.wrap(q.Query.Where(expr, args...))
}

func (q *CourseQuery) ByAuthor(authorID int64) *CourseQuery {
	return q.Where("?TableAlias.author_id = ?", authorID)
}

func (q *CourseQuery) ByLevel(level domain.CourseLevel) *CourseQuery {
	return q.Where("?TableAlias.level = ?", level.Number())
}

func (q *CourseQuery) PriceAtLeast(price decimal.Decimal) *CourseQuery {
	return q.Where("?TableAlias.full_price >= ?", price)
}

func (q *CourseQuery) PriceBelow(price decimal.Decimal) *CourseQuery {
	return q.Where("?TableAlias.full_price < ?", price)
}

// NameContains matches s anywhere in the name, ignoring case.
func (q *CourseQuery) NameContains(s string) *CourseQuery {
	return q.Where("LOWER(?TableAlias.name) LIKE ?", "%"+strings.ToLower(s)+"%")
}

func (q *CourseQuery) OrderByName() *CourseQuery {
	return q.wrap(q.Order("?TableAlias.name ASC", "?TableAlias.id ASC"))
}

// OrderByLevel orders by level descending, then by name.
func (q *CourseQuery) OrderByLevel() *CourseQuery {
	return q.wrap(q.Order("?TableAlias.level DESC", "?TableAlias.name ASC", "?TableAlias.id ASC"))
}

func (q *CourseQuery) IncludeAuthor() *CourseQuery {
	return q.wrap(q.Include("Author"))
}

func (q *CourseQuery) IncludeTags() *CourseQuery {
	return q.wrap(q.Include("Tags"))
}

func (q *CourseQuery) IncludeCover() *CourseQuery {
	return q.wrap(q.Include("Cover"))
}

func (q *CourseQuery) Skip(n int) *CourseQuery {
	return q.wrap(q.Query.Skip(n))
}

func (q *CourseQuery) Take(n int) *CourseQuery {
	return q.wrap(q.Query.Take(n))
}

type courseRepository struct {
	*baseRepositoryImpl[domain.Course]
}

// NewCourseRepository returns the course repository of scope.
func NewCourseRepository(scope Scope) CourseRepository {
	return &courseRepository{baseRepositoryImpl: newBase[domain.Course](scope)}
}

func (r *courseRepository) Query() *CourseQuery {
	return &CourseQuery{Query: r.GetAll()}
}

func (r *courseRepository) GetTopSellingCourses(ctx context.Context, count int) ([]*domain.Course, error) {
	if count <= 0 {
		return []*domain.Course{}, nil
	}
	q := r.Query()
	return q.wrap(q.Order("?TableAlias.full_price DESC", "?TableAlias.id ASC")).Take(count).List(ctx)
}

func (r *courseRepository) GetCoursesWithAuthors(ctx context.Context, pageIndex, pageSize int) (*types.Pagination[domain.Course], error) {
	return r.Query().IncludeAuthor().OrderByName().Page(ctx, types.NewPageRequest(pageIndex, pageSize))
}

func (r *courseRepository) GroupByLevel(ctx context.Context) (map[domain.CourseLevel][]*domain.Course, error) {
	courses, err := r.Query().OrderByLevel().List(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[domain.CourseLevel][]*domain.Course)
	for _, c := range courses {
		groups[c.Level] = append(groups[c.Level], c)
	}
	return groups, nil
}

type priceRow struct {
	PriceCount int                 `bun:"price_count"`
	MinPrice   decimal.NullDecimal `bun:"min_price"`
	MaxPrice   decimal.NullDecimal `bun:"max_price"`
	AvgPrice   decimal.NullDecimal `bun:"avg_price"`
}

func (r *courseRepository) PriceSummary(ctx context.Context) (*PriceSummary, error) {
	if err := r.scope.check("price summary"); err != nil {
		return nil, err
	}
	var row priceRow
	err := r.scope.Session.Select(ctx, &store.QuerySpec{
		Model: (*domain.Course)(nil),
		Columns: []string{
			"COUNT(*) AS price_count",
			"MIN(?TableAlias.full_price) AS min_price",
			"MAX(?TableAlias.full_price) AS max_price",
			"AVG(?TableAlias.full_price) AS avg_price",
		},
	}, &row)
	if err != nil {
		return nil, err
	}
	return &PriceSummary{
		Count:   row.PriceCount,
		Min:     row.MinPrice.Decimal,
		Max:     row.MaxPrice.Decimal,
		Average: row.AvgPrice.Decimal.Round(2),
	}, nil
}
