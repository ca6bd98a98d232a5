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

	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/types"
)

// Query is an immutable deferred query. Builder methods return a new
// Query and never touch the store; materializers run it on every call.
type Query[T any] struct {
	scope Scope
	spec  *store.QuerySpec
}

var _ Materializer[struct{}] = (*Query[struct{}])(nil)

func newQuery[T any](scope Scope) *Query[T] {
	return &Query[T]{scope: scope, spec: &store.QuerySpec{}}
}

func (q *Query[T]) with(f func(spec *store.QuerySpec)) *Query[T] {
	spec := q.spec.Clone()
	f(spec)
	return &Query[T]{scope: q.scope, spec: spec}
}

// Where adds a condition; conditions are joined with AND.
func (q *Query[T]) Where(expr string, args ...any) *Query[T] {
	return q.WhereFilter(types.NewFilter(expr, args...))
}

func (q *Query[T]) WhereFilter(filter *types.Filter) *Query[T] {
	if filter.Empty() {
		return q
	}
	return q.with(func(spec *store.QuerySpec) {
		spec.Filters = append(spec.Filters, *filter)
	})
}

// Order appends ORDER BY expressions, e.g. "?TableAlias.name ASC".
func (q *Query[T]) Order(exprs ...string) *Query[T] {
	return q.with(func(spec *store.QuerySpec) {
		spec.Orders = append(spec.Orders, exprs...)
	})
}

// Include eagerly loads the named relations, e.g. "Author" or "Tags".
func (q *Query[T]) Include(relations ...string) *Query[T] {
	return q.with(func(spec *store.QuerySpec) {
		spec.Relations = append(spec.Relations, relations...)
	})
}

func (q *Query[T]) Skip(n int) *Query[T] {
	return q.with(func(spec *store.QuerySpec) {
		spec.Offset = max(n, 0)
	})
}

func (q *Query[T]) Take(n int) *Query[T] {
	return q.with(func(spec *store.QuerySpec) {
		spec.Limit = max(n, 0)
	})
}

func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	if err := q.scope.check("list"); err != nil {
		return nil, err
	}
	var rows []*T
	if err := q.scope.Session.Select(ctx, q.spec, &rows); err != nil {
		return nil, err
	}
	items := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, ok := any(row).(store.Entity)
		if !ok {
			return nil, notTracked("list")
		}
		items = append(items, any(q.scope.Tracker.Attach(entity)).(*T))
	}
	return items, nil
}

// All yields the results of one List call.
func (q *Query[T]) All(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		items, err := q.List(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (q *Query[T]) First(ctx context.Context) (*T, error) {
	items, err := q.Take(1).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NoMatch("first", q.scope.Session.EntityName((*T)(nil)))
	}
	return items[0], nil
}

// Count returns the number of matching rows, clipped by Skip and Take.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	if err := q.scope.check("count"); err != nil {
		return 0, err
	}
	n, err := q.scope.Session.Count(ctx, q.spec, (*T)(nil))
	if err != nil {
		return 0, err
	}
	n = max(n-q.spec.Offset, 0)
	if q.spec.Limit > 0 {
		n = min(n, q.spec.Limit)
	}
	return n, nil
}

func (q *Query[T]) Any(ctx context.Context) (bool, error) {
	if q.spec.Offset > 0 || q.spec.Limit > 0 {
		n, err := q.Count(ctx)
		return n > 0, err
	}
	if err := q.scope.check("any"); err != nil {
		return false, err
	}
	return q.scope.Session.Exists(ctx, q.spec, (*T)(nil))
}

// Page ignores Skip and Take in favor of req. Without orders the page is
// ordered by id.
func (q *Query[T]) Page(ctx context.Context, req types.PageRequest) (*types.Pagination[T], error) {
	req = req.Normalize()
	base := q.with(func(spec *store.QuerySpec) {
		spec.Offset, spec.Limit = 0, 0
	}).WhereFilter(req.Filter)
	if len(req.Orders) > 0 {
		base = base.Order(req.Orders...)
	} else if len(base.spec.Orders) == 0 {
		base = base.Order("?TableAlias.id ASC")
	}

	pagination := types.EmptyPage[T](req)
	total, err := base.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := base.Skip(req.Offset()).Take(req.Size).List(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
