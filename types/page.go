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
package types

import "strings"

// DefaultPageSize applies when a PageRequest has no positive Size.
const DefaultPageSize = 10

// Filter is a WHERE expression with its placeholder arguments.
type Filter struct {
	Expr string
	Args []any
	// terms are the parenthesized operands of a filter built by And.
	terms []string
}

func NewFilter(expr string, args ...any) *Filter {
	return &Filter{Expr: expr, Args: args}
}

// Empty reports whether f has no expression.
func (f *Filter) Empty() bool {
	return f == nil || strings.TrimSpace(f.Expr) == ""
}

// And joins the non-empty filters with AND. Operands of an earlier And are
// spliced in rather than nested. It returns nil when none is left.
func And(filters ...*Filter) *Filter {
	var terms []string
	var args []any
	for _, f := range filters {
		if f.Empty() {
			continue
		}
		if len(f.terms) > 0 {
			terms = append(terms, f.terms...)
		} else {
			terms = append(terms, "("+f.Expr+")")
		}
		args = append(args, f.Args...)
	}
	if len(terms) == 0 {
		return nil
	}
	return &Filter{Expr: strings.Join(terms, " AND "), Args: args, terms: terms}
}

// PageRequest selects a 1-based page. Orders are raw ORDER BY terms such as
// "?TableAlias.name DESC".
type PageRequest struct {
	Page   int
	Size   int
	Filter *Filter
	Orders []string
}

// NewPageRequest returns a request for page of size items.
func NewPageRequest(page, size int) PageRequest {
	return PageRequest{Page: page, Size: size}
}

// Where returns a copy of r filtered by expr.
func (r PageRequest) Where(expr string, args ...any) PageRequest {
	r.Filter = And(r.Filter, NewFilter(expr, args...))
	return r
}

// OrderBy returns a copy of r with orders appended.
func (r PageRequest) OrderBy(orders ...string) PageRequest {
	r.Orders = append(append([]string(nil), r.Orders...), orders...)
	return r
}

// Normalize clamps Page to at least 1 and Size to DefaultPageSize when unset.
func (r PageRequest) Normalize() PageRequest {
	r.Page = max(r.Page, 1)
	if r.Size < 1 {
		r.Size = DefaultPageSize
	}
	return r
}

// Offset is the number of rows before the normalized page.
func (r PageRequest) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Size
}

// Pagination is one page of items plus the total row count.
type Pagination[T any] struct {
	Page  int
	Size  int
	Total int
	Items []*T
}

// EmptyPage returns the page r with no items.
func EmptyPage[T any](r PageRequest) *Pagination[T] {
	r = r.Normalize()
	return &Pagination[T]{Page: r.Page, Size: r.Size, Items: []*T{}}
}

func (p *Pagination[T]) TotalPages() int {
	if p.Size < 1 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}

func (p *Pagination[T]) HasNext() bool { return p.Page < p.TotalPages() }

func (p *Pagination[T]) HasPrev() bool { return p.Page > 1 }
