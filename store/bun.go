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

package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/uptrace/bun"

	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/types"
)

// Option configures a BunStore.
type Option func(*BunStore)

// WithRegistry sets the registry whose priorities order writes.
func WithRegistry(registry database.ModelRegistry) Option {
	return func(s *BunStore) {
		s.registry = registry
	}
}

// WithLogger sets the store logger.
func WithLogger(logger database.Logger) Option {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// BunStore is a Store over a bun database.
type BunStore struct {
	db       *bun.DB
	registry database.ModelRegistry
	logger   database.Logger
}

var _ Store = (*BunStore)(nil)

// New returns a Store over db. Models not found in the registry are
// written after registered ones.
func New(db *bun.DB, opts ...Option) *BunStore {
	s := &BunStore{
		db:       db,
		registry: database.DefaultRegistry(),
		logger:   database.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying bun database.
func (s *BunStore) DB() *bun.DB { return s.db }

func (s *BunStore) BeginSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Connection("begin session", err)
	}
	return &bunSession{Schema: NewSchema(s.db), store: s}, nil
}

type bunSession struct {
	Schema
	store  *BunStore
	closed atomic.Bool
}

func (s *bunSession) check(ctx context.Context, op string) error {
	if s.closed.Load() {
		return errs.InvalidState(op, "session is closed")
	}
	if err := ctx.Err(); err != nil {
		return errs.Connection(op, err)
	}
	return nil
}

func applyFilters(q *bun.SelectQuery, filters []types.Filter) *bun.SelectQuery {
	for _, f := range filters {
		q = q.Where(f.Expr, f.Args...)
	}
	return q
}

func (s *bunSession) Select(ctx context.Context, spec *QuerySpec, dest any) error {
	if err := s.check(ctx, "select"); err != nil {
		return err
	}
	if spec == nil {
		spec = &QuerySpec{}
	}
	model := spec.Model
	if model == nil {
		model = dest
	}
	q := s.store.db.NewSelect().Model(model)
	for _, col := range spec.Columns {
		q = q.ColumnExpr(col)
	}
	for _, join := range spec.Joins {
		q = q.Join(join)
	}
	q = applyFilters(q, spec.Filters)
	for _, rel := range spec.Relations {
		if toMany(model, rel) {
			q = q.Relation(rel, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.OrderExpr("?TableAlias.id ASC")
			})
			continue
		}
		q = q.Relation(rel)
	}
	for _, group := range spec.GroupBy {
		q = q.GroupExpr(group)
	}
	for _, order := range spec.Orders {
		q = q.OrderExpr(order)
	}
	if spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}
	if spec.Offset > 0 {
		q = q.Offset(spec.Offset)
		// sqlite and mysql reject OFFSET without LIMIT
		if spec.Limit <= 0 {
			q = q.Limit(math.MaxInt32)
		}
	}

	var err error
	if spec.Model != nil {
		err = q.Scan(ctx, dest)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return database.Classify("select", err)
	}
	if spec.Model == nil {
		for _, rel := range spec.Relations {
			if !strings.Contains(rel, ".") && toMany(model, rel) {
				fillEmpty(reflect.ValueOf(dest), rel)
			}
		}
	}
	return nil
}

func (s *bunSession) Count(ctx context.Context, spec *QuerySpec, model any) (int, error) {
	if err := s.check(ctx, "count"); err != nil {
		return 0, err
	}
	q := s.store.db.NewSelect().Model(model)
	if spec != nil {
		q = applyFilters(q, spec.Filters)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, database.Classify("count", err)
	}
	return n, nil
}

func (s *bunSession) Exists(ctx context.Context, spec *QuerySpec, model any) (bool, error) {
	if err := s.check(ctx, "exists"); err != nil {
		return false, err
	}
	q := s.store.db.NewSelect().Model(model)
	if spec != nil {
		q = applyFilters(q, spec.Filters)
	}
	ok, err := q.Exists(ctx)
	if err != nil {
		return false, database.Classify("exists", err)
	}
	return ok, nil
}

func (s *bunSession) Load(ctx context.Context, model Entity, id int64) error {
	if err := s.check(ctx, "load"); err != nil {
		return err
	}
	err := s.store.db.NewSelect().Model(model).Where("?TableAlias.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(s.EntityName(model), id)
	}
	return database.Classify("load", err)
}

func (s *bunSession) Close() error {
	s.closed.Store(true)
	return nil
}
