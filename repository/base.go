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
	"reflect"

	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/tracking"
)

type baseRepositoryImpl[T any] struct {
	scope Scope
	typ   reflect.Type
	name  string
}

// NewRepository returns the generic repository of T within scope. *T must
// be a store.Entity.
func NewRepository[T any](scope Scope) Repository[T] {
	return newBase[T](scope)
}

func newBase[T any](scope Scope) *baseRepositoryImpl[T] {
	sample, ok := any(new(T)).(store.Entity)
	if !ok {
		panic("repository: " + reflect.TypeOf(new(T)).String() + " is not a store.Entity")
	}
	scope.Tracker.RegisterType(sample)
	return &baseRepositoryImpl[T]{
		scope: scope,
		typ:   reflect.TypeOf(sample),
		name:  scope.Session.EntityName(sample),
	}
}

func (r *baseRepositoryImpl[T]) entity(op string, v *T) (store.Entity, error) {
	if v == nil {
		return nil, errs.InvalidState(op, "nil %s", r.name)
	}
	return any(v).(store.Entity), nil
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id int64) (*T, error) {
	if err := r.scope.check("get"); err != nil {
		return nil, err
	}
	if e, ok := r.scope.Tracker.Lookup(r.typ, id); ok {
		if e.State() == tracking.Deleted {
			return nil, errs.NotFound(r.name, id)
		}
		return any(e.Entity()).(*T), nil
	}
	items, err := r.Find("?TableAlias.id = ?", id).Take(1).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NotFound(r.name, id)
	}
	return items[0], nil
}

func (r *baseRepositoryImpl[T]) GetAll() *Query[T] {
	return newQuery[T](r.scope)
}

func (r *baseRepositoryImpl[T]) Find(where string, args ...any) *Query[T] {
	return r.GetAll().Where(where, args...)
}

func (r *baseRepositoryImpl[T]) SingleOrDefault(ctx context.Context, where string, args ...any) (*T, error) {
	items, err := r.Find(where, args...).Take(2).List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, errs.InvalidState("single", "more than one %s matches %q", r.name, where)
	}
}

func (r *baseRepositoryImpl[T]) validate(entity store.Entity) error {
	if v, ok := entity.(store.Validatable); ok {
		if err := v.Validate(); err != nil {
			return errs.Validation(r.name, err)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Add(entity *T) error {
	return r.AddRange(entity)
}

// AddRange stages every entity or none of them.
func (r *baseRepositoryImpl[T]) AddRange(entities ...*T) error {
	batch := make([]store.Entity, 0, len(entities))
	for _, v := range entities {
		e, err := r.entity("add", v)
		if err != nil {
			return err
		}
		if err := r.scope.Tracker.CheckAdd(e); err != nil {
			return err
		}
		if err := r.validate(e); err != nil {
			return err
		}
		batch = append(batch, e)
	}
	for _, e := range batch {
		if err := r.scope.Tracker.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Remove(entity *T) error {
	return r.RemoveRange(entity)
}

// RemoveRange stages every entity for deletion or none of them.
func (r *baseRepositoryImpl[T]) RemoveRange(entities ...*T) error {
	batch := make([]store.Entity, 0, len(entities))
	seen := make(map[store.Entity]struct{}, len(entities))
	for _, v := range entities {
		e, err := r.entity("remove", v)
		if err != nil {
			return err
		}
		if _, ok := seen[e]; ok {
			continue
		}
		if err := r.scope.Tracker.CheckRemove(e); err != nil {
			return err
		}
		seen[e] = struct{}{}
		batch = append(batch, e)
	}
	for _, e := range batch {
		if err := r.scope.Tracker.Remove(e); err != nil {
			return err
		}
	}
	return nil
}
