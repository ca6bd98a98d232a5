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
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type bunSchema struct {
	db *bun.DB
}

// NewSchema returns a Schema backed by the table metadata of db.
func NewSchema(db *bun.DB) Schema {
	return &bunSchema{db: db}
}

func (s *bunSchema) table(entity any) *schema.Table {
	return s.db.Table(indirectType(reflect.TypeOf(entity)))
}

// EntityName returns the lower-cased Go type name, e.g. "course".
func (s *bunSchema) EntityName(entity any) string {
	t := indirectType(reflect.TypeOf(entity))
	if t == nil {
		return ""
	}
	return strings.ToLower(t.Name())
}

func (s *bunSchema) Snapshot(entity any) map[string]any {
	v := reflect.ValueOf(entity).Elem()
	fields := s.table(entity).DataFields
	snap := make(map[string]any, len(fields))
	for _, f := range fields {
		snap[f.Name] = f.Value(v).Interface()
	}
	return snap
}

func (s *bunSchema) Clone(entity any) any {
	v := reflect.ValueOf(entity)
	cp := reflect.New(v.Type().Elem())
	cp.Elem().Set(v.Elem())
	return cp.Interface()
}

func (s *bunSchema) CopyColumns(dst, src any) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for _, f := range s.table(dst).Fields {
		f.Value(dv).Set(f.Value(sv))
	}
}

func (s *bunSchema) CopyRelations(dst, src any) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for name := range s.table(dst).Relations {
		if field := sv.FieldByName(name); field.IsValid() && !field.IsNil() {
			dv.FieldByName(name).Set(field)
		}
	}
}

func (s *bunSchema) ResolveRelations(entity any, canonical func(any) any) {
	v := reflect.ValueOf(entity).Elem()
	for name := range s.table(entity).Relations {
		field := v.FieldByName(name)
		if !field.IsValid() || field.IsNil() {
			continue
		}
		switch field.Kind() {
		case reflect.Ptr:
			field.Set(reflect.ValueOf(canonical(field.Interface())))
		case reflect.Slice:
			for i := 0; i < field.Len(); i++ {
				elem := field.Index(i)
				if elem.Kind() == reflect.Ptr && !elem.IsNil() {
					elem.Set(reflect.ValueOf(canonical(elem.Interface())))
				}
			}
		}
	}
}

// toMany reports whether the relation path on model ends in a slice, e.g.
// "Courses" on Author or "Author.Courses" on Course.
func toMany(model any, path string) bool {
	t := indirectType(reflect.TypeOf(model))
	names := strings.Split(path, ".")
	for i, name := range names {
		if t == nil || t.Kind() != reflect.Struct {
			return false
		}
		f, ok := t.FieldByName(name)
		if !ok {
			return false
		}
		if i == len(names)-1 {
			return f.Type.Kind() == reflect.Slice
		}
		t = indirectType(f.Type)
	}
	return false
}

// fillEmpty sets the nil slice field of every struct reached from v to an
// empty slice, so a loaded relation without rows is told apart from one
// that was never loaded.
func fillEmpty(v reflect.Value, field string) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			fillEmpty(v.Elem(), field)
		}
	case reflect.Slice:
		for i := range v.Len() {
			fillEmpty(v.Index(i), field)
		}
	case reflect.Struct:
		f := v.FieldByName(field)
		if f.IsValid() && f.Kind() == reflect.Slice && f.IsNil() && f.CanSet() {
			f.Set(reflect.MakeSlice(f.Type(), 0, 0))
		}
	}
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	return t
}
