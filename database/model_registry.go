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

package database

import (
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// SQLModel represents a database model used for migrations and persist
// ordering. Instance returns a struct pointer compatible with Bun; lower
// Priority values are created and inserted first and deleted last.
type SQLModel interface {
	Instance() interface{}
	Priority() int
	ForeignKeys() []ForeignKeyConstraint
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(models ...SQLModel)
	Models() []SQLModel
	Priority(model interface{}) (int, bool)
	Instances() []interface{}
	RegisterIndexes(indexes ...Index)
	Indexes() []Index
}

// Index describes a secondary index created by the index migration.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

type modelRegistry struct {
	models  []SQLModel
	byType  map[reflect.Type]SQLModel
	indexes []Index
	mutex   sync.RWMutex
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
		byType: make(map[reflect.Type]SQLModel),
	}
}

func (r *modelRegistry) Register(models ...SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, model := range models {
		typ := modelType(model.Instance())
		if _, ok := r.byType[typ]; ok {
			continue
		}
		r.byType[typ] = model
		r.models = append(r.models, model)
	}
}

// Models returns the registered models sorted by ascending priority; models
// of equal priority keep registration order.
func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Priority looks up the priority of the model type of v, which may be a
// value, a pointer or a typed nil pointer.
func (r *modelRegistry) Priority(v interface{}) (int, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	model, ok := r.byType[modelType(v)]
	if !ok {
		return 0, false
	}
	return model.Priority(), true
}

func (r *modelRegistry) Instances() []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

func (r *modelRegistry) RegisterIndexes(indexes ...Index) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.indexes = append(r.indexes, indexes...)
}

func (r *modelRegistry) Indexes() []Index {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]Index, len(r.indexes))
	copy(result, r.indexes)
	return result
}

func modelType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

type ModelAdapter struct {
	instance    interface{}
	priority    int
	foreignKeys []ForeignKeyConstraint
}

// NewModelAdapter wraps a struct instance, its priority and the foreign keys
// declared on its table into an SQLModel.
func NewModelAdapter(instance interface{}, priority int, fks ...ForeignKeyConstraint) SQLModel {
	return &ModelAdapter{
		instance:    instance,
		priority:    priority,
		foreignKeys: fks,
	}
}

// Instance returns the underlying struct used for migrations.
func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

// Priority returns the model's ordering value; lower values run earlier.
func (a *ModelAdapter) Priority() int {
	return a.priority
}

func (a *ModelAdapter) ForeignKeys() []ForeignKeyConstraint {
	return a.foreignKeys
}

// DefaultRegistry returns the process-wide registry that domain packages
// register their models with.
func DefaultRegistry() ModelRegistry {
	return defaultRegistry
}
