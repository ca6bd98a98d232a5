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

package tracking

import (
	"context"
	"database/sql/driver"
	"reflect"
	"sort"
	"time"

	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
)

// Source is the part of a store session the tracker reads through.
type Source interface {
	store.Schema
	Load(ctx context.Context, model store.Entity, id int64) error
}

type identity struct {
	typ reflect.Type
	id  int64
}

// Tracker records the entities of one unit of work. It is not safe for
// concurrent use.
type Tracker struct {
	src      Source
	guard    func(op string) error
	types    map[reflect.Type]struct{}
	entries  []*Entry
	byEntity map[store.Entity]*Entry
	byID     map[identity]*Entry
	closed   bool
}

// New returns a tracker reading through src. guard, when set, is consulted
// before every state-changing operation.
func New(src Source, guard func(op string) error) *Tracker {
	return &Tracker{
		src:      src,
		guard:    guard,
		types:    make(map[reflect.Type]struct{}),
		byEntity: make(map[store.Entity]*Entry),
		byID:     make(map[identity]*Entry),
	}
}

// RegisterType enables tracking of entities of the same type as sample.
// Related entities of unregistered types are left as loaded.
func (t *Tracker) RegisterType(sample store.Entity) {
	t.types[reflect.TypeOf(sample)] = struct{}{}
}

func (t *Tracker) check(op string) error {
	if t.closed {
		return errs.InvalidState(op, "tracker is closed")
	}
	if t.guard != nil {
		return t.guard(op)
	}
	return nil
}

func (t *Tracker) tracked(entity store.Entity) bool {
	_, ok := t.types[reflect.TypeOf(entity)]
	return ok
}

// Attach starts tracking a loaded entity as Unchanged and returns the
// canonical instance for its identity. When the identity is already tracked
// the loaded relations are merged onto the tracked instance and that
// instance is returned.
func (t *Tracker) Attach(entity store.Entity) store.Entity {
	if entity == nil || reflect.ValueOf(entity).IsNil() || !t.tracked(entity) {
		return entity
	}
	if e, ok := t.byEntity[entity]; ok {
		return e.entity
	}
	key := identity{typ: reflect.TypeOf(entity), id: entity.GetID()}
	if key.id == 0 {
		return entity
	}
	if e, ok := t.byID[key]; ok {
		t.src.CopyRelations(e.entity, entity)
		t.src.ResolveRelations(e.entity, t.canonical)
		t.refreshLinks(e, entity)
		return e.entity
	}

	e := &Entry{tracker: t, entity: entity, state: Unchanged}
	t.entries = append(t.entries, e)
	t.byEntity[entity] = e
	t.byID[key] = e
	t.src.ResolveRelations(entity, t.canonical)
	e.snapshot = t.src.Snapshot(entity)
	e.links = snapshotLinks(entity)
	return entity
}

// refreshLinks resets the link snapshot of every relation that loaded
// carries, after it was merged onto the tracked entity.
func (t *Tracker) refreshLinks(e *Entry, loaded store.Entity) {
	l, ok := loaded.(store.Linked)
	if !ok {
		return
	}
	tracked := e.entity.(store.Linked)
	for _, rel := range l.LinkRelations() {
		if l.Linked(rel) == nil {
			continue
		}
		if e.links == nil {
			e.links = make(map[string][]store.Entity)
		}
		e.links[rel] = tracked.Linked(rel)
	}
}

// trackedByID returns the tracked, not deleted entity of model's type with
// identity id, or nil.
func (t *Tracker) trackedByID(model any, id int64) any {
	if e, ok := t.byID[identity{typ: reflect.TypeOf(model), id: id}]; ok && e.state != Deleted {
		return e.entity
	}
	return nil
}

func (t *Tracker) canonical(related any) any {
	if entity, ok := related.(store.Entity); ok {
		return t.Attach(entity)
	}
	return related
}

// CheckAdd reports whether entity may be staged for insertion.
func (t *Tracker) CheckAdd(entity store.Entity) error {
	if err := t.check("add"); err != nil {
		return err
	}
	if e, ok := t.byEntity[entity]; ok {
		if e.state == Added {
			return nil
		}
		return errs.InvalidState("add", "%s %d is already tracked as %s", t.src.EntityName(entity), entity.GetID(), e.state)
	}
	if id := entity.GetID(); id != 0 {
		if _, ok := t.byID[identity{typ: reflect.TypeOf(entity), id: id}]; ok {
			return errs.InvalidState("add", "another %s with id %d is already tracked", t.src.EntityName(entity), id)
		}
	}
	return nil
}

// Add stages entity for insertion. Adding an entity twice is a no-op.
func (t *Tracker) Add(entity store.Entity) error {
	if err := t.CheckAdd(entity); err != nil {
		return err
	}
	if _, ok := t.byEntity[entity]; ok {
		return nil
	}
	e := &Entry{tracker: t, entity: entity, state: Added}
	t.entries = append(t.entries, e)
	t.byEntity[entity] = e
	return nil
}

// CheckRemove reports whether entity may be staged for deletion.
func (t *Tracker) CheckRemove(entity store.Entity) error {
	if err := t.check("remove"); err != nil {
		return err
	}
	e, ok := t.byEntity[entity]
	if !ok {
		return errs.InvalidState("remove", "entity is detached")
	}
	switch e.state {
	case Unchanged, Modified:
		return nil
	case Added:
		return errs.InvalidState("remove", "added %s has not been saved", t.src.EntityName(entity))
	default:
		return errs.InvalidState("remove", "%s %d is already %s", t.src.EntityName(entity), entity.GetID(), e.state)
	}
}

// Remove stages a persisted entity for deletion.
func (t *Tracker) Remove(entity store.Entity) error {
	if err := t.CheckRemove(entity); err != nil {
		return err
	}
	t.byEntity[entity].state = Deleted
	return nil
}

// Lookup returns the entry of the tracked entity of type typ with identity id.
func (t *Tracker) Lookup(typ reflect.Type, id int64) (*Entry, bool) {
	e, ok := t.byID[identity{typ: typ, id: id}]
	return e, ok
}

// Entry returns the entry of entity.
func (t *Tracker) Entry(entity store.Entity) (*Entry, bool) {
	e, ok := t.byEntity[entity]
	return e, ok
}

// Entries runs change detection and returns the entries in tracking order.
func (t *Tracker) Entries() []*Entry {
	t.DetectChanges()
	return append([]*Entry(nil), t.entries...)
}

// DetectChanges moves Unchanged entries whose columns differ from their
// snapshot to Modified, and Modified ones that match again back.
func (t *Tracker) DetectChanges() {
	for _, e := range t.entries {
		t.detect(e)
	}
}

// HasChanges reports whether any entry is Added, Modified or Deleted.
func (t *Tracker) HasChanges() bool {
	t.DetectChanges()
	for _, e := range t.entries {
		if e.state != Unchanged {
			return true
		}
	}
	return false
}

func (t *Tracker) detect(e *Entry) {
	if e.state != Unchanged && e.state != Modified {
		return
	}
	if r, ok := e.entity.(store.Relinker); ok {
		changed := make(map[string]bool)
		for col, value := range t.src.Snapshot(e.entity) {
			if col != store.VersionColumn && !sameValue(e.snapshot[col], value) {
				changed[col] = true
			}
		}
		if len(changed) > 0 {
			r.RelinkReferences(changed, t.trackedByID)
		}
	}
	var current any = e.entity
	if _, ok := e.entity.(store.Linker); ok {
		cp := t.src.Clone(e.entity)
		cp.(store.Linker).LinkForeignKeys(func(v any) any { return v })
		current = cp
	}
	snap := t.src.Snapshot(current)
	var columns []string
	for col, value := range snap {
		if col == store.VersionColumn {
			continue
		}
		if !sameValue(e.snapshot[col], value) {
			columns = append(columns, col)
		}
	}
	sort.Strings(columns)
	e.columns = columns
	e.linkChanges = diffLinks(e)
	if len(columns) > 0 || len(e.linkChanges) > 0 {
		e.state = Modified
	} else {
		e.state = Unchanged
	}
}

func snapshotLinks(entity store.Entity) map[string][]store.Entity {
	l, ok := entity.(store.Linked)
	if !ok {
		return nil
	}
	links := make(map[string][]store.Entity)
	for _, rel := range l.LinkRelations() {
		links[rel] = l.Linked(rel)
	}
	return links
}

// diffLinks compares every loaded join-backed relation of e with its
// snapshot. A relation that is still nil was never loaded and is skipped.
func diffLinks(e *Entry) []store.LinkChange {
	l, ok := e.entity.(store.Linked)
	if !ok {
		return nil
	}
	var out []store.LinkChange
	for _, rel := range l.LinkRelations() {
		current := l.Linked(rel)
		if current == nil {
			continue
		}
		before := make(map[any]bool)
		for _, x := range e.links[rel] {
			before[linkKey(x)] = true
		}
		change := store.LinkChange{Relation: rel}
		now := make(map[any]bool, len(current))
		for _, x := range current {
			k := linkKey(x)
			if now[k] {
				continue
			}
			now[k] = true
			if !before[k] {
				change.Added = append(change.Added, x)
			}
		}
		for _, x := range e.links[rel] {
			if k := linkKey(x); !now[k] {
				now[k] = true
				change.Removed = append(change.Removed, x)
			}
		}
		if len(change.Added) > 0 || len(change.Removed) > 0 {
			out = append(out, change)
		}
	}
	return out
}

// linkKey identifies a related entity by type and id, or by pointer while
// it has no id yet.
func linkKey(x store.Entity) any {
	if id := x.GetID(); id != 0 {
		return identity{typ: reflect.TypeOf(x), id: id}
	}
	return x
}

func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	va, okA := a.(driver.Valuer)
	vb, okB := b.(driver.Valuer)
	if okA && okB {
		x, errA := va.Value()
		y, errB := vb.Value()
		return errA == nil && errB == nil && reflect.DeepEqual(x, y)
	}
	return false
}

// Changes runs change detection and returns the staged writes together
// with their entries, in tracking order.
func (t *Tracker) Changes() ([]store.Change, []*Entry) {
	t.DetectChanges()
	var (
		changes []store.Change
		entries []*Entry
	)
	for _, e := range t.entries {
		var op store.Operation
		switch e.state {
		case Added:
			op = store.OpInsert
		case Modified:
			op = store.OpUpdate
		case Deleted:
			op = store.OpDelete
		default:
			continue
		}
		change := store.Change{Op: op, Entity: e.entity, Columns: append([]string(nil), e.columns...)}
		if op == store.OpUpdate {
			change.Links = append([]store.LinkChange(nil), e.linkChanges...)
		}
		changes = append(changes, change)
		entries = append(entries, e)
	}
	return changes, entries
}

// AcceptChanges applies a successful persist: written columns are copied
// back, Added and Modified entries become Unchanged and Deleted entries
// are detached. entries and result.Entities are parallel.
func (t *Tracker) AcceptChanges(entries []*Entry, result *store.PersistResult) {
	for i, e := range entries {
		written := result.Entities[i]
		switch e.state {
		case Added:
			t.src.CopyColumns(e.entity, written)
			if o, ok := e.entity.(store.Owner); ok {
				o.AdoptOwned(e.entity.GetID())
			}
			t.byID[identity{typ: reflect.TypeOf(e.entity), id: e.entity.GetID()}] = e
			t.accept(e)
		case Modified:
			t.src.CopyColumns(e.entity, written)
			t.accept(e)
		case Deleted:
			t.detach(e)
		}
	}
}

func (t *Tracker) accept(e *Entry) {
	e.state = Unchanged
	e.columns = nil
	e.linkChanges = nil
	e.snapshot = t.src.Snapshot(e.entity)
	e.links = snapshotLinks(e.entity)
}

func (t *Tracker) detach(e *Entry) {
	e.state = Detached
	delete(t.byEntity, e.entity)
	if id := e.entity.GetID(); id != 0 {
		key := identity{typ: reflect.TypeOf(e.entity), id: id}
		if t.byID[key] == e {
			delete(t.byID, key)
		}
	}
	for i, other := range t.entries {
		if other == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

// Close detaches every entry. The tracker rejects further operations.
func (t *Tracker) Close() {
	for _, e := range t.entries {
		e.state = Detached
	}
	t.entries = nil
	t.byEntity = make(map[store.Entity]*Entry)
	t.byID = make(map[identity]*Entry)
	t.closed = true
}
