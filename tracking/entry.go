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
	"errors"
	"reflect"

	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
)

// State is the lifecycle position of a tracked entity.
type State int

const (
	Detached State = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "detached"
	}
}

// Entry is the tracking record of one entity.
type Entry struct {
	tracker  *Tracker
	entity   store.Entity
	state    State
	snapshot map[string]any
	columns  []string
	// links holds the related entities of each join-backed relation as
	// last loaded or written; linkChanges the difference found by detect.
	links       map[string][]store.Entity
	linkChanges []store.LinkChange
}

// Entity returns the tracked instance.
func (e *Entry) Entity() store.Entity { return e.entity }

// State runs change detection for the entry and returns its state.
func (e *Entry) State() State {
	if e.tracker.closed || e.state == Detached {
		return Detached
	}
	e.tracker.detect(e)
	return e.state
}

// ModifiedColumns returns the columns that differ from the snapshot.
func (e *Entry) ModifiedColumns() []string {
	e.State()
	return append([]string(nil), e.columns...)
}

// LinkChanges returns the join rows to add and remove for the entity.
func (e *Entry) LinkChanges() []store.LinkChange {
	e.State()
	return append([]store.LinkChange(nil), e.linkChanges...)
}

// Reload overwrites the entity columns with the stored row, restores loaded
// join-backed relations to their last saved members and resets the entry
// to Unchanged. A row that no longer exists detaches the entry.
func (e *Entry) Reload(ctx context.Context) error {
	t := e.tracker
	if err := t.check("reload"); err != nil {
		return err
	}
	switch e.state {
	case Detached:
		return errs.InvalidState("reload", "entity is detached")
	case Added:
		return errs.InvalidState("reload", "added %s has not been saved", t.src.EntityName(e.entity))
	}

	fresh := reflect.New(reflect.TypeOf(e.entity).Elem()).Interface().(store.Entity)
	if err := t.src.Load(ctx, fresh, e.entity.GetID()); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			t.detach(e)
		}
		return err
	}
	t.src.CopyColumns(e.entity, fresh)
	if l, ok := e.entity.(store.Linked); ok {
		for rel, before := range e.links {
			if l.Linked(rel) != nil {
				l.SetLinked(rel, before)
			}
		}
	}
	e.snapshot = t.src.Snapshot(e.entity)
	e.columns = nil
	e.linkChanges = nil
	e.state = Unchanged
	return nil
}
