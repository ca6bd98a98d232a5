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

	"github.com/tomoncle/pluto/types"
)

// VersionColumn is the optimistic concurrency column of Versioned entities.
const VersionColumn = "version"

// Entity is a persistent object with a surrogate integer identity. Zero
// means the identity has not been assigned yet.
type Entity interface {
	GetID() int64
}

// Versioned entities carry an optimistic concurrency version.
type Versioned interface {
	GetVersion() int64
	SetVersion(v int64)
}

// Validatable entities check their attribute constraints.
type Validatable interface {
	Validate() error
}

// Resolver maps an entity of the batch being persisted to the copy that is
// written for it. Entities outside the batch map to themselves.
type Resolver func(entity any) any

// Linker entities copy identities of referenced entities into their foreign
// key columns before they are written.
type Linker interface {
	LinkForeignKeys(resolve Resolver)
}

// Owner entities insert dependent rows right after their own insert.
type Owner interface {
	// OwnedRows returns the rows to insert for the owner with identity id.
	OwnedRows(id int64, resolve Resolver) ([]any, error)
	// AdoptOwned updates the owner's in-memory dependents after a successful commit.
	AdoptOwned(id int64)
}

// Relinker entities repoint or drop a referenced entity whose identity no
// longer matches an edited foreign key column. changed holds the columns
// that differ from the snapshot; lookup returns the tracked entity of
// model's type with identity id, or nil.
type Relinker interface {
	RelinkReferences(changed map[string]bool, lookup func(model any, id int64) any)
}

// Linked entities own many-to-many join rows.
type Linked interface {
	// LinkRelations names the relations backed by join rows, e.g. "Tags".
	LinkRelations() []string
	// Linked returns the related entities of relation. A nil slice means
	// the relation was not loaded.
	Linked(relation string) []Entity
	// SetLinked replaces the related entities of relation.
	SetLinked(relation string, targets []Entity)
	// LinkRow returns the join row of relation between owner and target.
	LinkRow(relation string, owner, target int64) any
}

// Constrained entities declare the integrity rules checked when they are written.
type Constrained interface {
	Constraints() Constraints
}

// Reference is a row that must exist when the entity is inserted or updated.
type Reference struct {
	Model any
	ID    int64
	Name  string
}

// Dependent names the rows of Model whose Column holds the entity identity.
type Dependent struct {
	Model  any
	Column string
	Name   string
}

// Constraints lists references to check, dependents deleted along with the
// entity and dependents whose presence blocks its deletion.
type Constraints struct {
	References []Reference
	Cascade    []Dependent
	Restrict   []Dependent
}

type Operation int

const (
	OpInsert Operation = iota + 1
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one staged write. Columns lists the modified columns of an
// update and Links the join rows written along with it.
type Change struct {
	Op      Operation
	Entity  Entity
	Columns []string
	Links   []LinkChange
}

// LinkChange lists the entities linked to and unlinked from an owner
// through one many-to-many relation.
type LinkChange struct {
	Relation string
	Added    []Entity
	Removed  []Entity
}

// PersistResult reports a committed batch. AssignedIDs and Entities are
// parallel to the submitted changes; Entities are the written copies.
type PersistResult struct {
	AssignedIDs  []int64
	Entities     []Entity
	RowsAffected int64
}

// QuerySpec accumulates the parts of a select. Model, when set, names the
// table while results are scanned into a projection destination.
type QuerySpec struct {
	Model     any
	Filters   []types.Filter
	Columns   []string
	Joins     []string
	GroupBy   []string
	Orders    []string
	Relations []string
	Offset    int
	Limit     int
}

// Clone returns a copy that shares no slices with s.
func (s *QuerySpec) Clone() *QuerySpec {
	if s == nil {
		return &QuerySpec{}
	}
	cp := *s
	cp.Filters = append([]types.Filter(nil), s.Filters...)
	cp.Columns = append([]string(nil), s.Columns...)
	cp.Joins = append([]string(nil), s.Joins...)
	cp.GroupBy = append([]string(nil), s.GroupBy...)
	cp.Orders = append([]string(nil), s.Orders...)
	cp.Relations = append([]string(nil), s.Relations...)
	return &cp
}

// Schema exposes the column and relation metadata of mapped entities.
type Schema interface {
	EntityName(entity any) string
	// Snapshot returns the non primary key column values of entity.
	Snapshot(entity any) map[string]any
	Clone(entity any) any
	// CopyColumns copies every column value of src into dst.
	CopyColumns(dst, src any)
	// CopyRelations copies the loaded (non-nil) relations of src into dst.
	CopyRelations(dst, src any)
	// ResolveRelations replaces every loaded related entity by canonical(entity).
	ResolveRelations(entity any, canonical func(any) any)
}

// Store opens sessions against the database.
type Store interface {
	BeginSession(ctx context.Context) (Session, error)
}

// Session is one logical work scope against the store. It is not safe for
// concurrent use.
type Session interface {
	Schema
	Select(ctx context.Context, spec *QuerySpec, dest any) error
	Count(ctx context.Context, spec *QuerySpec, model any) (int, error)
	Exists(ctx context.Context, spec *QuerySpec, model any) (bool, error)
	// Load reads the row with identity id into model.
	Load(ctx context.Context, model Entity, id int64) error
	// Persist writes changes in one transaction. The caller's entities are
	// never modified.
	Persist(ctx context.Context, changes []Change) (*PersistResult, error)
	Close() error
}
