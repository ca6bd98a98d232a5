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
	"fmt"
	"math"
	"sort"

	"github.com/uptrace/bun"

	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/errs"
)

func (s *bunSession) Persist(ctx context.Context, changes []Change) (*PersistResult, error) {
	if err := s.check(ctx, "persist"); err != nil {
		return nil, err
	}
	result := &PersistResult{
		AssignedIDs: make([]int64, len(changes)),
		Entities:    make([]Entity, len(changes)),
	}
	if len(changes) == 0 {
		return result, nil
	}

	clones := make(map[any]any, len(changes))
	for i, c := range changes {
		cp, ok := s.Clone(c.Entity).(Entity)
		if !ok {
			return nil, errs.InvalidState("persist", "%T is not an entity", c.Entity)
		}
		clones[c.Entity] = cp
		result.Entities[i] = cp
	}
	resolve := func(entity any) any {
		if cp, ok := clones[entity]; ok {
			return cp
		}
		return entity
	}

	order := s.writeOrder(changes)
	err := s.store.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, i := range order {
			entity := result.Entities[i]
			var (
				n   int64
				err error
			)
			switch changes[i].Op {
			case OpInsert:
				n, err = s.insert(ctx, tx, entity, resolve)
			case OpUpdate:
				n, err = s.update(ctx, tx, entity, changes[i], resolve)
			case OpDelete:
				n, err = s.delete(ctx, tx, entity)
			default:
				err = errs.InvalidState("persist", "unknown operation %d", changes[i].Op)
			}
			if err != nil {
				return err
			}
			result.RowsAffected += n
		}
		return nil
	})
	if err != nil {
		s.store.logger.Warn("persist rolled back", "changes", len(changes), "error", err)
		return nil, database.Classify("persist", err)
	}
	for i, e := range result.Entities {
		result.AssignedIDs[i] = e.GetID()
	}
	s.store.logger.Debug("persist committed", "changes", len(changes), "rows", result.RowsAffected)
	return result, nil
}

// writeOrder returns change indexes ordered as inserts by ascending model
// priority, then updates, then deletes by descending model priority.
func (s *bunSession) writeOrder(changes []Change) []int {
	rank := func(c Change) (int, int) {
		p, ok := s.store.registry.Priority(c.Entity)
		if !ok {
			p = math.MaxInt32
		}
		if c.Op == OpDelete {
			p = -p
		}
		return int(c.Op), p
	}
	order := make([]int, len(changes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		opA, pA := rank(changes[order[a]])
		opB, pB := rank(changes[order[b]])
		if opA != opB {
			return opA < opB
		}
		return pA < pB
	})
	return order
}

func (s *bunSession) insert(ctx context.Context, tx bun.Tx, entity Entity, resolve Resolver) (int64, error) {
	name := s.EntityName(entity)
	if l, ok := entity.(Linker); ok {
		l.LinkForeignKeys(resolve)
	}
	if err := s.checkReferences(ctx, tx, entity); err != nil {
		return 0, err
	}
	if v, ok := entity.(Versioned); ok {
		v.SetVersion(1)
	}
	res, err := tx.NewInsert().Model(entity).Exec(ctx)
	if err != nil {
		return 0, database.Classify("insert "+name, err)
	}
	n := rowsAffected(res)

	owner, ok := entity.(Owner)
	if !ok {
		return n, nil
	}
	rows, err := owner.OwnedRows(entity.GetID(), resolve)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		res, err := tx.NewInsert().Model(row).Exec(ctx)
		if err != nil {
			return 0, database.Classify("insert "+s.EntityName(row), err)
		}
		n += rowsAffected(res)
	}
	return n, nil
}

func (s *bunSession) update(ctx context.Context, tx bun.Tx, entity Entity, change Change, resolve Resolver) (int64, error) {
	name := s.EntityName(entity)
	if l, ok := entity.(Linker); ok {
		l.LinkForeignKeys(resolve)
	}
	if err := s.checkReferences(ctx, tx, entity); err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(change.Columns)+1)
	for _, c := range change.Columns {
		if c != VersionColumn {
			cols = append(cols, c)
		}
	}
	v, versioned := entity.(Versioned)
	var old int64
	if versioned {
		old = v.GetVersion()
		v.SetVersion(old + 1)
		cols = append(cols, VersionColumn)
	}
	var n int64
	if len(cols) > 0 {
		q := tx.NewUpdate().Model(entity).Column(cols...).WherePK()
		if versioned {
			q = q.Where("? = ?", bun.Ident(VersionColumn), old)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return 0, database.Classify("update "+name, err)
		}
		n = rowsAffected(res)
		if n == 0 {
			return 0, errs.Conflict("update", name, fmt.Errorf("id %d at version %d is stale or gone", entity.GetID(), old))
		}
	}
	m, err := s.writeLinks(ctx, tx, entity, change.Links, resolve)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

// writeLinks inserts and deletes the join rows of an updated owner.
func (s *bunSession) writeLinks(ctx context.Context, tx bun.Tx, entity Entity, links []LinkChange, resolve Resolver) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}
	owner, ok := entity.(Linked)
	if !ok {
		return 0, errs.InvalidState("update", "%s has no join-backed relations", s.EntityName(entity))
	}
	name := s.EntityName(entity)
	var n int64
	for _, link := range links {
		for _, target := range link.Added {
			t, _ := resolve(target).(Entity)
			if t == nil || t.GetID() == 0 {
				return 0, errs.Validationf(name, "%s %s is neither persisted nor added", s.EntityName(target), link.Relation)
			}
			res, err := tx.NewInsert().Model(owner.LinkRow(link.Relation, entity.GetID(), t.GetID())).Exec(ctx)
			if err != nil {
				return 0, database.Classify("link "+link.Relation, err)
			}
			n += rowsAffected(res)
		}
		for _, target := range link.Removed {
			t, _ := resolve(target).(Entity)
			if t == nil || t.GetID() == 0 {
				continue
			}
			res, err := tx.NewDelete().Model(owner.LinkRow(link.Relation, entity.GetID(), t.GetID())).WherePK().Exec(ctx)
			if err != nil {
				return 0, database.Classify("unlink "+link.Relation, err)
			}
			n += rowsAffected(res)
		}
	}
	return n, nil
}

func (s *bunSession) delete(ctx context.Context, tx bun.Tx, entity Entity) (int64, error) {
	name := s.EntityName(entity)
	id := entity.GetID()
	var n int64
	if c, ok := entity.(Constrained); ok {
		rules := c.Constraints()
		for _, dep := range rules.Restrict {
			found, err := tx.NewSelect().Model(dep.Model).Where("? = ?", bun.Ident(dep.Column), id).Exists(ctx)
			if err != nil {
				return 0, database.Classify("remove "+name, err)
			}
			if found {
				return 0, errs.InvalidState("remove", "%s %d still has %s", name, id, dep.Name)
			}
		}
		for _, dep := range rules.Cascade {
			res, err := tx.NewDelete().Model(dep.Model).Where("? = ?", bun.Ident(dep.Column), id).Exec(ctx)
			if err != nil {
				return 0, database.Classify("remove "+dep.Name, err)
			}
			n += rowsAffected(res)
		}
	}

	q := tx.NewDelete().Model(entity).WherePK()
	v, versioned := entity.(Versioned)
	if versioned {
		q = q.Where("? = ?", bun.Ident(VersionColumn), v.GetVersion())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, database.Classify("remove "+name, err)
	}
	affected := rowsAffected(res)
	if affected == 0 {
		return 0, errs.Conflict("remove", name, fmt.Errorf("id %d is stale or gone", id))
	}
	return n + affected, nil
}

func (s *bunSession) checkReferences(ctx context.Context, tx bun.Tx, entity Entity) error {
	c, ok := entity.(Constrained)
	if !ok {
		return nil
	}
	name := s.EntityName(entity)
	for _, ref := range c.Constraints().References {
		if ref.ID == 0 {
			return errs.Validationf(name, "%s is required", ref.Name)
		}
		found, err := tx.NewSelect().Model(ref.Model).Where("?TableAlias.id = ?", ref.ID).Exists(ctx)
		if err != nil {
			return database.Classify("check "+ref.Name, err)
		}
		if !found {
			return errs.Validationf(name, "%s %d does not exist", ref.Name, ref.ID)
		}
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
