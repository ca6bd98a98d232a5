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
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"
)

// Migration is the row recorded for each applied step.
type Migration struct {
	bun.BaseModel `bun:"table:pluto_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name,notnull"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
	Description string    `bun:"description"`
}

// Step is one schema change. Up runs inside the transaction that records it.
type Step struct {
	Version     string
	Name        string
	Description string
	Up          func(ctx context.Context, db bun.IDB) error
}

// MigrationManager creates the tables and indexes of a registry, one
// recorded step at a time.
type MigrationManager struct {
	db       *bun.DB
	logger   Logger
	registry ModelRegistry
	config   MigrateConfig
}

// NewMigrationManager returns a manager over registry; nil selects the
// default registry and the global logger.
func NewMigrationManager(db *bun.DB, logger Logger, registry ModelRegistry, cfg MigrateConfig) *MigrationManager {
	if registry == nil {
		registry = defaultRegistry
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, registry: registry, config: cfg}
}

// Steps lists every step in version order.
func (mm *MigrationManager) Steps() []Step {
	steps := []Step{
		{Version: "001", Name: "create_tables", Description: "create registered tables", Up: mm.createTables},
		{Version: "002", Name: "create_indexes", Description: "create registered indexes", Up: mm.createIndexes},
	}
	slices.SortFunc(steps, func(a, b Step) int { return cmp.Compare(a.Version, b.Version) })
	return steps
}

// RunMigrations applies every step not yet recorded.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not connected")
	}
	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	pending, err := mm.Pending(ctx)
	if err != nil {
		return err
	}
	for _, step := range pending {
		if err := mm.apply(ctx, step); err != nil {
			return fmt.Errorf("migration %s %s: %w", step.Version, step.Name, err)
		}
		mm.logger.Info("migration applied", "version", step.Version, "name", step.Name)
	}
	return nil
}

// Pending returns the steps without a recorded row.
func (mm *MigrationManager) Pending(ctx context.Context) ([]Step, error) {
	applied, err := mm.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}
	var pending []Step
	for _, step := range mm.Steps() {
		if !done[step.Version] {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

func (mm *MigrationManager) apply(ctx context.Context, step Step) error {
	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := step.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     step.Version,
			Name:        step.Name,
			AppliedAt:   time.Now(),
			Description: step.Description,
		}).Exec(ctx)
		return err
	})
}

func (mm *MigrationManager) createTables(ctx context.Context, db bun.IDB) error {
	fkm := NewForeignKeyManager(mm.logger, mm.registry)
	if mm.config.EnableForeignKey {
		if problems := fkm.Validate(); len(problems) > 0 {
			for _, err := range problems {
				mm.logger.Debug("invalid foreign key", "error", err)
			}
			return fmt.Errorf("%d invalid foreign key constraints", len(problems))
		}
	}
	for _, model := range mm.registry.Instances() {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if mm.config.EnableForeignKey {
			q = fkm.Apply(q, mm.db.Table(modelType(model)).Name)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}
	return nil
}

func (mm *MigrationManager) createIndexes(ctx context.Context, db bun.IDB) error {
	for _, idx := range mm.registry.Indexes() {
		_, err := db.NewCreateIndex().
			Table(idx.Table).
			Index(idx.Name).
			Column(idx.Columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// GetAppliedMigrations returns the recorded steps in version order.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var applied []Migration
	err := mm.db.NewSelect().Model(&applied).Order("version ASC").Scan(ctx)
	return applied, err
}
