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
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/utils"
	"github.com/uptrace/bun"
)

type testAuthor struct {
	bun.BaseModel `bun:"table:test_authors,alias:ta"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type testBook struct {
	bun.BaseModel `bun:"table:test_books,alias:tb"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Title    string `bun:"title,notnull"`
	AuthorID int64  `bun:"author_id,notnull"`
}

func testRegistry() ModelRegistry {
	reg := NewModelRegistry()
	reg.Register(
		NewModelAdapter((*testBook)(nil), 20, ForeignKeyConstraint{
			Table:           "test_books",
			Column:          "author_id",
			ReferenceTable:  "test_authors",
			ReferenceColumn: "id",
			OnDelete:        "RESTRICT",
		}),
		NewModelAdapter((*testAuthor)(nil), 10),
	)
	reg.RegisterIndexes(Index{Name: "idx_test_books_author_id", Table: "test_books", Columns: []string{"author_id"}})
	return reg
}

func memoryConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.ConnectionConfig.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.HealthCheckInterval = 0
	return cfg
}

func TestOpenRunsMigrations(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry()
	cfg := memoryConfig(t)

	d, err := Open(ctx, cfg, WithRegistry(reg))
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	db := d.DB()

	applied, err := NewMigrationManager(db, nil, reg, cfg.MigrateConfig).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_indexes", applied[1].Name)

	// rerun is a no-op
	require.NoError(t, d.Manager().RunMigrations(ctx))
	pending, err := NewMigrationManager(db, nil, reg, cfg.MigrateConfig).Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	author := &testAuthor{Name: "Mosh"}
	_, err = db.NewInsert().Model(author).Exec(ctx)
	require.NoError(t, err)
	assert.NotZero(t, author.ID)

	_, err = db.NewInsert().Model(&testBook{Title: "orphan", AuthorID: author.ID + 100}).Exec(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, Classify("insert", err), errs.ErrValidation)

	var missing testAuthor
	err = db.NewSelect().Model(&missing).Where("id = ?", 999).Scan(ctx)
	assert.ErrorIs(t, Classify("select", err), errs.ErrNotFound)
}

func TestHealthAndStats(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, memoryConfig(t), WithRegistry(testRegistry()))
	require.NoError(t, err)

	status := d.Health(ctx)
	assert.True(t, status.Healthy)
	assert.Empty(t, status.LastError)
	require.NoError(t, d.Manager().Ping(ctx))

	stats := d.Stats()
	assert.Greater(t, stats.Queries, int64(0))
	assert.Equal(t, 1, stats.MaxOpenConns)

	require.NoError(t, d.Close())
	assert.Error(t, d.Manager().Ping(ctx))
	assert.False(t, d.Health(ctx).Healthy)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ConnectionConfig.Type = "oracle"
	_, err := Open(ctx, cfg)
	assert.ErrorContains(t, err, "unsupported database type")

	cfg = memoryConfig(t)
	cfg.ConnectionConfig.Port = 70000
	_, err = Open(ctx, cfg)
	assert.ErrorContains(t, err, "invalid database configuration")

	_, err = Open(ctx, nil)
	assert.Error(t, err)
}

func TestLookupDriver(t *testing.T) {
	d, ok := lookupDriver(" PostgreSQL ")
	require.True(t, ok)
	assert.Equal(t, "postgres", d.name)

	d, ok = lookupDriver("sqlite3")
	require.True(t, ok)
	assert.Equal(t, []string{"PRAGMA foreign_keys = ON"}, d.init)

	_, ok = lookupDriver("oracle")
	assert.False(t, ok)
	for _, typ := range SupportedTypes() {
		_, ok := lookupDriver(typ)
		assert.True(t, ok, typ)
	}
}

func TestPostgresAndMySQLDSN(t *testing.T) {
	cfg := &ConnectionConfig{Username: "u", Password: "p", Host: "h", Port: 5432, DBName: "pluto", ConnectTimeout: 10 * time.Second}
	assert.Equal(t, "postgres://u:p@h:5432/pluto?sslmode=disable&connect_timeout=10", postgresDSN(cfg))
	cfg.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", postgresDSN(cfg))
	assert.Equal(t, "postgres://override", mysqlDSN(cfg))
}

func TestMonitorRecordsHealth(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.ConnectionConfig.HealthCheckInterval = 5 * time.Millisecond
	d, err := Open(ctx, cfg, WithRegistry(testRegistry()))
	require.NoError(t, err)

	connected := d.Manager().LastHealth().LastCheckTime
	assert.Eventually(t, func() bool {
		h := d.Manager().LastHealth()
		return h.Healthy && h.LastCheckTime.After(connected)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Close())
	assert.False(t, d.Manager().LastHealth().Connected)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "pluto.db", sqliteDSN(&ConnectionConfig{DBName: "pluto"}))
	assert.Equal(t, ":memory:", sqliteDSN(&ConnectionConfig{DBName: ":memory:"}))
	assert.Equal(t, "file:x?mode=memory", sqliteDSN(&ConnectionConfig{DSN: "file:x?mode=memory", DBName: "ignored"}))
}

func TestQueryCounter(t *testing.T) {
	ctx := context.Background()
	counter := NewQueryCounter()
	d, err := Open(ctx, memoryConfig(t), WithRegistry(testRegistry()), WithQueryHooks(counter))
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	counter.Reset()

	var authors []testAuthor
	require.NoError(t, d.DB().NewSelect().Model(&authors).Scan(ctx))
	_, err = d.DB().NewSelect().Model((*testAuthor)(nil)).Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), counter.Count("SELECT"))
	assert.Equal(t, int64(2), counter.Total())
	assert.Zero(t, counter.Failed())
}

func TestRegistryOrdersByPriority(t *testing.T) {
	reg := testRegistry()
	reg.Register(NewModelAdapter((*testAuthor)(nil), 99))

	models := reg.Models()
	require.Len(t, models, 2)
	assert.IsType(t, (*testAuthor)(nil), models[0].Instance())

	p, ok := reg.Priority(&testBook{})
	assert.True(t, ok)
	assert.Equal(t, 20, p)
	_, ok = reg.Priority(struct{}{})
	assert.False(t, ok)
}

func TestForeignKeyValidation(t *testing.T) {
	reg := NewModelRegistry()
	reg.Register(NewModelAdapter((*testBook)(nil), 20, ForeignKeyConstraint{
		Table:    "test_books",
		Column:   "author_id",
		OnDelete: "EXPLODE",
	}))
	fkm := NewForeignKeyManager(nil, reg)

	problems := fkm.Validate()
	assert.Len(t, problems, 3)
	assert.Len(t, fkm.ForTable("TEST_BOOKS"), 1)

	query, args := fkm.All()[0].Clause()
	assert.Equal(t, "(?) REFERENCES ? (?) ON DELETE EXPLODE", query)
	assert.Len(t, args, 3)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), errs.ErrNotFound},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, errs.ErrConflict},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, errs.ErrConflict},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, errs.ErrValidation},
		{"pq unique", &pq.Error{Code: "23505"}, errs.ErrConflict},
		{"pq connection", &pq.Error{Code: "08006"}, errs.ErrConnection},
		{"pgx serialization", &pgconn.PgError{Code: "40001"}, errs.ErrConflict},
		{"pgx not null", &pgconn.PgError{Code: "23502"}, errs.ErrValidation},
		{"sqlite check", errors.New("CHECK constraint failed: full_price >= 0"), errs.ErrValidation},
		{"sqlite busy", errors.New("database is locked"), errs.ErrConflict},
		{"bad conn", driver.ErrBadConn, errs.ErrConnection},
		{"conn done", sql.ErrConnDone, errs.ErrConnection},
		{"canceled", context.Canceled, errs.ErrConnection},
		{"kinded", errs.NotFound("course", 1), errs.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("persist", tc.err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.Nil(t, Classify("persist", nil))
	assert.Equal(t, errs.KindUnknown, errs.KindOf(Classify("persist", errors.New("boom"))))
}

func TestLoggerWithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	utils.ConfigureOutput(&buf)
	defer utils.ConfigureOutput(nil)

	log := NewLogrusLogger("DBTEST").With("uow", "abc")
	log.Info("committed", "rows", 3, "dangling")

	out := buf.String()
	assert.Contains(t, out, "committed")
	assert.Contains(t, out, "uow=abc")
	assert.Contains(t, out, "rows=3")
	assert.Contains(t, out, "extra=dangling")

	InitLogger(log)
	assert.Same(t, log, GetLogger())
	InitLogger(nil)
	assert.NotSame(t, log, GetLogger())
}
