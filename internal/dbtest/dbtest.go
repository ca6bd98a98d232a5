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

// Package dbtest opens throwaway in-memory databases migrated with the
// domain schema.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/store"
)

// Env is a migrated database private to one test.
type Env struct {
	DB       *bun.DB
	Store    *store.BunStore
	Registry database.ModelRegistry
	// Queries counts every statement sent to DB.
	Queries *database.QueryCounter
}

// Open migrates a fresh shared-cache sqlite memory database named after
// t and closes it when t finishes.
func Open(t testing.TB) *Env {
	t.Helper()
	registry := database.NewModelRegistry()
	domain.Register(registry)

	cfg := database.DefaultConfig()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	cfg.ConnectionConfig.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.HealthCheckInterval = 0

	counter := database.NewQueryCounter()
	conn, err := database.Open(context.Background(), cfg,
		database.WithRegistry(registry),
		database.WithQueryHooks(counter),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db := conn.DB()
	counter.Reset()
	return &Env{
		DB:       db,
		Store:    store.New(db, store.WithRegistry(registry)),
		Registry: registry,
		Queries:  counter,
	}
}

// Insert writes rows directly, bypassing sessions.
func (e *Env) Insert(t testing.TB, rows ...any) {
	t.Helper()
	for _, row := range rows {
		_, err := e.DB.NewInsert().Model(row).Exec(context.Background())
		require.NoError(t, err)
	}
}

// Course inserts a version 1 course with its cover and returns it.
func (e *Env) Course(t testing.TB, author *domain.Author, name, price string, level domain.CourseLevel) *domain.Course {
	t.Helper()
	c := &domain.Course{
		Name:        name,
		Description: name + " description",
		FullPrice:   mustDecimal(t, price),
		Level:       level,
		AuthorID:    author.ID,
		Version:     1,
	}
	e.Insert(t, c)
	e.Insert(t, &domain.Cover{ID: c.ID})
	return c
}

// Author inserts a version 1 author and returns it.
func (e *Env) Author(t testing.TB, name string) *domain.Author {
	t.Helper()
	a := &domain.Author{Name: name, Version: 1}
	e.Insert(t, a)
	return a
}

// Tag inserts a version 1 tag and returns it.
func (e *Env) Tag(t testing.TB, name string) *domain.Tag {
	t.Helper()
	tag := &domain.Tag{Name: name, Version: 1}
	e.Insert(t, tag)
	return tag
}
