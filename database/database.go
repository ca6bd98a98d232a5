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
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"
)

// Database owns one managed connection.
type Database struct {
	manager AbstractDatabaseManager
}

// Open validates cfg, connects and runs migrations when
// cfg.MigrateConfig.EnableMigrateOnStartup is set. Close releases the
// connection.
func Open(ctx context.Context, cfg *Config, opts ...ManagerOption) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if _, ok := lookupDriver(cfg.ConnectionConfig.Type); !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v",
			cfg.ConnectionConfig.Type, SupportedTypes())
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	d := &Database{manager: NewDatabaseManager(cfg, opts...)}
	if err := d.manager.Connect(ctx); err != nil {
		return nil, Classify("connect", err)
	}
	if cfg.MigrateConfig.EnableMigrateOnStartup {
		if err := d.manager.RunMigrations(ctx); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return d, nil
}

// Manager returns the connection manager.
func (d *Database) Manager() AbstractDatabaseManager { return d.manager }

// DB returns the Bun handle, or nil once closed.
func (d *Database) DB() *bun.DB { return d.manager.GetDB() }

// SQLDB returns the underlying pool, or nil once closed.
func (d *Database) SQLDB() *sql.DB { return d.manager.GetSQLDB() }

func (d *Database) Health(ctx context.Context) *HealthStatus { return d.manager.HealthCheck(ctx) }

func (d *Database) Stats() *DBStats { return d.manager.GetStats() }

func (d *Database) SetLogger(logger Logger) { d.manager.SetLogger(logger) }

func (d *Database) Close() error { return d.manager.Disconnect() }
