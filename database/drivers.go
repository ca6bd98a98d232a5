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
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// sqlDriver describes how one ConnectionConfig.Type is opened.
type sqlDriver struct {
	name    string
	dialect func() schema.Dialect
	dsn     func(cfg *ConnectionConfig) string
	// init runs once on a fresh connection.
	init []string
}

var drivers = map[string]sqlDriver{
	"mysql": {
		name:    "mysql",
		dialect: func() schema.Dialect { return mysqldialect.New() },
		dsn:     mysqlDSN,
	},
	"postgres": {
		name:    "postgres",
		dialect: func() schema.Dialect { return pgdialect.New() },
		dsn:     postgresDSN,
	},
	"pgx": {
		name:    "pgx",
		dialect: func() schema.Dialect { return pgdialect.New() },
		dsn:     postgresDSN,
	},
	"sqlite": {
		name:    sqliteshim.ShimName,
		dialect: func() schema.Dialect { return sqlitedialect.New() },
		dsn:     sqliteDSN,
		init:    []string{"PRAGMA foreign_keys = ON"},
	},
}

var driverAliases = map[string]string{
	"postgresql": "postgres",
	"sqlite3":    "sqlite",
}

// lookupDriver resolves a configured type, case-insensitively.
func lookupDriver(typ string) (sqlDriver, bool) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if alias, ok := driverAliases[key]; ok {
		key = alias
	}
	d, ok := drivers[key]
	return d, ok
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	return []string{"mysql", "postgres", "postgresql", "pgx", "sqlite", "sqlite3"}
}

func (d sqlDriver) open(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open(d.name, d.dsn(cfg))
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, d.dialect()), nil
}

func mysqlDSN(cfg *ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
}

// postgresDSN serves both lib/pq and the pgx stdlib driver.
func postgresDSN(cfg *ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		sslMode, int(cfg.ConnectTimeout.Seconds()))
}

// sqliteDSN keeps in-memory and URI names verbatim and maps a plain name to
// a file next to the working directory.
func sqliteDSN(cfg *ConnectionConfig) string {
	name := cfg.DSN
	if name == "" {
		name = cfg.DBName
	}
	if name == ":memory:" || strings.HasPrefix(name, "file:") || strings.HasSuffix(name, ".db") {
		return name
	}
	return name + ".db"
}
