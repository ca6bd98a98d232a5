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
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, running migrations and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	// LastHealth returns the most recent status recorded by Connect,
	// HealthCheck or the monitor.
	LastHealth() HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	RunMigrations(ctx context.Context) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats plus the query counters of the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	Queries           int64         `json:"queries"`
	FailedQueries     int64         `json:"failed_queries"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `koanf:"type" yaml:"type" validate:"required,oneof=postgres postgresql pgx mysql sqlite sqlite3"`
	DSN                 string        `koanf:"dsn" yaml:"dsn"`
	Host                string        `koanf:"host" yaml:"host"`
	Port                int           `koanf:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Username            string        `koanf:"username" yaml:"username"`
	Password            string        `koanf:"password" yaml:"password"`
	DBName              string        `koanf:"dbname" yaml:"dbname"`
	SSLMode             string        `koanf:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `koanf:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `koanf:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `koanf:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `koanf:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `koanf:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	EnableReconnect     bool          `koanf:"enable_reconnect" yaml:"enable_reconnect"`
	ReconnectInterval   time.Duration `koanf:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectTries   int           `koanf:"max_reconnect_tries" yaml:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `koanf:"health_check_interval" yaml:"health_check_interval"`
	EnableQueryLog      bool          `koanf:"enable_query_log" yaml:"enable_query_log"`
	QueryLogFormat      string        `koanf:"query_log_format" yaml:"query_log_format" validate:"omitempty,oneof=plain color"`
	SlowQueryTime       time.Duration `koanf:"slow_query_time" yaml:"slow_query_time"`
}

// MigrateConfig controls schema migration behavior on startup.
type MigrateConfig struct {
	EnableMigrateOnStartup bool `koanf:"enable_migrate_on_startup" yaml:"enable_migrate_on_startup"`
	EnableForeignKey       bool `koanf:"enable_foreign_key" yaml:"enable_foreign_key"`
}

// Config aggregates connection and migration settings.
type Config struct {
	ConnectionConfig ConnectionConfig `koanf:"connection" yaml:"connection"`
	MigrateConfig    MigrateConfig    `koanf:"migrate" yaml:"migrate"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                "sqlite",
		DBName:              "pluto",
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		QueryLogFormat:      "plain",
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns the defaults with migrations and foreign keys enabled.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		MigrateConfig: MigrateConfig{
			EnableMigrateOnStartup: true,
			EnableForeignKey:       true,
		},
	}
}
