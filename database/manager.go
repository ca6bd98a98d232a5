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
	"sync"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

// ManagerOption customizes a database manager.
type ManagerOption func(*bunManager)

// WithRegistry selects the models registered on the connection and migrated.
func WithRegistry(registry ModelRegistry) ManagerOption {
	return func(m *bunManager) {
		m.registry = registry
	}
}

// WithQueryHooks adds hooks installed on every connection the manager opens.
func WithQueryHooks(hooks ...bun.QueryHook) ManagerOption {
	return func(m *bunManager) {
		m.hooks = append(m.hooks, hooks...)
	}
}

type bunManager struct {
	config   ConnectionConfig
	migrate  MigrateConfig
	registry ModelRegistry
	hooks    []bun.QueryHook
	counter  *QueryCounter
	logger   Logger

	mu     sync.RWMutex
	db     *bun.DB
	sqlDB  *sql.DB
	health HealthStatus

	retries atomic.Int32
	monitor *monitor
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// If cfg is nil, DefaultConfig is used.
func NewDatabaseManager(cfg *Config, opts ...ManagerOption) AbstractDatabaseManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &bunManager{
		config:   cfg.ConnectionConfig,
		migrate:  cfg.MigrateConfig,
		registry: defaultRegistry,
		counter:  NewQueryCounter(),
		logger:   GetLogger(),
	}
	if m.config.ConnectTimeout <= 0 {
		m.config.ConnectTimeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *bunManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	driver, ok := lookupDriver(m.config.Type)
	if !ok {
		return fmt.Errorf("unsupported database type: %s", m.config.Type)
	}
	sqlDB, db, err := driver.open(&m.config)
	if err != nil {
		m.health.LastError = err.Error()
		return fmt.Errorf("open %s: %w", m.config.Type, err)
	}
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		m.health.LastError = err.Error()
		return fmt.Errorf("ping %s: %w", m.config.Type, err)
	}
	for _, stmt := range driver.init {
		if _, err := db.ExecContext(pingCtx, stmt); err != nil {
			_ = db.Close()
			m.health.LastError = err.Error()
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	m.install(db)
	m.db, m.sqlDB = db, sqlDB
	m.health = HealthStatus{Healthy: true, Connected: true, LastCheckTime: time.Now()}
	m.retries.Store(0)

	if m.config.HealthCheckInterval > 0 && m.monitor == nil {
		m.monitor = startMonitor(m, m.config.HealthCheckInterval)
	}
	m.logger.Info("database connected", "type", m.config.Type, "host", m.config.Host)
	return nil
}

// install registers models and query hooks on a fresh connection.
func (m *bunManager) install(db *bun.DB) {
	// join models go first so relations can resolve them
	instances := m.registry.Instances()
	for i := len(instances) - 1; i >= 0; i-- {
		db.RegisterModel(instances[i])
	}

	db.AddQueryHook(m.counter)
	if m.config.EnableQueryLog {
		if m.config.QueryLogFormat == "color" {
			db.AddQueryHook(NewQueryHook(nil, true))
		} else {
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}
	}
	if m.config.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: m.config.SlowQueryTime, logger: m.logger})
	}
	for _, hook := range m.hooks {
		db.AddQueryHook(hook)
	}
}

func (m *bunManager) Disconnect() error {
	m.mu.Lock()
	mon := m.monitor
	m.monitor = nil
	m.mu.Unlock()
	// the monitor takes the lock itself, so stop it unlocked
	mon.stop()
	return m.closeConn()
}

func (m *bunManager) closeConn() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db, m.sqlDB = nil, nil
	m.health.Connected = false
	m.health.Healthy = false
	if err != nil {
		m.logger.Error("close database", "error", err)
	} else {
		m.logger.Info("database connection closed")
	}
	return err
}

func (m *bunManager) Reconnect(ctx context.Context) error {
	m.logger.Info("reconnecting to database", "type", m.config.Type)
	if err := m.closeConn(); err != nil {
		m.logger.Warn("close before reconnect", "error", err)
	}
	return m.Connect(ctx)
}

func (m *bunManager) Ping(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (m *bunManager) GetDB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *bunManager) GetSQLDB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sqlDB
}

func (m *bunManager) HealthCheck(ctx context.Context) *HealthStatus {
	m.mu.RLock()
	db, sqlDB := m.db, m.sqlDB
	m.mu.RUnlock()

	start := time.Now()
	status := HealthStatus{LastCheckTime: start}
	if db == nil {
		status.LastError = "database not connected"
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		status.ResponseTime = time.Since(start)
		status.Connected = err == nil
		status.Healthy = err == nil
		if err != nil {
			status.LastError = err.Error()
		}
		stats := sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	m.mu.Lock()
	m.health = status
	m.mu.Unlock()
	return &status
}

func (m *bunManager) LastHealth() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// retryConnect reconnects after a failed health check, up to MaxReconnectTries
// consecutive attempts.
func (m *bunManager) retryConnect(ctx context.Context) {
	if !m.config.EnableReconnect {
		return
	}
	try := m.retries.Add(1)
	if int(try) > m.config.MaxReconnectTries {
		if int(try) == m.config.MaxReconnectTries+1 {
			m.logger.Error("giving up on reconnect", "tries", try-1)
		}
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.config.ReconnectInterval):
	}
	connectCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := m.Reconnect(connectCtx); err != nil {
		m.logger.Error("reconnect failed", "error", err, "try", try)
		return
	}
	m.logger.Info("reconnected", "try", try)
}

func (m *bunManager) GetStats() *DBStats {
	result := &DBStats{
		Queries:       m.counter.Total(),
		FailedQueries: m.counter.Failed(),
	}
	sqlDB := m.GetSQLDB()
	if sqlDB == nil {
		return result
	}
	stats := sqlDB.Stats()
	result.MaxOpenConns = stats.MaxOpenConnections
	result.OpenConns = stats.OpenConnections
	result.InUse = stats.InUse
	result.Idle = stats.Idle
	result.WaitCount = stats.WaitCount
	result.WaitDuration = stats.WaitDuration
	result.MaxIdleClosed = stats.MaxIdleClosed
	result.MaxIdleTimeClosed = stats.MaxIdleTimeClosed
	result.MaxLifetimeClosed = stats.MaxLifetimeClosed
	return result
}

func (m *bunManager) RunMigrations(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return NewMigrationManager(db, m.logger, m.registry, m.migrate).RunMigrations(ctx)
}

func (m *bunManager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// monitor pings the database on a fixed interval until stopped.
type monitor struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startMonitor(m *bunManager, interval time.Duration) *monitor {
	ctx, cancel := context.WithCancel(context.Background())
	mon := &monitor{cancel: cancel}
	mon.wg.Add(1)
	go func() {
		defer mon.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if status := m.HealthCheck(ctx); !status.Healthy && ctx.Err() == nil {
					m.logger.Warn("database unhealthy", "error", status.LastError)
					m.retryConnect(ctx)
				}
			}
		}
	}()
	return mon
}

func (mon *monitor) stop() {
	if mon == nil {
		return
	}
	mon.cancel()
	mon.wg.Wait()
}
