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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Migrate.EnableMigrateOnStartup)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadLayersFileDotenvAndEnvironment(t *testing.T) {
	path := writeFile(t, "pluto.yaml", `
database:
  type: postgres
  host: db.internal
  port: 5432
  dbname: pluto
  slow_query_time: 1s
migrate:
  enable_foreign_key: false
log:
  format: json
`)
	dotenv := writeFile(t, ".env", "PLUTO_DATABASE__USERNAME=from_dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("PLUTO_DATABASE__USERNAME") })
	t.Setenv("PLUTO_DATABASE__MAX_OPEN_CONNS", "7")
	t.Setenv("PLUTO_DATABASE__SLOW_QUERY_TIME", "750ms")
	t.Setenv("PLUTO_LOG__LEVEL", "debug")

	cfg, err := Load(path, dotenv)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "from_dotenv", cfg.Database.Username)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, 750*time.Millisecond, cfg.Database.SlowQueryTime)
	assert.Equal(t, 10, cfg.Database.MaxIdleConns)
	assert.False(t, cfg.Migrate.EnableForeignKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	dbCfg := cfg.DatabaseConfig()
	assert.Equal(t, "db.internal", dbCfg.ConnectionConfig.Host)
	assert.False(t, dbCfg.MigrateConfig.EnableForeignKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PLUTO_DATABASE__TYPE", "oracle")

	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoadReportsBadYAML(t *testing.T) {
	path := writeFile(t, "broken.yaml", "database: [unterminated")

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}
