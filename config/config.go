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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/utils"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates nesting levels:
// PLUTO_DATABASE__MAX_OPEN_CONNS -> database.max_open_conns.
const EnvPrefix = "PLUTO_"

// Config is the root configuration of the data-access layer.
type Config struct {
	Database database.ConnectionConfig `koanf:"database" yaml:"database" validate:"required"`
	Migrate  database.MigrateConfig    `koanf:"migrate" yaml:"migrate"`
	Log      LogConfig                 `koanf:"log" yaml:"log"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns a sqlite configuration with migrations enabled.
func Default() *Config {
	dbCfg := database.DefaultConfig()
	return &Config{
		Database: dbCfg.ConnectionConfig,
		Migrate:  dbCfg.MigrateConfig,
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, the
// optional dotenv files (".env" when none are named) and PLUTO_ variables,
// in that order, then validates it.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DatabaseConfig returns the settings consumed by database.Open.
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		ConnectionConfig: c.Database,
		MigrateConfig:    c.Migrate,
	}
}

// ApplyLogging configures the utils logger registry from c.Log.
func (c *Config) ApplyLogging() {
	if c.Log.Format != "" {
		utils.ConfigureConsoleLogFormat(c.Log.Format)
	}
	if c.Log.Level != "" {
		utils.ConfigureLogLevel(c.Log.Level)
	}
}
