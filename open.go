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

package pluto

import (
	"context"

	"github.com/tomoncle/pluto/config"
	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/store"
)

// OpenStore applies the logging section of cfg, opens its database and returns
// a store over the default model registry. Closing the returned Database
// releases the store.
func OpenStore(ctx context.Context, cfg *config.Config, opts ...database.ManagerOption) (*store.BunStore, *database.Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyLogging()
	db, err := database.Open(ctx, cfg.DatabaseConfig(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return store.New(db.DB()), db, nil
}
