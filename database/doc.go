// Package database provides connection management over Bun for sqlite,
// postgres and mysql, migrations, foreign keys, the model registry, query
// hooks, SQL error classification, health checks and logging.
package database
