// Package db embeds the Postgres migration files applied at startup.
package db

import "embed"

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Migrations is the embedded migrations tree rooted at the migration files.
var Migrations = migrationsFS
