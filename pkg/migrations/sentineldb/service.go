// Package sentineldb holds all the migrations for the sentinel database
package sentineldb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the sentinel database
var Migrations = migrate.NewMigrations()
