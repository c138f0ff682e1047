package main

import (
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/migrations/sentineldb"
	"github.com/chainscope/bridge-sentinel/pkg/pgutil"
	mghelper "github.com/chainscope/bridge-sentinel/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database %s: %s", cfg.Database.Database, err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for sentinel database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, sentineldb.Migrations)
	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		mghelper.Exitf(err.Error())
	}
}
