package sentineldb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/chainscope/bridge-sentinel/pkg/pgutil/migrations"
	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating api_keys table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.APIKeyDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.APIKeyDao{}, "user_id", "status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping api_keys table...")
		return mghelper.DropTables(ctx, db, &dao.APIKeyDao{})
	})
}
