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
		log.Println("creating cross_chain_links table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.CrossChainLinkDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.CrossChainLinkDao{},
			"source_wallet_address", "destination_wallet_address", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping cross_chain_links table...")
		return mghelper.DropTables(ctx, db, &dao.CrossChainLinkDao{})
	})
}
