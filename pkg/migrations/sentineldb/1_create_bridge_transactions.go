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
		log.Println("creating bridge_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.BridgeTransactionDao{}); err != nil {
			return err
		}
		// Candidate search filters on these columns
		return mghelper.CreateModelIndexes(ctx, db, &dao.BridgeTransactionDao{},
			"bridge_protocol", "token_address", "timestamp", "processed")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge_transactions table...")
		return mghelper.DropTables(ctx, db, &dao.BridgeTransactionDao{})
	})
}
