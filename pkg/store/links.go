package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

// InsertLink persists a new cross-chain link. Links are append-only.
func (s *Store) InsertLink(ctx context.Context, link *model.CrossChainLink) error {
	_, err := s.db.NewInsert().
		Model(toLinkDao(link)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// GetLink retrieves a link by id.
func (s *Store) GetLink(ctx context.Context, id string) (*model.CrossChainLink, error) {
	d := new(dao.CrossChainLinkDao)
	err := s.db.NewSelect().
		Model(d).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return toLink(d), nil
}

// LinksByWallet returns links where the wallet appears as either the source
// or the destination, most recent first.
func (s *Store) LinksByWallet(ctx context.Context, address string, limit int) ([]*model.CrossChainLink, error) {
	if limit <= 0 {
		limit = 50
	}

	var daos []dao.CrossChainLinkDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("source_wallet_address = ? OR destination_wallet_address = ?", address, address).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list links by wallet: %w", err)
	}

	links := make([]*model.CrossChainLink, len(daos))
	for i := range daos {
		links[i] = toLink(&daos[i])
	}
	return links, nil
}

// LinkStats returns link counts grouped by (link_type, confidence) over the
// trailing window.
func (s *Store) LinkStats(ctx context.Context, window time.Duration) ([]*model.LinkStat, error) {
	since := time.Now().Add(-window)

	var rows []struct {
		LinkType   string `bun:"link_type"`
		Confidence string `bun:"confidence"`
		Count      int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*dao.CrossChainLinkDao)(nil)).
		ColumnExpr("link_type").
		ColumnExpr("confidence").
		ColumnExpr("count(*) AS count").
		Where("created_at >= ?", since).
		GroupExpr("link_type, confidence").
		OrderExpr("link_type, confidence").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate link stats: %w", err)
	}

	stats := make([]*model.LinkStat, len(rows))
	for i, row := range rows {
		stats[i] = &model.LinkStat{
			LinkType:   model.LinkType(row.LinkType),
			Confidence: model.ConfidenceBand(row.Confidence),
			Count:      row.Count,
		}
	}
	return stats, nil
}

// CountLinksReferencing returns the number of links holding the given
// transaction id. Used by invariant tests.
func (s *Store) CountLinksReferencing(ctx context.Context, txID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*dao.CrossChainLinkDao)(nil)).
		Where("? = ANY(bridge_transaction_ids)", txID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}
