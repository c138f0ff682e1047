package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

// CandidateQuery describes the persisted-candidate search issued by the
// correlation engine for a newly observed transaction.
type CandidateQuery struct {
	Protocol     model.BridgeProtocol
	TokenAddress string
	Amount       decimal.Decimal
	// AmountTolerance is the relative tolerance, e.g. 0.01 for ±1%.
	AmountTolerance float64
	Center          time.Time
	// TimeWindow is the half-width of the search window around Center.
	TimeWindow time.Duration
	ExcludeID  string
	Limit      int
}

// InsertTransaction persists a canonical bridge transaction. The insert is
// idempotent on (transaction_hash, bridge_protocol); it returns false when
// the row already existed.
func (s *Store) InsertTransaction(ctx context.Context, tx *model.BridgeTransaction) (bool, error) {
	res, err := s.db.NewInsert().
		Model(toTransactionDao(tx)).
		On("CONFLICT (transaction_hash, bridge_protocol) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows == 1, nil
}

// GetTransaction retrieves a transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*model.BridgeTransaction, error) {
	d := new(dao.BridgeTransactionDao)
	err := s.db.NewSelect().
		Model(d).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return toTransaction(d), nil
}

// FindUnprocessedCandidates searches persisted, not-yet-linked transactions
// matching the query: same protocol and token, amount within tolerance,
// timestamp within the window, excluding the triggering transaction itself.
// Results are ordered by ascending timestamp for deterministic tie-breaking.
func (s *Store) FindUnprocessedCandidates(ctx context.Context, q CandidateQuery) ([]*model.BridgeTransaction, error) {
	tolerance := decimal.NewFromFloat(q.AmountTolerance)
	delta := q.Amount.Mul(tolerance).Abs()
	lowAmount := q.Amount.Sub(delta)
	highAmount := q.Amount.Add(delta)

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var daos []dao.BridgeTransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("bridge_protocol = ?", string(q.Protocol)).
		Where("token_address = ?", q.TokenAddress).
		Where("amount BETWEEN ? AND ?", lowAmount.String(), highAmount.String()).
		Where("timestamp BETWEEN ? AND ?", q.Center.Add(-q.TimeWindow), q.Center.Add(q.TimeWindow)).
		Where("processed = FALSE").
		Where("id != ?", q.ExcludeID).
		Order("timestamp ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}

	candidates := make([]*model.BridgeTransaction, len(daos))
	for i := range daos {
		candidates[i] = toTransaction(&daos[i])
	}
	return candidates, nil
}

// MarkProcessed atomically consumes the given transactions into a link. The
// UPDATE carries a processed = FALSE precondition and runs inside a
// transaction; if any target row was already consumed the whole claim is
// rolled back and ErrConflict is returned, so a transaction can never be
// attached to two links and a partial claim can never survive a crash.
func (s *Store) MarkProcessed(ctx context.Context, ids []string, linkID string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no transaction ids to mark")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*dao.BridgeTransactionDao)(nil)).
			Set("processed = TRUE").
			Set("linked_link_id = ?", linkID).
			Where("id IN (?)", bun.In(ids)).
			Where("processed = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark transactions processed: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if int(rows) != len(ids) {
			// Some leg was grabbed by a concurrent link attempt.
			// Returning the conflict rolls back the whole claim so the
			// untouched legs stay matchable.
			return ErrConflict
		}
		return nil
	})
}

// RevertProcessed releases transactions claimed for a link that was never
// persisted, making them matchable again.
func (s *Store) RevertProcessed(ctx context.Context, linkID string) error {
	_, err := s.db.NewUpdate().
		Model((*dao.BridgeTransactionDao)(nil)).
		Set("processed = FALSE").
		Set("linked_link_id = NULL").
		Where("linked_link_id = ?", linkID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to revert processed marks: %w", err)
	}
	return nil
}

// ListUnprocessedSince returns unprocessed transactions observed at or after
// the given time, oldest first. Used to rebuild the pending buffer.
func (s *Store) ListUnprocessedSince(ctx context.Context, since time.Time) ([]*model.BridgeTransaction, error) {
	var daos []dao.BridgeTransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("processed = FALSE").
		Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed transactions: %w", err)
	}

	txs := make([]*model.BridgeTransaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, nil
}
