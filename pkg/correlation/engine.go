package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/internal/metrics"
	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/store"
)

// LinkStore defines the persistence operations the engine needs.
type LinkStore interface {
	FindUnprocessedCandidates(ctx context.Context, q store.CandidateQuery) ([]*model.BridgeTransaction, error)
	InsertLink(ctx context.Context, link *model.CrossChainLink) error
	MarkProcessed(ctx context.Context, ids []string, linkID string) error
	RevertProcessed(ctx context.Context, linkID string) error
	ListUnprocessedSince(ctx context.Context, since time.Time) ([]*model.BridgeTransaction, error)
}

// Announcer receives engine outcomes for fan-out to subscribers and
// downstream streams. Implementations must not block.
type Announcer interface {
	TransactionObserved(tx *model.BridgeTransaction)
	LinkCreated(link *model.CrossChainLink)
	HighRiskDetected(tx *model.BridgeTransaction)
}

// NopAnnouncer discards all engine outcomes.
type NopAnnouncer struct{}

func (NopAnnouncer) TransactionObserved(*model.BridgeTransaction) {}
func (NopAnnouncer) LinkCreated(*model.CrossChainLink)            {}
func (NopAnnouncer) HighRiskDetected(*model.BridgeTransaction)    {}

// Engine correlates bridge transaction legs into cross-chain links. A
// single engine instance runs per deployment; its ingestion queue
// serializes every read-evaluate-write sequence, and the store's
// processed precondition backs the at-most-one-link invariant against
// anything the queue cannot see.
type Engine struct {
	cfg       *config.CorrelationConfig
	store     LinkStore
	buffer    *PendingBuffer
	announcer Announcer
	logger    *zap.Logger

	// work serializes ingestion and sweep passes.
	work chan func()

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEngine creates a correlation engine with its own pending buffer.
func NewEngine(cfg *config.CorrelationConfig, st LinkStore, announcer Announcer, logger *zap.Logger) *Engine {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		buffer:    NewPendingBuffer(),
		announcer: announcer,
		logger:    logger,
		work:      make(chan func(), 256),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start restores the pending buffer from persisted unprocessed rows and
// launches the single-writer loop.
func (e *Engine) Start(ctx context.Context) error {
	since := time.Now().Add(-e.cfg.BufferRetention)
	pending, err := e.store.ListUnprocessedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to restore pending buffer: %w", err)
	}
	for _, tx := range pending {
		e.buffer.Add(tx)
	}
	metrics.PendingBufferSize.Set(float64(e.buffer.Len()))
	e.logger.Info("Correlation engine started",
		zap.Int("restored_pending", len(pending)))

	go e.run()
	return nil
}

// Stop drains the work queue and stops the engine.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
	e.logger.Info("Correlation engine stopped")
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			// Drain whatever was queued before the stop.
			for {
				select {
				case job := <-e.work:
					job()
				default:
					return
				}
			}
		case job := <-e.work:
			job()
		}
	}
}

// submit runs a job on the single-writer loop and waits for it.
func (e *Engine) submit(ctx context.Context, job func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		job()
	}

	select {
	case e.work <- wrapped:
	case <-e.stopCh:
		return errors.New("correlation engine stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ingest processes one newly observed transaction: buffer it, search
// persisted candidates, score every candidate, and link the best pair
// clearing the confidence floor. Persistence errors leave the transaction
// unprocessed for a later sweep; they never crash the caller's stream.
func (e *Engine) Ingest(ctx context.Context, tx *model.BridgeTransaction) error {
	return e.submit(ctx, func() {
		e.ingest(ctx, tx)
	})
}

func (e *Engine) ingest(ctx context.Context, tx *model.BridgeTransaction) {
	e.buffer.Add(tx)
	metrics.PendingBufferSize.Set(float64(e.buffer.Len()))

	e.announcer.TransactionObserved(tx)
	if tx.RiskScore >= e.cfg.HighRiskThreshold {
		e.announcer.HighRiskDetected(tx)
	}

	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		e.logger.Error("Transaction carries unparsable amount",
			zap.String("transaction_id", tx.ID),
			zap.String("amount", tx.Amount))
		metrics.ErrorsTotal.WithLabelValues("correlation", "bad_amount").Inc()
		return
	}

	candidates, err := e.store.FindUnprocessedCandidates(ctx, store.CandidateQuery{
		Protocol:        tx.BridgeProtocol,
		TokenAddress:    tx.TokenAddress,
		Amount:          amount,
		AmountTolerance: e.cfg.AmountTolerance,
		Center:          tx.Timestamp,
		TimeWindow:      e.cfg.TimeWindow,
		ExcludeID:       tx.ID,
	})
	if err != nil {
		e.logger.Error("Candidate search failed, transaction stays pending",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("correlation", "candidate_search").Inc()
		return
	}

	best, ok := e.scoreAll(tx, candidates)
	if !ok {
		return
	}
	e.createLink(ctx, best)
}

// scoreAll evaluates every candidate before deciding. Candidates arrive
// ordered by ascending timestamp, so keeping the first best score makes
// tie-breaking deterministic.
func (e *Engine) scoreAll(tx *model.BridgeTransaction, candidates []*model.BridgeTransaction) (PairScore, bool) {
	var best PairScore
	found := false
	for _, candidate := range candidates {
		metrics.CandidateEvaluations.Inc()
		score := CalculateLinkScore(tx, candidate)
		if !found || score.Score > best.Score {
			best = score
			found = true
		}
	}
	if !found || !best.Accepted(e.cfg.MinConfidence) {
		return PairScore{}, false
	}
	return best, true
}

// createLink claims both legs and persists the link. The processed
// precondition is claimed first so a lost race leaves no link row behind;
// a conflict means another evaluation linked a leg already and this
// attempt is abandoned as a benign race.
func (e *Engine) createLink(ctx context.Context, pair PairScore) {
	link := e.buildLink(pair)
	ids := []string{pair.Source.ID, pair.Destination.ID}

	if err := e.store.MarkProcessed(ctx, ids, link.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.LinkConflicts.Inc()
			e.logger.Debug("Link attempt lost race, abandoned",
				zap.String("source_id", pair.Source.ID),
				zap.String("destination_id", pair.Destination.ID))
			return
		}
		e.logger.Error("Failed to claim transactions for link",
			zap.Error(err),
			zap.Strings("transaction_ids", ids))
		metrics.ErrorsTotal.WithLabelValues("correlation", "mark_processed").Inc()
		return
	}

	if err := e.store.InsertLink(ctx, link); err != nil {
		e.logger.Error("Failed to persist link, releasing claimed legs",
			zap.Error(err),
			zap.String("link_id", link.ID))
		metrics.ErrorsTotal.WithLabelValues("correlation", "insert_link").Inc()
		if revErr := e.store.RevertProcessed(ctx, link.ID); revErr != nil {
			e.logger.Error("Failed to release claimed legs",
				zap.Error(revErr),
				zap.String("link_id", link.ID))
		}
		return
	}

	e.buffer.Remove(ids...)
	metrics.PendingBufferSize.Set(float64(e.buffer.Len()))
	metrics.LinksCreated.WithLabelValues(string(link.LinkType), string(link.Confidence)).Inc()

	e.logger.Info("Cross-chain link created",
		zap.String("link_id", link.ID),
		zap.String("link_type", string(link.LinkType)),
		zap.String("confidence", string(link.Confidence)),
		zap.Int("score", pair.Score),
		zap.String("source_chain", link.SourceChain),
		zap.String("destination_chain", link.DestinationChain))

	e.announcer.LinkCreated(link)
}

func (e *Engine) buildLink(pair PairScore) *model.CrossChainLink {
	src, dst := pair.Source, pair.Destination

	total := src.Amount
	srcAmount, errA := decimal.NewFromString(src.Amount)
	dstAmount, errB := decimal.NewFromString(dst.Amount)
	if errA == nil && errB == nil {
		total = srcAmount.Add(dstAmount).String()
	}

	first, last := src.Timestamp, dst.Timestamp
	if last.Before(first) {
		first, last = last, first
	}

	destWallet := dst.SourceAddress
	if src.DestinationAddress != "" {
		destWallet = src.DestinationAddress
	}

	destChain := dst.SourceChain
	if src.DestinationChain != "" && dst.SourceChain == src.SourceChain {
		destChain = src.DestinationChain
	}

	now := time.Now().UTC()
	return &model.CrossChainLink{
		ID:                       uuid.New().String(),
		SourceWalletAddress:      src.SourceAddress,
		DestinationWalletAddress: destWallet,
		SourceChain:              src.SourceChain,
		DestinationChain:         destChain,
		LinkType:                 LinkTypeFor(src, dst),
		Confidence:               pair.Band,
		TokenAddress:             src.TokenAddress,
		TokenSymbol:              src.TokenSymbol,
		TotalAmount:              total,
		TransactionCount:         2,
		FirstSeenAt:              first,
		LastSeenAt:               last,
		RiskScore:                (src.RiskScore + dst.RiskScore) / 2,
		RiskFlags:                pair.Flags,
		Metadata: model.LinkMetadata{
			Score:             pair.Score,
			MatchedEventTypes: []string{src.EventType, dst.EventType},
			Protocol:          src.BridgeProtocol,
		},
		BridgeTransactionIDs: []string{src.ID, dst.ID},
		CreatedAt:            now,
	}
}

// SweepPending drains buffer groups with at least two members and scores
// every pair inside each group, catching matches the primary path missed
// because of arrival timing. Already-claimed legs are skipped via the same
// conflict guard as the primary path.
func (e *Engine) SweepPending(ctx context.Context) error {
	return e.submit(ctx, func() {
		e.sweep(ctx)
	})
}

func (e *Engine) sweep(ctx context.Context) {
	linked := make(map[string]struct{})
	for _, group := range e.buffer.Groups(2) {
		for i := 0; i < len(group); i++ {
			if _, done := linked[group[i].ID]; done {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if _, done := linked[group[j].ID]; done {
					continue
				}
				metrics.CandidateEvaluations.Inc()
				score := CalculateLinkScore(group[i], group[j])
				if !score.Accepted(e.cfg.MinConfidence) {
					continue
				}
				e.createLink(ctx, score)
				linked[group[i].ID] = struct{}{}
				linked[group[j].ID] = struct{}{}
				break
			}
		}
	}
}

// EvictStale applies the buffer retention policy: entries older than the
// retention horizon are dropped from the in-memory buffer. The persisted
// rows stay untouched for audit.
func (e *Engine) EvictStale() {
	cutoff := time.Now().Add(-e.cfg.BufferRetention)
	evicted := e.buffer.EvictOlderThan(cutoff)
	if evicted > 0 {
		metrics.PendingEvicted.Add(float64(evicted))
		metrics.PendingBufferSize.Set(float64(e.buffer.Len()))
		e.logger.Info("Evicted stale pending transactions",
			zap.Int("evicted", evicted))
	}
}

// PendingCount returns the size of the in-memory pending buffer.
func (e *Engine) PendingCount() int {
	return e.buffer.Len()
}
