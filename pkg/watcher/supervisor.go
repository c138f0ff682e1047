package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/internal/metrics"
	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// EVMClient is the subset of the Ethereum client used by watchers.
type EVMClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

// Dialer opens an EVM client for a chain endpoint. Swappable in tests.
type Dialer func(ctx context.Context, url string) (EVMClient, error)

// DialEthereum is the production dialer.
func DialEthereum(ctx context.Context, url string) (EVMClient, error) {
	return ethclient.DialContext(ctx, url)
}

// Ingestor receives canonical transactions from the watchers.
type Ingestor interface {
	Ingest(ctx context.Context, tx *model.BridgeTransaction) error
}

// TransactionInserter persists normalized transactions idempotently.
type TransactionInserter interface {
	InsertTransaction(ctx context.Context, tx *model.BridgeTransaction) (bool, error)
}

// Supervisor owns one subscription per (protocol, chain) bridge entry.
// Watchers run concurrently and share no mutable state; a failed
// subscription is logged and skipped, never fatal.
type Supervisor struct {
	chains     []config.ChainConfig
	dial       Dialer
	normalizer *Normalizer
	store      TransactionInserter
	ingestor   Ingestor
	logger     *zap.Logger

	wg      sync.WaitGroup
	clients []EVMClient
	mu      sync.Mutex
}

// NewSupervisor builds a supervisor over the configured chains.
func NewSupervisor(
	chains []config.ChainConfig,
	dial Dialer,
	normalizer *Normalizer,
	store TransactionInserter,
	ingestor Ingestor,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		chains:     chains,
		dial:       dial,
		normalizer: normalizer,
		store:      store,
		ingestor:   ingestor,
		logger:     logger,
	}
}

// Start dials every configured chain and spawns one watcher goroutine per
// bridge entry. Unreachable endpoints and failed subscriptions are warned
// about and skipped so the remaining watchers keep running.
func (s *Supervisor) Start(ctx context.Context) {
	for _, chain := range s.chains {
		client, err := s.dial(ctx, chain.WSUrl)
		if err != nil {
			s.logger.Warn("Failed to connect chain endpoint, skipping its watchers",
				zap.String("chain", chain.Name),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("watcher", "dial").Inc()
			continue
		}
		s.mu.Lock()
		s.clients = append(s.clients, client)
		s.mu.Unlock()

		for _, bridge := range chain.Bridges {
			protocol := model.BridgeProtocol(bridge.Protocol)
			layout, ok := Layouts[protocol]
			if !ok {
				s.logger.Warn("Unknown bridge protocol in config, skipping",
					zap.String("chain", chain.Name),
					zap.String("protocol", bridge.Protocol))
				continue
			}

			s.wg.Add(1)
			go func(chain config.ChainConfig, bridge config.BridgeConfig, layout ProtocolLayout) {
				defer s.wg.Done()
				s.watch(ctx, client, chain, bridge, layout)
			}(chain, bridge, layout)
		}
	}
}

// Wait blocks until every watcher goroutine has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Close closes all chain clients, which unblocks running watchers.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = nil
}

// watch runs one subscription for one bridge contract until the context is
// cancelled or the stream fails.
func (s *Supervisor) watch(
	ctx context.Context,
	client EVMClient,
	chain config.ChainConfig,
	bridge config.BridgeConfig,
	layout ProtocolLayout,
) {
	logger := s.logger.With(
		zap.String("chain", chain.Name),
		zap.String("protocol", bridge.Protocol),
		zap.String("contract", bridge.Contract))

	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(bridge.Contract)},
		Topics:    [][]common.Hash{layout.Topics()},
	}

	logs := make(chan types.Log, 64)
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		logger.Warn("Failed to subscribe bridge events, watcher skipped", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("watcher", "subscribe").Inc()
		return
	}
	defer sub.Unsubscribe()

	logger.Info("Watching bridge events")

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				logger.Warn("Subscription closed", zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("watcher", "stream").Inc()
			}
			return
		case lg := <-logs:
			s.handleLog(ctx, client, chain.Name, layout, lg, logger)
		}
	}
}

func (s *Supervisor) handleLog(
	ctx context.Context,
	client EVMClient,
	chainName string,
	layout ProtocolLayout,
	lg types.Log,
	logger *zap.Logger,
) {
	if len(lg.Topics) == 0 {
		return
	}
	ev, ok := layout.EventForTopic(lg.Topics[0])
	if !ok {
		return
	}

	metrics.EventsDetected.WithLabelValues(string(layout.Protocol), chainName, ev.Name).Inc()

	raw := &RawLog{
		Protocol:    layout.Protocol,
		Chain:       chainName,
		Event:       ev,
		Args:        flattenLog(lg),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		Timestamp:   s.blockTime(ctx, client, lg.BlockNumber, logger),
	}

	tx, err := s.normalizer.Normalize(raw)
	if err != nil {
		var skip *SkipError
		if errors.As(err, &skip) {
			logger.Debug("Skipping malformed event",
				zap.String("event", ev.Name),
				zap.String("reason", skip.Reason),
				zap.String("field", skip.Field),
				zap.String("tx_hash", raw.TxHash))
			metrics.EventsSkipped.WithLabelValues(string(layout.Protocol), skip.Field).Inc()
			return
		}
		logger.Error("Failed to normalize event", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("watcher", "normalize").Inc()
		return
	}

	inserted, err := s.store.InsertTransaction(ctx, tx)
	if err != nil {
		logger.Error("Failed to persist transaction",
			zap.Error(err),
			zap.String("tx_hash", tx.TransactionHash))
		metrics.ErrorsTotal.WithLabelValues("watcher", "persist").Inc()
		return
	}
	if !inserted {
		// Replayed log; the first insert already went through matching.
		metrics.TransactionsIngested.WithLabelValues(string(tx.BridgeProtocol), "duplicate").Inc()
		return
	}
	metrics.TransactionsIngested.WithLabelValues(string(tx.BridgeProtocol), "inserted").Inc()

	if err := s.ingestor.Ingest(ctx, tx); err != nil {
		logger.Error("Failed to ingest transaction for correlation",
			zap.Error(err),
			zap.String("transaction_id", tx.ID))
		metrics.ErrorsTotal.WithLabelValues("watcher", "ingest").Inc()
	}
}

// blockTime resolves the block timestamp for a log, falling back to the
// local clock when the header lookup fails.
func (s *Supervisor) blockTime(ctx context.Context, client EVMClient, blockNumber uint64, logger *zap.Logger) time.Time {
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		logger.Warn("Failed to fetch block header, using local time",
			zap.Uint64("block", blockNumber),
			zap.Error(err))
		return time.Now().UTC()
	}
	return time.Unix(int64(header.Time), 0).UTC()
}

// flattenLog lays out the indexed topics followed by the 32-byte data
// words as one argument list, matching the layout table's indexes.
func flattenLog(lg types.Log) [][]byte {
	args := make([][]byte, 0, len(lg.Topics)-1+len(lg.Data)/32)
	for _, topic := range lg.Topics[1:] {
		args = append(args, topic.Bytes())
	}
	for off := 0; off+32 <= len(lg.Data); off += 32 {
		args = append(args, lg.Data[off:off+32])
	}
	return args
}
