package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/store"
)

// MockLinkStore is a mock implementation of LinkStore
type MockLinkStore struct {
	FindUnprocessedCandidatesFunc func(ctx context.Context, q store.CandidateQuery) ([]*model.BridgeTransaction, error)
	InsertLinkFunc                func(ctx context.Context, link *model.CrossChainLink) error
	MarkProcessedFunc             func(ctx context.Context, ids []string, linkID string) error
	RevertProcessedFunc           func(ctx context.Context, linkID string) error
	ListUnprocessedSinceFunc      func(ctx context.Context, since time.Time) ([]*model.BridgeTransaction, error)
}

func (m *MockLinkStore) FindUnprocessedCandidates(ctx context.Context, q store.CandidateQuery) ([]*model.BridgeTransaction, error) {
	if m.FindUnprocessedCandidatesFunc != nil {
		return m.FindUnprocessedCandidatesFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockLinkStore) InsertLink(ctx context.Context, link *model.CrossChainLink) error {
	if m.InsertLinkFunc != nil {
		return m.InsertLinkFunc(ctx, link)
	}
	return nil
}

func (m *MockLinkStore) MarkProcessed(ctx context.Context, ids []string, linkID string) error {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, ids, linkID)
	}
	return nil
}

func (m *MockLinkStore) RevertProcessed(ctx context.Context, linkID string) error {
	if m.RevertProcessedFunc != nil {
		return m.RevertProcessedFunc(ctx, linkID)
	}
	return nil
}

func (m *MockLinkStore) ListUnprocessedSince(ctx context.Context, since time.Time) ([]*model.BridgeTransaction, error) {
	if m.ListUnprocessedSinceFunc != nil {
		return m.ListUnprocessedSinceFunc(ctx, since)
	}
	return nil, nil
}

// MockAnnouncer records engine outcomes for assertions
type MockAnnouncer struct {
	mu           sync.Mutex
	Transactions []*model.BridgeTransaction
	Links        []*model.CrossChainLink
	HighRisk     []*model.BridgeTransaction
}

func (m *MockAnnouncer) TransactionObserved(tx *model.BridgeTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transactions = append(m.Transactions, tx)
}

func (m *MockAnnouncer) LinkCreated(link *model.CrossChainLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Links = append(m.Links, link)
}

func (m *MockAnnouncer) HighRiskDetected(tx *model.BridgeTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HighRisk = append(m.HighRisk, tx)
}

func (m *MockAnnouncer) CreatedLinks() []*model.CrossChainLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.CrossChainLink, len(m.Links))
	copy(out, m.Links)
	return out
}

func (m *MockAnnouncer) HighRiskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.HighRisk)
}
