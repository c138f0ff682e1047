package correlation

import (
	"sync"
	"time"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// groupKey buckets pending transactions that could plausibly pair up.
type groupKey struct {
	protocol model.BridgeProtocol
	token    string
	amount   string
}

// PendingBuffer holds observed, not-yet-linked transactions grouped by
// (protocol, token, amount) for the batch sweep. Each engine owns its own
// instance; all methods are safe for concurrent use.
type PendingBuffer struct {
	mu     sync.Mutex
	groups map[groupKey][]*model.BridgeTransaction
	size   int
}

func NewPendingBuffer() *PendingBuffer {
	return &PendingBuffer{groups: make(map[groupKey][]*model.BridgeTransaction)}
}

func keyFor(tx *model.BridgeTransaction) groupKey {
	return groupKey{protocol: tx.BridgeProtocol, token: tx.TokenAddress, amount: tx.Amount}
}

// Add appends a transaction to its group. Duplicate ids are ignored.
func (b *PendingBuffer) Add(tx *model.BridgeTransaction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := keyFor(tx)
	for _, existing := range b.groups[key] {
		if existing.ID == tx.ID {
			return
		}
	}
	b.groups[key] = append(b.groups[key], tx)
	b.size++
}

// Remove drops the given transaction ids from whatever groups hold them.
func (b *PendingBuffer) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, group := range b.groups {
		kept := group[:0]
		for _, tx := range group {
			if _, gone := drop[tx.ID]; gone {
				b.size--
				continue
			}
			kept = append(kept, tx)
		}
		if len(kept) == 0 {
			delete(b.groups, key)
		} else {
			b.groups[key] = kept
		}
	}
}

// Groups returns a snapshot of every group holding at least min members.
// The returned slices are copies; mutating them does not affect the buffer.
func (b *PendingBuffer) Groups(min int) [][]*model.BridgeTransaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out [][]*model.BridgeTransaction
	for _, group := range b.groups {
		if len(group) < min {
			continue
		}
		cp := make([]*model.BridgeTransaction, len(group))
		copy(cp, group)
		out = append(out, cp)
	}
	return out
}

// EvictOlderThan drops entries observed before the cutoff and returns how
// many were removed. Bounds buffer growth for legs that never match.
func (b *PendingBuffer) EvictOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for key, group := range b.groups {
		kept := group[:0]
		for _, tx := range group {
			if tx.Timestamp.Before(cutoff) {
				evicted++
				b.size--
				continue
			}
			kept = append(kept, tx)
		}
		if len(kept) == 0 {
			delete(b.groups, key)
		} else {
			b.groups[key] = kept
		}
	}
	return evicted
}

// Len returns the number of buffered transactions.
func (b *PendingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
