package watcher

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// riskCap bounds the first-pass risk score.
const riskCap = 100

// highValueRiskPoints is added when the transferred amount exceeds the
// configured high-value threshold.
const highValueRiskPoints = 50

// RawLog is one decoded bridge-contract log as delivered by a watcher:
// the protocol tag, the event layout that matched the log's topic, and
// the flattened 32-byte argument words (indexed topics first, then data).
type RawLog struct {
	Protocol    model.BridgeProtocol
	Chain       string
	Event       EventLayout
	Args        [][]byte
	TxHash      string
	BlockNumber uint64
	Timestamp   time.Time
}

// SkipError reports a raw log that cannot be normalized. Skips are logged
// by the caller and never abort the stream.
type SkipError struct {
	Reason string
	Field  string
}

func (e *SkipError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("event skipped: %s", e.Reason)
	}
	return fmt.Sprintf("event skipped: %s (%s)", e.Reason, e.Field)
}

// Normalizer turns raw bridge logs into canonical BridgeTransaction
// records and assigns the first-pass risk score.
type Normalizer struct {
	highValue decimal.Decimal
}

// NewNormalizer builds a normalizer with the given high-value threshold,
// expressed in raw token units.
func NewNormalizer(highValueThreshold string) (*Normalizer, error) {
	threshold, err := decimal.NewFromString(highValueThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid high value threshold %q: %w", highValueThreshold, err)
	}
	return &Normalizer{highValue: threshold}, nil
}

// Normalize maps a raw log into a canonical transaction record. It returns
// a *SkipError when a required field (amount, source address) cannot be
// located; the record is otherwise complete and ready to persist.
func (n *Normalizer) Normalize(raw *RawLog) (*model.BridgeTransaction, error) {
	ev := raw.Event

	amount, ok := amountWord(raw.Args, ev.AmountIndex)
	if !ok {
		return nil, &SkipError{Reason: "missing required field", Field: "amount"}
	}

	source, ok := addressWord(raw.Args, ev.SourceIndex)
	if !ok {
		return nil, &SkipError{Reason: "missing required field", Field: "source_address"}
	}

	token, ok := addressWord(raw.Args, ev.TokenIndex)
	if !ok {
		return nil, &SkipError{Reason: "missing required field", Field: "token_address"}
	}

	// The counterparty address and chain are optional; some receive
	// events only carry them as opaque payloads.
	dest := ""
	if ev.DestIndex >= 0 {
		if addr, ok := addressWord(raw.Args, ev.DestIndex); ok {
			dest = addr
		}
	}

	destChain := ""
	if ev.ChainIndex >= 0 && ev.ChainIndex < len(raw.Args) {
		id := common.BytesToHash(raw.Args[ev.ChainIndex]).Big()
		if id.IsUint64() {
			destChain = ChainNames[id.Uint64()]
		}
	}

	return &model.BridgeTransaction{
		ID:                 uuid.New().String(),
		BridgeProtocol:     raw.Protocol,
		SourceChain:        raw.Chain,
		DestinationChain:   destChain,
		EventType:          ev.Name,
		TokenAddress:       token,
		Amount:             amount.String(),
		SourceAddress:      source,
		DestinationAddress: dest,
		TransactionHash:    raw.TxHash,
		BlockNumber:        int64(raw.BlockNumber),
		Timestamp:          raw.Timestamp,
		RiskScore:          n.riskScore(amount, ev),
	}, nil
}

// riskScore computes the first-pass heuristic score: a fixed bump for
// high-value amounts plus the event-category points, capped.
func (n *Normalizer) riskScore(amount decimal.Decimal, ev EventLayout) int {
	score := ev.RiskPoints
	if amount.Cmp(n.highValue) > 0 {
		score += highValueRiskPoints
	}
	if score > riskCap {
		score = riskCap
	}
	return score
}

func amountWord(args [][]byte, idx int) (decimal.Decimal, bool) {
	if idx < 0 || idx >= len(args) || len(args[idx]) == 0 {
		return decimal.Zero, false
	}
	value := decimal.NewFromBigInt(common.BytesToHash(args[idx]).Big(), 0)
	if value.IsZero() {
		return decimal.Zero, false
	}
	return value, true
}

func addressWord(args [][]byte, idx int) (string, bool) {
	if idx < 0 || idx >= len(args) || len(args[idx]) == 0 {
		return "", false
	}
	addr := common.BytesToAddress(common.BytesToHash(args[idx]).Bytes()[12:])
	if addr == (common.Address{}) {
		return "", false
	}
	return addr.Hex(), true
}
