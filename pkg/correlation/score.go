// Package correlation implements the matching engine that pairs bridge
// transaction legs observed on different chains into cross-chain links.
package correlation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/watcher"
)

// FlagTimestampFallback marks pairs whose source/destination legs were
// resolved by timestamp ordering because event classification was
// ambiguous. Downstream consumers treat these as weaker evidence.
const FlagTimestampFallback = "timestamp-order-fallback"

// Scoring weights, additive on a 0-100 confidence scale.
const (
	pointsProtocolMatch    = 30
	pointsAmountMatch      = 40
	pointsAmountSimilar    = 20
	pointsTokenMatch       = 20
	pointsTimeMatch        = 20
	pointsTimeSimilar      = 10
	pointsChainDirection   = 15
	pointsEventCorrelation = 15
)

const (
	amountMatchTolerance   = 0.01
	amountSimilarTolerance = 0.05
	timeMatchWindow        = time.Minute
	timeSimilarWindow      = 5 * time.Minute
)

// PairScore is the outcome of scoring two transactions against each other.
// The same inputs always produce the same score and flags.
type PairScore struct {
	Score      int
	Confidence float64
	Band       model.ConfidenceBand
	// Source and Destination are the resolved legs of the transfer.
	Source      *model.BridgeTransaction
	Destination *model.BridgeTransaction
	// Flags carries extra evidence tags attached to the resulting link.
	Flags []string
}

// Accepted reports whether the pair clears the given confidence floor.
func (p PairScore) Accepted(minConfidence float64) bool {
	return p.Confidence >= minConfidence
}

// CalculateLinkScore scores a candidate pair. Pure function of its inputs:
// no clock reads, no persistence, symmetric in argument order.
func CalculateLinkScore(a, b *model.BridgeTransaction) PairScore {
	score := 0

	if a.BridgeProtocol == b.BridgeProtocol {
		score += pointsProtocolMatch
	}

	switch diff := relativeAmountDiff(a.Amount, b.Amount); {
	case diff < amountMatchTolerance:
		score += pointsAmountMatch
	case diff < amountSimilarTolerance:
		score += pointsAmountSimilar
	}

	if a.TokenAddress != "" && a.TokenAddress == b.TokenAddress {
		score += pointsTokenMatch
	}

	switch delta := absDuration(a.Timestamp.Sub(b.Timestamp)); {
	case delta < timeMatchWindow:
		score += pointsTimeMatch
	case delta < timeSimilarWindow:
		score += pointsTimeSimilar
	}

	if validChainDirection(a, b) {
		score += pointsChainDirection
	}

	classA := watcher.Classify(a.BridgeProtocol, a.EventType)
	classB := watcher.Classify(b.BridgeProtocol, b.EventType)
	if complementary(classA, classB) {
		score += pointsEventCorrelation
	}

	confidence := float64(score) / 100
	if confidence > 1.0 {
		confidence = 1.0
	}

	source, dest, fallback := resolveDirection(a, b, classA, classB)
	var flags []string
	if fallback {
		flags = append(flags, FlagTimestampFallback)
	}

	return PairScore{
		Score:       score,
		Confidence:  confidence,
		Band:        model.BandForConfidence(confidence),
		Source:      source,
		Destination: dest,
		Flags:       flags,
	}
}

// resolveDirection picks the source and destination legs. A send-class leg
// paired with a receive-class leg is unambiguous; anything else falls back
// to timestamp ordering, earlier first.
func resolveDirection(a, b *model.BridgeTransaction, classA, classB model.EventClass) (source, dest *model.BridgeTransaction, fallback bool) {
	switch {
	case classA == model.EventClassSend && classB == model.EventClassReceive:
		return a, b, false
	case classB == model.EventClassSend && classA == model.EventClassReceive:
		return b, a, false
	}
	if b.Timestamp.Before(a.Timestamp) {
		return b, a, true
	}
	return a, b, true
}

func complementary(classA, classB model.EventClass) bool {
	return (classA == model.EventClassSend && classB == model.EventClassReceive) ||
		(classA == model.EventClassReceive && classB == model.EventClassSend)
}

// validChainDirection holds when the legs reference each other's chains,
// or when both sit on the same chain (pool-style operations).
func validChainDirection(a, b *model.BridgeTransaction) bool {
	if a.SourceChain != "" && a.SourceChain == b.SourceChain {
		return true
	}
	return a.SourceChain != "" && b.SourceChain != "" &&
		a.SourceChain == b.DestinationChain && b.SourceChain == a.DestinationChain
}

// relativeAmountDiff returns |a-b| relative to the larger of the two.
// Unparsable amounts never match.
func relativeAmountDiff(a, b string) float64 {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return 1.0
	}

	larger := da
	if db.Cmp(larger) > 0 {
		larger = db
	}
	if larger.IsZero() {
		return 1.0
	}

	diff, _ := da.Sub(db).Abs().Div(larger).Float64()
	return diff
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// LinkTypeFor derives the link type from what the pair shares: same
// protocol means a bridge transfer, same token a similar pattern, and
// anything else mere time proximity.
func LinkTypeFor(a, b *model.BridgeTransaction) model.LinkType {
	switch {
	case a.BridgeProtocol == b.BridgeProtocol:
		return model.LinkTypeBridgeTransfer
	case a.TokenAddress != "" && a.TokenAddress == b.TokenAddress:
		return model.LinkTypeSimilarPattern
	default:
		return model.LinkTypeTimeProximity
	}
}
