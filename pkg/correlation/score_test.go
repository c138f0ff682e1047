package correlation

import (
	"reflect"
	"testing"
	"time"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

var scoreBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sendLeg() *model.BridgeTransaction {
	return &model.BridgeTransaction{
		ID:               "tx-send",
		BridgeProtocol:   model.ProtocolWormhole,
		SourceChain:      "ethereum",
		DestinationChain: "polygon",
		EventType:        "TransferTokens",
		TokenAddress:     "0xToken",
		Amount:           "100",
		SourceAddress:    "0xAlice",
		Timestamp:        scoreBase,
		RiskScore:        10,
	}
}

func receiveLeg() *model.BridgeTransaction {
	return &model.BridgeTransaction{
		ID:               "tx-receive",
		BridgeProtocol:   model.ProtocolWormhole,
		SourceChain:      "polygon",
		DestinationChain: "ethereum",
		EventType:        "TransferRedeemed",
		TokenAddress:     "0xToken",
		Amount:           "100.5",
		SourceAddress:    "0xBob",
		Timestamp:        scoreBase.Add(30 * time.Second),
		RiskScore:        15,
	}
}

func TestScoreMatchedPair(t *testing.T) {
	a, b := sendLeg(), receiveLeg()

	score := CalculateLinkScore(a, b)

	// 30 protocol + 40 amount + 20 token + 20 time + 15 direction + 15 event
	if score.Score != 140 {
		t.Errorf("score = %d, want 140", score.Score)
	}
	if score.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", score.Confidence)
	}
	if score.Band != model.ConfidenceConfirmed {
		t.Errorf("band = %s, want confirmed", score.Band)
	}
	if score.Source.ID != a.ID || score.Destination.ID != b.ID {
		t.Errorf("resolved direction %s -> %s, want tx-send -> tx-receive",
			score.Source.ID, score.Destination.ID)
	}
	if len(score.Flags) != 0 {
		t.Errorf("unexpected flags %v", score.Flags)
	}
}

func TestScoreSimilarPairStillLinks(t *testing.T) {
	a, b := sendLeg(), receiveLeg()
	b.Amount = "103"
	b.Timestamp = scoreBase.Add(4 * time.Minute)

	score := CalculateLinkScore(a, b)

	// 30 protocol + 20 amount similar + 20 token + 10 time similar
	// + 15 direction + 15 event
	if score.Score != 110 {
		t.Errorf("score = %d, want 110", score.Score)
	}
	if !score.Accepted(0.70) {
		t.Error("pair scoring 110 must be accepted")
	}
	if score.Band != model.ConfidenceConfirmed {
		t.Errorf("band = %s, want confirmed", score.Band)
	}
}

func TestScoreThresholdBoundary(t *testing.T) {
	// Same protocol and exact amount only: 30 + 40 = 70. Accepted.
	a, b := sendLeg(), sendLeg()
	b.ID = "tx-other"
	b.TokenAddress = "0xOther"
	b.SourceChain = "bsc"
	b.DestinationChain = ""
	a.DestinationChain = ""
	b.EventType = "UnknownEvent"
	a.EventType = "UnknownEvent"
	b.Timestamp = scoreBase.Add(10 * time.Minute)

	score := CalculateLinkScore(a, b)
	if score.Score != 70 {
		t.Fatalf("score = %d, want exactly 70", score.Score)
	}
	if !score.Accepted(0.70) {
		t.Error("confidence 0.70 must be accepted")
	}

	// Drop the exact amount to similar: 30 + 20 = 50, plus event
	// correlation would not apply. Below the floor.
	b.Amount = "103"
	score = CalculateLinkScore(a, b)
	if score.Score >= 70 {
		t.Fatalf("score = %d, want below 70", score.Score)
	}
	if score.Accepted(0.70) {
		t.Error("confidence below 0.70 must be rejected")
	}
}

func TestScoreDeterminism(t *testing.T) {
	a, b := sendLeg(), receiveLeg()

	first := CalculateLinkScore(a, b)
	for i := 0; i < 10; i++ {
		again := CalculateLinkScore(a, b)
		if again.Score != first.Score || again.Confidence != first.Confidence {
			t.Fatalf("score changed between calls: %d vs %d", first.Score, again.Score)
		}
		if !reflect.DeepEqual(again.Flags, first.Flags) {
			t.Fatalf("flags changed between calls: %v vs %v", first.Flags, again.Flags)
		}
	}
}

func TestScoreMonotonicity(t *testing.T) {
	// Start from a fully mismatched pair and add matching factors one at
	// a time. Confidence must never decrease.
	a := sendLeg()
	b := &model.BridgeTransaction{
		ID:             "tx-b",
		BridgeProtocol: model.ProtocolStargate,
		SourceChain:    "bsc",
		EventType:      "UnknownEvent",
		TokenAddress:   "0xOther",
		Amount:         "5000",
		Timestamp:      scoreBase.Add(30 * time.Minute),
	}

	prev := CalculateLinkScore(a, b).Confidence

	steps := []func(){
		func() { b.BridgeProtocol = a.BridgeProtocol },
		func() { b.Amount = a.Amount },
		func() { b.TokenAddress = a.TokenAddress },
		func() { b.Timestamp = a.Timestamp.Add(30 * time.Second) },
		func() { b.SourceChain = "polygon"; b.DestinationChain = "ethereum" },
		func() { b.EventType = "TransferRedeemed" },
	}
	for i, step := range steps {
		step()
		got := CalculateLinkScore(a, b).Confidence
		if got < prev {
			t.Fatalf("step %d: confidence dropped from %f to %f", i, prev, got)
		}
		prev = got
	}
}

func TestScoreSymmetric(t *testing.T) {
	a, b := sendLeg(), receiveLeg()

	ab := CalculateLinkScore(a, b)
	ba := CalculateLinkScore(b, a)

	if ab.Score != ba.Score {
		t.Errorf("score not symmetric: %d vs %d", ab.Score, ba.Score)
	}
	if ab.Source.ID != ba.Source.ID {
		t.Errorf("resolved source differs by argument order: %s vs %s",
			ab.Source.ID, ba.Source.ID)
	}
}

func TestTimestampFallbackFlagged(t *testing.T) {
	// Two send-class legs: classification is ambiguous, so direction
	// falls back to timestamp order and the pair is flagged.
	a, b := sendLeg(), sendLeg()
	b.ID = "tx-later"
	b.SourceChain = "polygon"
	b.Timestamp = scoreBase.Add(30 * time.Second)

	score := CalculateLinkScore(b, a)

	if score.Source.ID != a.ID {
		t.Errorf("source = %s, want the earlier leg tx-send", score.Source.ID)
	}
	found := false
	for _, f := range score.Flags {
		if f == FlagTimestampFallback {
			found = true
		}
	}
	if !found {
		t.Errorf("flags = %v, want %s", score.Flags, FlagTimestampFallback)
	}
}

func TestLinkTypeFor(t *testing.T) {
	a, b := sendLeg(), receiveLeg()
	if got := LinkTypeFor(a, b); got != model.LinkTypeBridgeTransfer {
		t.Errorf("same protocol: link type = %s, want bridge_transfer", got)
	}

	b.BridgeProtocol = model.ProtocolStargate
	if got := LinkTypeFor(a, b); got != model.LinkTypeSimilarPattern {
		t.Errorf("same token: link type = %s, want similar_pattern", got)
	}

	b.TokenAddress = "0xOther"
	if got := LinkTypeFor(a, b); got != model.LinkTypeTimeProximity {
		t.Errorf("nothing shared: link type = %s, want time_proximity", got)
	}
}
