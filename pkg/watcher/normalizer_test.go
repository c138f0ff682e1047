package watcher

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

func addrWord(hex string) []byte {
	return common.HexToHash(hex).Bytes()
}

func amountArg(v int64) []byte {
	return common.BigToHash(big.NewInt(v)).Bytes()
}

func wormholeSendLayout(t *testing.T) EventLayout {
	t.Helper()
	for _, ev := range Layouts[model.ProtocolWormhole].Events {
		if ev.Name == "TransferTokens" {
			return ev
		}
	}
	t.Fatal("TransferTokens layout missing")
	return EventLayout{}
}

func TestNormalizeSendEvent(t *testing.T) {
	n, err := NewNormalizer("100000")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    wormholeSendLayout(t),
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
			addrWord("0x0000000000000000000000002222222222222222222222222222222222222222"),
			addrWord("0x0000000000000000000000003333333333333333333333333333333333333333"),
			amountArg(5000),
			amountArg(137),
		},
		TxHash:      "0xabc",
		BlockNumber: 42,
		Timestamp:   now,
	}

	tx, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if tx.BridgeProtocol != model.ProtocolWormhole {
		t.Errorf("protocol = %s, want wormhole", tx.BridgeProtocol)
	}
	if tx.EventType != "TransferTokens" {
		t.Errorf("event type = %s, want TransferTokens", tx.EventType)
	}
	if tx.Amount != "5000" {
		t.Errorf("amount = %s, want 5000", tx.Amount)
	}
	if tx.SourceChain != "ethereum" {
		t.Errorf("source chain = %s, want ethereum", tx.SourceChain)
	}
	if tx.DestinationChain != "polygon" {
		t.Errorf("destination chain = %s, want polygon", tx.DestinationChain)
	}
	if tx.TransactionHash != "0xabc" {
		t.Errorf("tx hash = %s, want 0xabc", tx.TransactionHash)
	}
	if tx.BlockNumber != 42 {
		t.Errorf("block number = %d, want 42", tx.BlockNumber)
	}
	if !tx.Timestamp.Equal(now) {
		t.Errorf("timestamp = %s, want %s", tx.Timestamp, now)
	}
	if tx.ID == "" {
		t.Error("expected generated id")
	}
	if tx.Processed {
		t.Error("new transaction must not be processed")
	}
	if tx.RiskScore != 10 {
		t.Errorf("risk score = %d, want 10", tx.RiskScore)
	}
}

func TestNormalizeHighValueRisk(t *testing.T) {
	n, err := NewNormalizer("100000")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    wormholeSendLayout(t),
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
			addrWord("0x0000000000000000000000002222222222222222222222222222222222222222"),
			addrWord("0x0000000000000000000000003333333333333333333333333333333333333333"),
			amountArg(250000),
			amountArg(137),
		},
		TxHash:    "0xdef",
		Timestamp: time.Now(),
	}

	tx, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tx.RiskScore != 60 {
		t.Errorf("risk score = %d, want 60 (10 event + 50 high value)", tx.RiskScore)
	}
}

func TestNormalizeRiskScoreCapped(t *testing.T) {
	n, err := NewNormalizer("100")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	ev := wormholeSendLayout(t)
	ev.RiskPoints = 90

	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    ev,
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
			addrWord("0x0000000000000000000000002222222222222222222222222222222222222222"),
			addrWord("0x0000000000000000000000003333333333333333333333333333333333333333"),
			amountArg(9999),
			amountArg(137),
		},
		TxHash:    "0x1",
		Timestamp: time.Now(),
	}

	tx, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tx.RiskScore != 100 {
		t.Errorf("risk score = %d, want capped at 100", tx.RiskScore)
	}
}

func TestNormalizeMissingAmount(t *testing.T) {
	n, err := NewNormalizer("100000")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    wormholeSendLayout(t),
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
			addrWord("0x0000000000000000000000002222222222222222222222222222222222222222"),
			addrWord("0x0000000000000000000000003333333333333333333333333333333333333333"),
			amountArg(0),
			amountArg(137),
		},
		TxHash:    "0x2",
		Timestamp: time.Now(),
	}

	_, err = n.Normalize(raw)
	var skip *SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("expected SkipError, got %v", err)
	}
	if skip.Field != "amount" {
		t.Errorf("skip field = %s, want amount", skip.Field)
	}
}

func TestNormalizeTruncatedArgs(t *testing.T) {
	n, err := NewNormalizer("100000")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    wormholeSendLayout(t),
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
		},
		TxHash:    "0x3",
		Timestamp: time.Now(),
	}

	_, err = n.Normalize(raw)
	var skip *SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("expected SkipError, got %v", err)
	}
}

func TestNormalizeOptionalDestination(t *testing.T) {
	n, err := NewNormalizer("100000")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	ev := wormholeSendLayout(t)
	ev.DestIndex = -1

	raw := &RawLog{
		Protocol: model.ProtocolWormhole,
		Chain:    "ethereum",
		Event:    ev,
		Args: [][]byte{
			addrWord("0x0000000000000000000000001111111111111111111111111111111111111111"),
			addrWord("0x0000000000000000000000002222222222222222222222222222222222222222"),
			addrWord("0x0000000000000000000000003333333333333333333333333333333333333333"),
			amountArg(5000),
			amountArg(137),
		},
		TxHash:    "0x4",
		Timestamp: time.Now(),
	}

	tx, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tx.DestinationAddress != "" {
		t.Errorf("destination = %s, want empty", tx.DestinationAddress)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		protocol model.BridgeProtocol
		event    string
		want     model.EventClass
	}{
		{model.ProtocolWormhole, "TransferTokens", model.EventClassSend},
		{model.ProtocolWormhole, "TransferRedeemed", model.EventClassReceive},
		{model.ProtocolStargate, "Swap", model.EventClassSend},
		{model.ProtocolStargate, "SwapRemote", model.EventClassReceive},
		{model.ProtocolSynapse, "TokenMint", model.EventClassReceive},
		{model.ProtocolMultichain, "LogAnySwapOut", model.EventClassSend},
		{model.ProtocolWormhole, "SomethingElse", model.EventClassUnknown},
		{model.BridgeProtocol("bogus"), "TransferTokens", model.EventClassUnknown},
	}

	for _, c := range cases {
		if got := Classify(c.protocol, c.event); got != c.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", c.protocol, c.event, got, c.want)
		}
	}
}
