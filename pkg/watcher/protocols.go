package watcher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// EventLayout describes where the interesting fields of one bridge event
// live inside the flattened argument list (indexed topics first, then the
// 32-byte data words). The amount position varies per event, not per
// protocol, so each entry carries its own indexes.
type EventLayout struct {
	Name      string
	Signature string
	Class     model.EventClass

	AmountIndex int
	TokenIndex  int
	SourceIndex int
	// DestIndex is -1 when the event does not carry a counterparty address.
	DestIndex int
	// ChainIndex locates the counterpart chain id word, -1 when absent.
	ChainIndex int

	// RiskPoints is the event-category contribution to the first-pass
	// risk score.
	RiskPoints int
}

// ProtocolLayout is the static event table for one bridge protocol.
type ProtocolLayout struct {
	Protocol model.BridgeProtocol
	Events   []EventLayout
}

// Layouts is the static per-protocol argument-position table. Watchers use
// it to recognize topics, the normalizer uses it to locate fields.
var Layouts = map[model.BridgeProtocol]ProtocolLayout{
	model.ProtocolWormhole: {
		Protocol: model.ProtocolWormhole,
		Events: []EventLayout{
			{
				Name:        "TransferTokens",
				Signature:   "TransferTokens(address,address,bytes32,uint256,uint16)",
				Class:       model.EventClassSend,
				AmountIndex: 3, TokenIndex: 1, SourceIndex: 0, DestIndex: 2, ChainIndex: 4,
				RiskPoints: 10,
			},
			{
				Name:        "TransferRedeemed",
				Signature:   "TransferRedeemed(address,address,bytes32,uint16,uint256)",
				Class:       model.EventClassReceive,
				AmountIndex: 4, TokenIndex: 1, SourceIndex: 2, DestIndex: 0, ChainIndex: 3,
				RiskPoints: 15,
			},
		},
	},
	model.ProtocolStargate: {
		Protocol: model.ProtocolStargate,
		Events: []EventLayout{
			{
				Name:        "Swap",
				Signature:   "Swap(address,address,bytes32,uint256,uint16)",
				Class:       model.EventClassSend,
				AmountIndex: 3, TokenIndex: 1, SourceIndex: 0, DestIndex: 2, ChainIndex: 4,
				RiskPoints: 10,
			},
			{
				Name:        "SwapRemote",
				Signature:   "SwapRemote(address,address,uint256,bytes32)",
				Class:       model.EventClassReceive,
				AmountIndex: 2, TokenIndex: 1, SourceIndex: 3, DestIndex: 0, ChainIndex: -1,
				RiskPoints: 15,
			},
		},
	},
	model.ProtocolSynapse: {
		Protocol: model.ProtocolSynapse,
		Events: []EventLayout{
			{
				Name:        "TokenDeposit",
				Signature:   "TokenDeposit(address,address,bytes32,uint256)",
				Class:       model.EventClassSend,
				AmountIndex: 3, TokenIndex: 1, SourceIndex: 0, DestIndex: 2, ChainIndex: -1,
				RiskPoints: 10,
			},
			{
				// Mint of a wrapped asset on the destination chain.
				Name:        "TokenMint",
				Signature:   "TokenMint(address,address,uint256,bytes32)",
				Class:       model.EventClassReceive,
				AmountIndex: 2, TokenIndex: 1, SourceIndex: 3, DestIndex: 0, ChainIndex: -1,
				RiskPoints: 20,
			},
		},
	},
	model.ProtocolMultichain: {
		Protocol: model.ProtocolMultichain,
		Events: []EventLayout{
			{
				Name:        "LogAnySwapOut",
				Signature:   "LogAnySwapOut(address,address,bytes32,uint256,uint256)",
				Class:       model.EventClassSend,
				AmountIndex: 3, TokenIndex: 0, SourceIndex: 1, DestIndex: 2, ChainIndex: 4,
				RiskPoints: 15,
			},
			{
				Name:        "LogAnySwapIn",
				Signature:   "LogAnySwapIn(address,address,bytes32,uint256)",
				Class:       model.EventClassReceive,
				AmountIndex: 3, TokenIndex: 0, SourceIndex: 2, DestIndex: 1, ChainIndex: -1,
				RiskPoints: 15,
			},
		},
	},
}

// ChainNames maps EVM chain ids carried in bridge events to the chain
// names used in configuration. Unknown ids leave the counterpart chain
// unset on the normalized record.
var ChainNames = map[uint64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
	43114: "avalanche",
}

// Classify maps an event type to its direction class for one protocol.
// Unknown event types classify as EventClassUnknown.
func Classify(protocol model.BridgeProtocol, eventType string) model.EventClass {
	layout, ok := Layouts[protocol]
	if !ok {
		return model.EventClassUnknown
	}
	for _, ev := range layout.Events {
		if ev.Name == eventType {
			return ev.Class
		}
	}
	return model.EventClassUnknown
}

// Topics returns the topic-zero hashes of every event in the layout, in
// table order. Used to build the subscription filter.
func (p ProtocolLayout) Topics() []common.Hash {
	topics := make([]common.Hash, len(p.Events))
	for i, ev := range p.Events {
		topics[i] = crypto.Keccak256Hash([]byte(ev.Signature))
	}
	return topics
}

// EventForTopic resolves the event layout matching a log's topic zero.
func (p ProtocolLayout) EventForTopic(topic common.Hash) (EventLayout, bool) {
	for _, ev := range p.Events {
		if crypto.Keccak256Hash([]byte(ev.Signature)) == topic {
			return ev, true
		}
	}
	return EventLayout{}, false
}
