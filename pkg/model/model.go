// Package model holds the canonical records shared by the watcher,
// correlation and notification subsystems.
package model

import (
	"time"
)

// BridgeProtocol identifies a cross-chain transfer mechanism.
type BridgeProtocol string

const (
	ProtocolWormhole  BridgeProtocol = "wormhole"
	ProtocolStargate  BridgeProtocol = "stargate"
	ProtocolSynapse   BridgeProtocol = "synapse"
	ProtocolMultichain BridgeProtocol = "multichain"
)

// EventClass groups protocol-specific event names into a direction class.
type EventClass string

const (
	EventClassSend    EventClass = "send"
	EventClassReceive EventClass = "receive"
	EventClassUnknown EventClass = "unknown"
)

// LinkType describes why two transactions were linked.
type LinkType string

const (
	LinkTypeBridgeTransfer LinkType = "bridge_transfer"
	LinkTypeSimilarPattern LinkType = "similar_pattern"
	LinkTypeTimeProximity  LinkType = "time_proximity"
)

// ConfidenceBand is the discretized bucket derived from a continuous
// matching score.
type ConfidenceBand string

const (
	ConfidenceLow       ConfidenceBand = "low"
	ConfidenceMedium    ConfidenceBand = "medium"
	ConfidenceHigh      ConfidenceBand = "high"
	ConfidenceConfirmed ConfidenceBand = "confirmed"
)

// BandForConfidence maps a continuous confidence value to its band.
func BandForConfidence(confidence float64) ConfidenceBand {
	switch {
	case confidence >= 0.90:
		return ConfidenceConfirmed
	case confidence >= 0.70:
		return ConfidenceHigh
	case confidence >= 0.50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// BridgeTransaction is one observed bridge-contract event. Once Processed
// is true the record is immutable and never re-enters matching.
type BridgeTransaction struct {
	ID                 string         `json:"id"`
	BridgeProtocol     BridgeProtocol `json:"bridge_protocol"`
	SourceChain        string         `json:"source_chain"`
	DestinationChain   string         `json:"destination_chain,omitempty"`
	EventType          string         `json:"event_type"`
	TokenAddress       string         `json:"token_address"`
	TokenSymbol        string         `json:"token_symbol,omitempty"`
	Amount             string         `json:"amount"`
	SourceAddress      string         `json:"source_address"`
	DestinationAddress string         `json:"destination_address,omitempty"`
	TransactionHash    string         `json:"transaction_hash"`
	BlockNumber        int64          `json:"block_number"`
	Timestamp          time.Time      `json:"timestamp"`
	RiskScore          int            `json:"risk_score"`
	Processed          bool           `json:"processed"`
	LinkedLinkID       *string        `json:"linked_link_id,omitempty"`
}

// LinkMetadata carries the raw evidence behind an inferred link.
type LinkMetadata struct {
	Score             int            `json:"score"`
	MatchedEventTypes []string       `json:"matched_event_types"`
	Protocol          BridgeProtocol `json:"protocol"`
}

// CrossChainLink is an inferred pairing of two or more BridgeTransactions
// representing one logical transfer. Append-only: never mutated after
// creation.
type CrossChainLink struct {
	ID                       string         `json:"id"`
	SourceWalletAddress      string         `json:"source_wallet_address"`
	DestinationWalletAddress string         `json:"destination_wallet_address"`
	SourceChain              string         `json:"source_chain"`
	DestinationChain         string         `json:"destination_chain"`
	LinkType                 LinkType       `json:"link_type"`
	Confidence               ConfidenceBand `json:"confidence"`
	TokenAddress             string         `json:"token_address"`
	TokenSymbol              string         `json:"token_symbol,omitempty"`
	TotalAmount              string         `json:"total_amount"`
	TransactionCount         int            `json:"transaction_count"`
	FirstSeenAt              time.Time      `json:"first_seen_at"`
	LastSeenAt               time.Time      `json:"last_seen_at"`
	RiskScore                int            `json:"risk_score"`
	RiskFlags                []string       `json:"risk_flags"`
	Metadata                 LinkMetadata   `json:"metadata"`
	BridgeTransactionIDs     []string       `json:"bridge_transaction_ids"`
	CreatedAt                time.Time      `json:"created_at"`
}

// LinkStat is one row of the aggregate link statistics, grouped by
// (link type, confidence band) over a trailing window.
type LinkStat struct {
	LinkType   LinkType       `json:"link_type"`
	Confidence ConfidenceBand `json:"confidence"`
	Count      int            `json:"count"`
}
