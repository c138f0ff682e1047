// Package store provides the PostgreSQL persistence layer for bridge
// transactions, cross-chain links and API keys.
package store

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/chainscope/bridge-sentinel/pkg/model"
	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

var (
	// ErrConflict is returned by MarkProcessed when one of the target
	// transactions was already consumed by another link.
	ErrConflict = errors.New("transaction already linked")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrKeyNotFound is returned when an API key id is unknown.
	ErrKeyNotFound = errors.New("api key not found")
)

// Store provides database operations backed by bun.
type Store struct {
	db *bun.DB
}

// New creates a new store on top of an existing bun connection.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying bun connection for advanced queries.
func (s *Store) DB() *bun.DB {
	return s.db
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func toTransactionDao(tx *model.BridgeTransaction) *dao.BridgeTransactionDao {
	d := &dao.BridgeTransactionDao{
		ID:              tx.ID,
		BridgeProtocol:  string(tx.BridgeProtocol),
		SourceChain:     tx.SourceChain,
		EventType:       tx.EventType,
		TokenAddress:    tx.TokenAddress,
		Amount:          tx.Amount,
		SourceAddress:   tx.SourceAddress,
		TransactionHash: tx.TransactionHash,
		BlockNumber:     tx.BlockNumber,
		Timestamp:       tx.Timestamp,
		RiskScore:       tx.RiskScore,
		Processed:       tx.Processed,
		LinkedLinkID:    tx.LinkedLinkID,
	}
	if tx.DestinationChain != "" {
		d.DestinationChain = &tx.DestinationChain
	}
	if tx.TokenSymbol != "" {
		d.TokenSymbol = &tx.TokenSymbol
	}
	if tx.DestinationAddress != "" {
		d.DestinationAddress = &tx.DestinationAddress
	}
	return d
}

func toTransaction(d *dao.BridgeTransactionDao) *model.BridgeTransaction {
	tx := &model.BridgeTransaction{
		ID:              d.ID,
		BridgeProtocol:  model.BridgeProtocol(d.BridgeProtocol),
		SourceChain:     d.SourceChain,
		EventType:       d.EventType,
		TokenAddress:    d.TokenAddress,
		Amount:          d.Amount,
		SourceAddress:   d.SourceAddress,
		TransactionHash: d.TransactionHash,
		BlockNumber:     d.BlockNumber,
		Timestamp:       d.Timestamp,
		RiskScore:       d.RiskScore,
		Processed:       d.Processed,
		LinkedLinkID:    d.LinkedLinkID,
	}
	if d.DestinationChain != nil {
		tx.DestinationChain = *d.DestinationChain
	}
	if d.TokenSymbol != nil {
		tx.TokenSymbol = *d.TokenSymbol
	}
	if d.DestinationAddress != nil {
		tx.DestinationAddress = *d.DestinationAddress
	}
	return tx
}

func toLinkDao(link *model.CrossChainLink) *dao.CrossChainLinkDao {
	d := &dao.CrossChainLinkDao{
		ID:                       link.ID,
		SourceWalletAddress:      link.SourceWalletAddress,
		DestinationWalletAddress: link.DestinationWalletAddress,
		SourceChain:              link.SourceChain,
		DestinationChain:         link.DestinationChain,
		LinkType:                 string(link.LinkType),
		Confidence:               string(link.Confidence),
		TokenAddress:             link.TokenAddress,
		TotalAmount:              link.TotalAmount,
		TransactionCount:         link.TransactionCount,
		FirstSeenAt:              link.FirstSeenAt,
		LastSeenAt:               link.LastSeenAt,
		RiskScore:                link.RiskScore,
		RiskFlags:                link.RiskFlags,
		BridgeTransactionIDs:     link.BridgeTransactionIDs,
		Metadata: dao.LinkMetadataDao{
			Score:             link.Metadata.Score,
			MatchedEventTypes: link.Metadata.MatchedEventTypes,
			Protocol:          string(link.Metadata.Protocol),
		},
	}
	if link.TokenSymbol != "" {
		d.TokenSymbol = &link.TokenSymbol
	}
	return d
}

func toLink(d *dao.CrossChainLinkDao) *model.CrossChainLink {
	link := &model.CrossChainLink{
		ID:                       d.ID,
		SourceWalletAddress:      d.SourceWalletAddress,
		DestinationWalletAddress: d.DestinationWalletAddress,
		SourceChain:              d.SourceChain,
		DestinationChain:         d.DestinationChain,
		LinkType:                 model.LinkType(d.LinkType),
		Confidence:               model.ConfidenceBand(d.Confidence),
		TokenAddress:             d.TokenAddress,
		TotalAmount:              d.TotalAmount,
		TransactionCount:         d.TransactionCount,
		FirstSeenAt:              d.FirstSeenAt,
		LastSeenAt:               d.LastSeenAt,
		RiskScore:                d.RiskScore,
		RiskFlags:                d.RiskFlags,
		BridgeTransactionIDs:     d.BridgeTransactionIDs,
		CreatedAt:                d.CreatedAt,
		Metadata: model.LinkMetadata{
			Score:             d.Metadata.Score,
			MatchedEventTypes: d.Metadata.MatchedEventTypes,
			Protocol:          model.BridgeProtocol(d.Metadata.Protocol),
		},
	}
	if d.TokenSymbol != nil {
		link.TokenSymbol = *d.TokenSymbol
	}
	return link
}
