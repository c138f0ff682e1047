package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// CrossChainLinkDao is a data access object that maps directly to the
// 'cross_chain_links' table in PostgreSQL. Rows are append-only.
type CrossChainLinkDao struct {
	bun.BaseModel            `bun:"table:cross_chain_links,alias:ccl"`
	ID                       string          `bun:"id,pk,type:varchar(64)"`
	SourceWalletAddress      string          `bun:"source_wallet_address,notnull,type:varchar(66)"`
	DestinationWalletAddress string          `bun:"destination_wallet_address,notnull,type:varchar(66)"`
	SourceChain              string          `bun:"source_chain,notnull,type:varchar(32)"`
	DestinationChain         string          `bun:"destination_chain,notnull,type:varchar(32)"`
	LinkType                 string          `bun:"link_type,notnull,type:varchar(32)"`
	Confidence               string          `bun:"confidence,notnull,type:varchar(16)"`
	TokenAddress             string          `bun:"token_address,notnull,type:varchar(66)"`
	TokenSymbol              *string         `bun:"token_symbol,type:varchar(16)"`
	TotalAmount              string          `bun:"total_amount,notnull,type:numeric"`
	TransactionCount         int             `bun:"transaction_count,notnull"`
	FirstSeenAt              time.Time       `bun:"first_seen_at,notnull"`
	LastSeenAt               time.Time       `bun:"last_seen_at,notnull"`
	RiskScore                int             `bun:"risk_score,notnull,default:0"`
	RiskFlags                []string        `bun:"risk_flags,array"`
	Metadata                 LinkMetadataDao `bun:"metadata,type:jsonb"`
	BridgeTransactionIDs     []string        `bun:"bridge_transaction_ids,array,notnull"`
	CreatedAt                time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
}

// LinkMetadataDao is stored as a jsonb column on cross_chain_links.
type LinkMetadataDao struct {
	Score             int      `json:"score"`
	MatchedEventTypes []string `json:"matched_event_types"`
	Protocol          string   `json:"protocol"`
}
