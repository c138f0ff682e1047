package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// BridgeTransactionDao is a data access object that maps directly to the
// 'bridge_transactions' table in PostgreSQL. The (transaction_hash,
// bridge_protocol) pair is unique so replayed logs cannot duplicate rows.
type BridgeTransactionDao struct {
	bun.BaseModel      `bun:"table:bridge_transactions,alias:bt"`
	ID                 string     `bun:"id,pk,type:varchar(64)"`
	BridgeProtocol     string     `bun:"bridge_protocol,notnull,type:varchar(32),unique:uq_bridge_transactions_hash_protocol"`
	SourceChain        string     `bun:"source_chain,notnull,type:varchar(32)"`
	DestinationChain   *string    `bun:"destination_chain,type:varchar(32)"`
	EventType          string     `bun:"event_type,notnull,type:varchar(64)"`
	TokenAddress       string     `bun:"token_address,notnull,type:varchar(66)"`
	TokenSymbol        *string    `bun:"token_symbol,type:varchar(16)"`
	// Unconstrained numeric: raw token units of a uint256 word can run
	// to 78 digits, which a bounded precision would overflow.
	Amount             string     `bun:"amount,notnull,type:numeric"`
	SourceAddress      string     `bun:"source_address,notnull,type:varchar(66)"`
	DestinationAddress *string    `bun:"destination_address,type:varchar(66)"`
	TransactionHash    string     `bun:"transaction_hash,notnull,type:varchar(66),unique:uq_bridge_transactions_hash_protocol"`
	BlockNumber        int64      `bun:"block_number,notnull"`
	Timestamp          time.Time  `bun:"timestamp,notnull"`
	RiskScore          int        `bun:"risk_score,notnull,default:0"`
	Processed          bool       `bun:"processed,notnull,default:false"`
	LinkedLinkID       *string    `bun:"linked_link_id,type:varchar(64)"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}
