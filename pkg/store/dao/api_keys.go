package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// APIKeyDao is a data access object that maps directly to the 'api_keys'
// table in PostgreSQL. Only a bcrypt hash of the key secret is stored.
type APIKeyDao struct {
	bun.BaseModel `bun:"table:api_keys,alias:ak"`
	ID            string     `bun:"id,pk,type:varchar(64)"`
	UserID        string     `bun:"user_id,notnull,type:varchar(64)"`
	Role          string     `bun:"role,notnull,type:varchar(32)"`
	SecretHash    string     `bun:"secret_hash,notnull,type:varchar(128)"`
	Status        string     `bun:"status,notnull,type:varchar(16),default:'active'"`
	Permissions   []string   `bun:"permissions,array"`
	ExpiresAt     *time.Time `bun:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}
