package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chainscope/bridge-sentinel/pkg/store/dao"
)

// APIKeyRecord is the stored shape of a long-lived key credential.
type APIKeyRecord struct {
	ID          string
	UserID      string
	Role        string
	SecretHash  string
	Status      string
	Permissions []string
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// CreateAPIKey persists a new key record.
func (s *Store) CreateAPIKey(ctx context.Context, key *APIKeyRecord) error {
	d := &dao.APIKeyDao{
		ID:          key.ID,
		UserID:      key.UserID,
		Role:        key.Role,
		SecretHash:  key.SecretHash,
		Status:      key.Status,
		Permissions: key.Permissions,
		ExpiresAt:   key.ExpiresAt,
	}
	_, err := s.db.NewInsert().
		Model(d).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKey retrieves a key record by id.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*APIKeyRecord, error) {
	d := new(dao.APIKeyDao)
	err := s.db.NewSelect().
		Model(d).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &APIKeyRecord{
		ID:          d.ID,
		UserID:      d.UserID,
		Role:        d.Role,
		SecretHash:  d.SecretHash,
		Status:      d.Status,
		Permissions: d.Permissions,
		ExpiresAt:   d.ExpiresAt,
		RevokedAt:   d.RevokedAt,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// RevokeAPIKey marks a key revoked. Revoked keys fail verification.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*dao.APIKeyDao)(nil)).
		Set("status = 'revoked'").
		Set("revoked_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read revoke result: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}
