package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainscope/bridge-sentinel/pkg/store"
)

// keyPrefix tags sentinel API keys so the gate can route verification
// without guessing. Wire format: bsk_<key id>_<secret>.
const keyPrefix = "bsk"

const (
	KeyStatusActive  = "active"
	KeyStatusExpired = "expired"
	KeyStatusRevoked = "revoked"
)

// KeyStore is the persistence surface for long-lived keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *store.APIKeyRecord) error
	GetAPIKey(ctx context.Context, id string) (*store.APIKeyRecord, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// APIKeyService issues and verifies opaque long-lived keys. Secrets are
// stored only as bcrypt hashes; the plaintext exists once, in the issue
// response.
type APIKeyService struct {
	store KeyStore
}

func NewAPIKeyService(st KeyStore) *APIKeyService {
	return &APIKeyService{store: st}
}

// IssueKey creates a new key for the principal and returns the plaintext
// credential. An empty permission list defers to the role table.
func (s *APIKeyService) IssueKey(
	ctx context.Context,
	userID string,
	role Role,
	permissions []Permission,
	expiresAt *time.Time,
) (string, *store.APIKeyRecord, error) {
	if !ValidRole(role) {
		return "", nil, fmt.Errorf("unknown role %q", role)
	}

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate key secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash key secret: %w", err)
	}

	perms := make([]string, len(permissions))
	for i, p := range permissions {
		perms[i] = string(p)
	}

	record := &store.APIKeyRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		Role:        string(role),
		SecretHash:  string(hash),
		Status:      KeyStatusActive,
		Permissions: perms,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, record); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("%s_%s_%s", keyPrefix, record.ID, secret), record, nil
}

// VerifyKey checks a presented key: format, existence, status, expiry and
// the secret hash. Failures all collapse to a generic error so callers
// cannot probe which stage rejected.
func (s *APIKeyService) VerifyKey(ctx context.Context, presented string) (*Identity, error) {
	id, secret, err := splitKey(presented)
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil, fmt.Errorf("unknown api key")
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if record.Status != KeyStatusActive {
		return nil, fmt.Errorf("api key is %s", record.Status)
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		return nil, fmt.Errorf("api key is expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(secret)); err != nil {
		return nil, fmt.Errorf("api key secret mismatch")
	}

	perms := make([]Permission, len(record.Permissions))
	for i, p := range record.Permissions {
		perms[i] = Permission(p)
	}

	return &Identity{
		UserID:      record.UserID,
		Role:        Role(record.Role),
		Permissions: perms,
	}, nil
}

// Revoke permanently disables a key.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	return s.store.RevokeAPIKey(ctx, id)
}

// IsAPIKey reports whether a credential looks like a sentinel key rather
// than a session token.
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, keyPrefix+"_")
}

func splitKey(presented string) (id, secret string, err error) {
	parts := strings.SplitN(presented, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed api key")
	}
	return parts[1], parts[2], nil
}
