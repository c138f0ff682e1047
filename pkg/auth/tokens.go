package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by a short-lived session token.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed session tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// IssueToken mints a session token for the given principal.
func (s *TokenService) IssueToken(userID, email string, role Role) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	claims := SessionClaims{
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature, expiry and issuer, and resolves the
// identity carried by the token.
func (s *TokenService) VerifyToken(tokenString string) (*Identity, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	role := Role(claims.Role)
	if !ValidRole(role) {
		return nil, fmt.Errorf("token carries unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}
