package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliptube/account-service/internal/core/domain"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour
)

// TokenConfig carries the signing material for both token families. The two
// secrets must be distinct so a leaked access secret cannot mint long-lived
// refresh tokens, and vice versa.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AccessClaims is the payload of an access token: subject id plus the identity
// fields clients display without a store round-trip.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
}

// TokenManager mints and verifies the dual access/refresh JWTs. Construct it
// once at startup; missing secrets are a configuration error, not a
// per-request one.
type TokenManager struct {
	cfg TokenConfig
}

func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets must be configured")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	return &TokenManager{cfg: cfg}, nil
}

// IssueAccessToken signs a short-lived token carrying the account identity.
func (m *TokenManager) IssueAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
		Username: user.Username,
		Email:    user.Email,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(m.cfg.AccessSecret))
}

// IssueRefreshToken signs a long-lived token carrying only the subject id.
// The unique token id guarantees two issuances are never byte-identical, which
// the stored-value rotation check depends on.
func (m *TokenManager) IssueRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(m.cfg.RefreshSecret))
}

// VerifyAccessToken validates signature and expiry against the access secret.
// Any failure collapses to domain.ErrInvalidToken.
func (m *TokenManager) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.cfg.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates against the refresh secret and returns the
// subject id.
func (m *TokenManager) VerifyRefreshToken(token string) (string, error) {
	claims := &refreshClaims{}
	if err := m.parse(token, claims, m.cfg.RefreshSecret); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims, secret string) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}
