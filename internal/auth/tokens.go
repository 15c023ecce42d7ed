package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vidstream/internal/models"
)

var (
	// ErrTokenExpired is returned when a token carries a valid signature but
	// its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed tokens, bad signatures, and
	// tokens signed with an unexpected algorithm.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenConfig carries the signing material and lifetimes for both token
// classes. Access and refresh tokens use distinct secrets so one class can
// never be replayed as the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// AccessClaims is the payload of a short-lived access token. It carries enough
// identity to render most responses without a storage round trip.
type AccessClaims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token. It is kept
// minimal so a leaked refresh token reveals nothing beyond the account id.
type RefreshClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies both token classes with HMAC-SHA256. It is
// stateless; session validity beyond signature and expiry is the
// SessionManager's concern.
type TokenManager struct {
	config TokenConfig
}

// NewTokenManager validates the configuration and returns a ready manager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh lifetime must exceed access lifetime")
	}
	return &TokenManager{config: cfg}, nil
}

// AccessTTL exposes the configured access-token lifetime for cookie expiry.
func (m *TokenManager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL exposes the configured refresh-token lifetime for cookie expiry.
func (m *TokenManager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccessToken signs a new access token for the provided user.
func (m *TokenManager) IssueAccessToken(user models.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a new refresh token for the provided user id.
func (m *TokenManager) IssueRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.RefreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature and expiry and returns the embedded
// claims. Any defect maps to ErrTokenExpired or ErrTokenInvalid.
func (m *TokenManager) VerifyAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(raw, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry of a refresh token. Mirror
// comparison against the stored copy happens in the SessionManager.
func (m *TokenManager) VerifyRefreshToken(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(raw, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) parse(raw string, claims jwt.Claims, secret []byte) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
