package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"vidstream/internal/models"
)

// ErrSessionInvalid is returned when a refresh token fails the stored-mirror
// comparison. The token was either rotated away, cleared by logout, or is
// being replayed.
var ErrSessionInvalid = errors.New("refresh token expired or already used")

// UserDirectory is the narrow storage surface the session layer needs. The
// repository implements it; tests supply stubs.
type UserDirectory interface {
	GetUser(id string) (models.User, bool)
	SetRefreshToken(id, token string) error
	ClearRefreshToken(id string) error
}

// TokenPair bundles the two tokens returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionManager implements the refresh-rotation protocol: one live refresh
// token per account, mirrored on the user record, replaced on every refresh.
type SessionManager struct {
	tokens *TokenManager
	users  UserDirectory
}

// NewSessionManager wires the token codec to the user directory.
func NewSessionManager(tokens *TokenManager, users UserDirectory) (*SessionManager, error) {
	if tokens == nil {
		return nil, errors.New("token manager is required")
	}
	if users == nil {
		return nil, errors.New("user directory is required")
	}
	return &SessionManager{tokens: tokens, users: users}, nil
}

// Issue creates a fresh token pair for the user and persists the refresh
// mirror, displacing any previous session for the account.
func (m *SessionManager) Issue(user models.User) (TokenPair, error) {
	access, err := m.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.users.SetRefreshToken(user.ID, refresh); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate validates the presented refresh token against both the codec and the
// stored mirror, then issues a replacement pair. A mirror mismatch means the
// token was already rotated or revoked and yields ErrSessionInvalid; the
// caller must treat that as an expired session, not retry.
//
// Concurrent rotations for the same account race on the mirror write; the
// last writer wins and earlier pairs stop refreshing. That is the intended
// single-session semantics.
func (m *SessionManager) Rotate(raw string) (models.User, TokenPair, error) {
	claims, err := m.tokens.VerifyRefreshToken(raw)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	user, ok := m.users.GetUser(claims.UserID)
	if !ok {
		return models.User{}, TokenPair{}, ErrSessionInvalid
	}
	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(raw)) != 1 {
		return models.User{}, TokenPair{}, ErrSessionInvalid
	}
	pair, err := m.Issue(user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Logout clears the refresh mirror for the account. It is idempotent and does
// not touch outstanding access tokens, which stay valid until their expiry.
func (m *SessionManager) Logout(userID string) error {
	if userID == "" {
		return nil
	}
	return m.users.ClearRefreshToken(userID)
}
