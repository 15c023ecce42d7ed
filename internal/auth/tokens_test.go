package auth

import (
	"errors"
	"testing"
	"time"

	"vidstream/internal/models"
)

func newTestTokenManager(t *testing.T, accessTTL, refreshTTL time.Duration) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Issuer:        "vidstream-test",
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return manager
}

func TestNewTokenManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  TokenConfig
	}{
		{"missing secrets", TokenConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"zero access ttl", TokenConfig{AccessSecret: []byte("a"), RefreshSecret: []byte("b"), RefreshTTL: time.Hour}},
		{"refresh not longer", TokenConfig{AccessSecret: []byte("a"), RefreshSecret: []byte("b"), AccessTTL: time.Hour, RefreshTTL: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTokenManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := newTestTokenManager(t, time.Minute, time.Hour)
	user := models.User{
		ID:          "user-1",
		Email:       "creator@example.com",
		Username:    "creator",
		DisplayName: "Creator",
	}

	raw, err := manager.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	claims, err := manager.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.Username != user.Username || claims.DisplayName != user.DisplayName {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	manager := newTestTokenManager(t, -time.Minute, time.Hour)
	raw, err := manager.IssueAccessToken(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	if _, err := manager.VerifyAccessToken(raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyAccessTokenRejectsTamperedAndGarbage(t *testing.T) {
	manager := newTestTokenManager(t, time.Minute, time.Hour)
	raw, err := manager.IssueAccessToken(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	tampered := raw[:len(raw)-4] + "AAAA"
	if _, err := manager.VerifyAccessToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
	if _, err := manager.VerifyAccessToken("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestTokenClassesUseDistinctSecrets(t *testing.T) {
	manager := newTestTokenManager(t, time.Minute, time.Hour)
	refresh, err := manager.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatalf("issue refresh token: %v", err)
	}
	if _, err := manager.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	access, err := manager.IssueAccessToken(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	if _, err := manager.VerifyRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

func TestRefreshTokenCarriesOnlyUserID(t *testing.T) {
	manager := newTestTokenManager(t, time.Minute, time.Hour)
	raw, err := manager.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatalf("issue refresh token: %v", err)
	}
	claims, err := manager.VerifyRefreshToken(raw)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("user id = %q, want user-1", claims.UserID)
	}
}
