package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"vidstream/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken pulls the access token from the Authorization header or the
// access-token cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest is the access guard. It verifies the presented access
// token and resolves the account, with credential material stripped. The
// returned error is for server-side diagnostics only; callers must respond
// with a generic 401 regardless of which step failed.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, fmt.Errorf("missing access token")
	}
	claims, err := h.Tokens.VerifyAccessToken(token)
	if err != nil {
		return models.User{}, fmt.Errorf("verify access token: %w", err)
	}
	user, exists := h.Store.GetUser(claims.UserID)
	if !exists {
		return models.User{}, fmt.Errorf("account %s not found", claims.UserID)
	}
	user.PasswordHash = ""
	user.RefreshToken = ""
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "authentication required")
		return models.User{}, false
	}
	return user, true
}
