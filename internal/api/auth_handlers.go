package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vidstream/internal/auth"
	"vidstream/internal/media"
	"vidstream/internal/models"
	"vidstream/internal/observability/metrics"
	"vidstream/internal/storage"
)

// Register creates an account from a multipart form. The avatar image is
// required, the cover image optional; both go through the media host before
// the account row is written so a failed upload never leaves a half-built
// profile.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "registration requires multipart form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	displayName := strings.TrimSpace(r.FormValue("displayName"))

	var missing []string
	for field, value := range map[string]string{
		"username":    username,
		"email":       email,
		"password":    password,
		"displayName": displayName,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		writeFieldFailure(w, http.StatusBadRequest, "missing required fields", missing)
		return
	}

	avatar, err := h.uploadFormAsset(r.Context(), r, "avatar")
	if err != nil {
		if errors.Is(err, errMissingFile) {
			writeFieldFailure(w, http.StatusBadRequest, "avatar image is required", []string{"avatar"})
			return
		}
		h.logger().Error("avatar upload failed", "error", err)
		h.writeUploadFailure(w, err)
		return
	}

	var coverURL string
	cover, err := h.uploadFormAsset(r.Context(), r, "coverImage")
	switch {
	case err == nil:
		coverURL = cover.URL
	case errors.Is(err, errMissingFile):
		// Cover image is optional.
	default:
		h.logger().Error("cover upload failed", "error", err)
		h.discardAsset(r.Context(), avatar.URL)
		h.writeUploadFailure(w, err)
		return
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username:      username,
		Email:         email,
		DisplayName:   displayName,
		Password:      password,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		h.discardAsset(r.Context(), avatar.URL)
		h.discardAsset(r.Context(), coverURL)
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, user.Public(), "account created")
}

// writeUploadFailure reports a media-host failure as a dependency error
// rather than a 500; the request itself was well-formed.
func (h *Handler) writeUploadFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, media.ErrDisabled) {
		writeError(w, err)
		return
	}
	writeFailure(w, http.StatusBadGateway, "media upload failed")
}

func (h *Handler) discardAsset(ctx context.Context, assetURL string) {
	if assetURL == "" {
		return
	}
	if err := h.mediaHost().Delete(ctx, assetURL); err != nil && !errors.Is(err, media.ErrDisabled) {
		h.logger().Warn("discard uploaded asset", "url", assetURL, "error", err)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

// Login authenticates by username or email, whichever the client supplied,
// and issues a fresh token pair. Issuing displaces any previous session for
// the account.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	user, err := h.Store.AuthenticateUser(identifier, req.Password)
	if err != nil {
		metrics.ObserveAuthEvent("login_failure")
		writeError(w, err)
		return
	}
	pair, err := h.Sessions.Issue(user)
	if err != nil {
		h.logger().Error("issue session", "userId", user.ID, "error", err)
		writeError(w, err)
		return
	}

	metrics.ObserveAuthEvent("login_success")
	h.setAuthCookies(w, r, pair)
	writeData(w, http.StatusOK, loginResponse{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "logged in")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the session. The refresh token comes from the cookie or,
// for non-browser clients, the request body. A token that fails the stored
// mirror comparison was already rotated or revoked and yields 401; the client
// must log in again.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			raw = strings.TrimSpace(req.RefreshToken)
		}
	}
	if raw == "" {
		writeFailure(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	user, pair, err := h.Sessions.Rotate(raw)
	if err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			metrics.ObserveAuthEvent("refresh_reuse")
		} else {
			metrics.ObserveAuthEvent("refresh_failure")
		}
		h.logger().Info("refresh rejected", "error", err)
		writeError(w, err)
		return
	}

	metrics.ObserveAuthEvent("refresh_success")
	h.setAuthCookies(w, r, pair)
	writeData(w, http.StatusOK, loginResponse{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "session refreshed")
}

// Logout clears the refresh mirror and both cookies. Outstanding access
// tokens stay valid until their TTL; that is the documented trade-off of
// stateless access tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Logout(user.ID); err != nil {
		h.logger().Error("logout", "userId", user.ID, "error", err)
		writeError(w, err)
		return
	}
	metrics.ObserveAuthEvent("logout")
	h.clearAuthCookies(w, r)
	writeData(w, http.StatusOK, nil, "logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword verifies the old secret before storing the new one. The
// current session is left intact.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.Store.SetUserPassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeFailure(w, http.StatusUnauthorized, "invalid old password")
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil, "password changed")
}
