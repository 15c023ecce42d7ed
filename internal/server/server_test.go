package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vidstream/internal/api"
	"vidstream/internal/auth"
	"vidstream/internal/storage"
	"vidstream/internal/testsupport"
	"vidstream/internal/views"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *api.Handler) {
	t.Helper()
	store, err := storage.NewStorage(
		filepath.Join(t.TempDir(), "store.json"),
		storage.WithPasswordHasher(auth.NewPasswordHasher(bcrypt.MinCost)),
	)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte("server-test-access"),
		RefreshSecret: []byte("server-test-refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "vidstream-test",
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	sessions, err := auth.NewSessionManager(tokens, store)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}

	handler := api.NewHandler(store, tokens, sessions)
	handler.Media = &testsupport.MediaHost{}
	handler.Views = views.NewMemoryCounter()
	handler.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, handler
}

func serveRequest(srv *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, r)
	return rec
}

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func registerRequest(t *testing.T, username string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"username":    username,
		"email":       username + "@example.com",
		"password":    "Sw0rdfish!",
		"displayName": username + " display",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	part, err := writer.CreateFormFile("avatar", username+".png")
	if err != nil {
		t.Fatalf("create avatar part: %v", err)
	}
	if _, err := part.Write([]byte("avatar bytes")); err != nil {
		t.Fatalf("write avatar part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := serveRequest(srv, registerRequest(t, "alice"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body %s", rec.Code, rec.Body.String())
	}

	loginBody, _ := json.Marshal(map[string]string{"username": "alice", "password": "Sw0rdfish!"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	rec = serveRequest(srv, loginReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body %s", rec.Code, rec.Body.String())
	}
	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	env := decodeBody(t, rec)
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("login must return both tokens")
	}

	meReq := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = serveRequest(srv, meReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d body %s", rec.Code, rec.Body.String())
	}

	// Token timestamps have second resolution; wait so rotation mints a
	// distinct refresh token.
	time.Sleep(1100 * time.Millisecond)

	refreshBody, _ := json.Marshal(map[string]string{"refreshToken": session.RefreshToken})
	refreshReq := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(refreshBody))
	refreshReq.Header.Set("Content-Type", "application/json")
	rec = serveRequest(srv, refreshReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body %s", rec.Code, rec.Body.String())
	}

	// The first refresh token is now stale; replaying it must fail.
	replayReq := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(refreshBody))
	replayReq.Header.Set("Content-Type", "application/json")
	rec = serveRequest(srv, replayReq)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d body %s", rec.Code, rec.Body.String())
	}
	if env := decodeBody(t, rec); env.Message != "refresh token expired or already used" {
		t.Fatalf("stale refresh message = %q", env.Message)
	}
}

func TestLogoutKeepsAccessTokenUntilExpiry(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	serveRequest(srv, registerRequest(t, "bob"))
	loginBody, _ := json.Marshal(map[string]string{"username": "bob", "password": "Sw0rdfish!"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	rec := serveRequest(srv, loginReq)

	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	env := decodeBody(t, rec)
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode login data: %v", err)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	logoutReq.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = serveRequest(srv, logoutReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d body %s", rec.Code, rec.Body.String())
	}

	refreshBody, _ := json.Marshal(map[string]string{"refreshToken": session.RefreshToken})
	refreshReq := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(refreshBody))
	refreshReq.Header.Set("Content-Type", "application/json")
	if rec = serveRequest(srv, refreshReq); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d", rec.Code)
	}

	meReq := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+session.AccessToken)
	if rec = serveRequest(srv, meReq); rec.Code != http.StatusOK {
		t.Fatalf("me after logout status = %d, access token should remain valid", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	cases := []struct {
		name   string
		method string
		path   string
	}{
		{name: "profile", method: http.MethodGet, path: "/api/users/me"},
		{name: "history", method: http.MethodGet, path: "/api/users/me/history"},
		{name: "logout", method: http.MethodPost, path: "/api/auth/logout"},
		{name: "change password", method: http.MethodPost, path: "/api/auth/change-password"},
		{name: "create video", method: http.MethodPost, path: "/api/videos"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveRequest(srv, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if env := decodeBody(t, rec); env.Success {
				t.Fatal("expected failure envelope")
			}
		})
	}
}

func TestOptionalAuthAllowsAnonymousBrowsing(t *testing.T) {
	srv, handler := newTestServer(t, Config{})

	serveRequest(srv, registerRequest(t, "carol"))
	owner, ok := handler.Store.FindUserByUsername("carol")
	if !ok {
		t.Fatal("registered account not found")
	}
	if _, err := handler.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:      owner.ID,
		Title:        "public clip",
		VideoURL:     "https://media.test/clip.mp4",
		ThumbnailURL: "https://media.test/clip.jpg",
		Published:    true,
	}); err != nil {
		t.Fatalf("create video: %v", err)
	}

	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous list status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = serveRequest(srv, httptest.NewRequest(http.MethodGet, "/api/channels/carol", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous channel status = %d body %s", rec.Code, rec.Body.String())
	}

	// A garbage token on an optional route degrades to anonymous access.
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if rec = serveRequest(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("optional route with bad token status = %d", rec.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", rec.Header().Get("X-Content-Type-Options"))
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("X-Frame-Options = %q", rec.Header().Get("X-Frame-Options"))
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Fatalf("Content-Security-Policy = %q, want deny-all default for a JSON API", csp)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "supplied-id")
	rec = serveRequest(srv, req)
	if got := rec.Header().Get("X-Request-Id"); got != "supplied-id" {
		t.Fatalf("X-Request-Id = %q, want supplied-id", got)
	}
}

func TestCORSPolicy(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://app.vidstream.example"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.vidstream.example")
	rec := serveRequest(srv, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.vidstream.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	if rec = serveRequest(srv, req); rec.Code != http.StatusForbidden {
		t.Fatalf("blocked origin status = %d", rec.Code)
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/api/videos", nil)
	preflight.Header.Set("Origin", "https://app.vidstream.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	if rec = serveRequest(srv, preflight); rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	serveRequest(srv, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("vidstream_http_requests_total")) {
		t.Fatalf("metrics body missing request counter:\n%s", rec.Body.String())
	}
}
