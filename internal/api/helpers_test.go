package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vidstream/internal/auth"
	"vidstream/internal/models"
	"vidstream/internal/storage"
	"vidstream/internal/testsupport"
	"vidstream/internal/views"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := storage.NewStorage(
		filepath.Join(t.TempDir(), "store.json"),
		storage.WithPasswordHasher(auth.NewPasswordHasher(bcrypt.MinCost)),
	)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
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

	handler := NewHandler(store, tokens, sessions)
	handler.Media = &testsupport.MediaHost{}
	handler.Views = views.NewMemoryCounter()
	handler.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return handler
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v (data %s)", err, string(env.Data))
	}
}

// multipartRequest builds a multipart POST/PATCH with string fields and small
// inline file parts.
func multipartRequest(t *testing.T, method, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create file part %s: %v", name, err)
		}
		if _, err := part.Write([]byte("test payload for " + filename)); err != nil {
			t.Fatalf("write file part %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// asUser attaches the user to the request context the way the server's auth
// middleware does.
func asUser(r *http.Request, user models.User) *http.Request {
	user.PasswordHash = ""
	user.RefreshToken = ""
	return r.WithContext(ContextWithUser(r.Context(), user))
}

func registerAccount(t *testing.T, h *Handler, username string) models.PublicUser {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/api/auth/register",
		map[string]string{
			"username":    username,
			"email":       username + "@example.com",
			"password":    "Sw0rdfish!",
			"displayName": username + " display",
		},
		map[string]string{"avatar": username + "-avatar.png"},
	)
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var user models.PublicUser
	decodeData(t, rec, &user)
	return user
}

func loginAccount(t *testing.T, h *Handler, username, password string) loginResponse {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeData(t, rec, &resp)
	return resp
}

func createTestVideo(t *testing.T, h *Handler, ownerID, title string) models.Video {
	t.Helper()
	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:      ownerID,
		Title:        title,
		VideoURL:     "https://media.test/" + ownerID + "-" + title + ".mp4",
		ThumbnailURL: "https://media.test/" + ownerID + "-" + title + ".jpg",
		Published:    true,
	})
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	return video
}

func mustUser(t *testing.T, h *Handler, id string) models.User {
	t.Helper()
	user, ok := h.Store.GetUser(id)
	if !ok {
		t.Fatalf("user %s not found", id)
	}
	return user
}
