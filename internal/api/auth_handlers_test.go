package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidstream/internal/testsupport"
)

func TestRegisterReturnsSanitizedProfile(t *testing.T) {
	h := newTestHandler(t)

	req := multipartRequest(t, http.MethodPost, "/api/auth/register",
		map[string]string{
			"username":    "alice",
			"email":       "a@x.com",
			"password":    "Sw0rdfish!",
			"displayName": "Alice",
		},
		map[string]string{"avatar": "avatar.png", "coverImage": "cover.jpg"},
	)
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	for _, secret := range []string{"passwordHash", "refreshToken", "password"} {
		if _, present := fields[secret]; present {
			t.Fatalf("profile leaks %s: %s", secret, string(env.Data))
		}
	}
	if string(fields["username"]) != `"alice"` {
		t.Fatalf("username = %s", fields["username"])
	}
	if !strings.Contains(string(fields["avatarUrl"]), "https://media.test/") {
		t.Fatalf("avatarUrl = %s", fields["avatarUrl"])
	}
}

func TestRegisterDuplicateIdentityConflicts(t *testing.T) {
	h := newTestHandler(t)
	registerAccount(t, h, "alice")

	cases := []struct {
		name     string
		username string
		email    string
	}{
		{name: "same username", username: "Alice", email: "other@x.com"},
		{name: "same email", username: "someoneelse", email: "alice@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, http.MethodPost, "/api/auth/register",
				map[string]string{
					"username":    tc.username,
					"email":       tc.email,
					"password":    "Sw0rdfish!",
					"displayName": "Dup",
				},
				map[string]string{"avatar": "avatar.png"},
			)
			rec := httptest.NewRecorder()
			h.Register(rec, req)
			if rec.Code != http.StatusConflict {
				t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
			}
			if env := decodeEnvelope(t, rec); env.Success {
				t.Fatal("conflict must use the failure envelope")
			}
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(t)

	t.Run("missing fields listed", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/auth/register",
			map[string]string{"username": "bob"},
			map[string]string{"avatar": "avatar.png"},
		)
		rec := httptest.NewRecorder()
		h.Register(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if len(env.Errors) != 3 {
			t.Fatalf("errors = %v, want email, password, displayName", env.Errors)
		}
	})

	t.Run("avatar required", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/auth/register",
			map[string]string{
				"username":    "bob",
				"email":       "bob@example.com",
				"password":    "Sw0rdfish!",
				"displayName": "Bob",
			},
			nil,
		)
		rec := httptest.NewRecorder()
		h.Register(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestRegisterUploadFailureIsDependencyError(t *testing.T) {
	h := newTestHandler(t)
	h.Media = &testsupport.MediaHost{FailUploads: true}

	req := multipartRequest(t, http.MethodPost, "/api/auth/register",
		map[string]string{
			"username":    "carol",
			"email":       "carol@example.com",
			"password":    "Sw0rdfish!",
			"displayName": "Carol",
		},
		map[string]string{"avatar": "avatar.png"},
	)
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %s)", rec.Code, rec.Body.String())
	}
	if _, exists := h.Store.FindUserByUsername("carol"); exists {
		t.Fatal("account must not be created when the avatar upload fails")
	}
}

func TestLoginMatchesSuppliedIdentifier(t *testing.T) {
	h := newTestHandler(t)
	registerAccount(t, h, "alice")

	t.Run("by username", func(t *testing.T) {
		resp := loginAccount(t, h, "alice", "Sw0rdfish!")
		if resp.AccessToken == "" || resp.RefreshToken == "" {
			t.Fatal("token pair missing")
		}
		if resp.User.Username != "alice" {
			t.Fatalf("user = %+v", resp.User)
		}
	})

	t.Run("by email", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "ALICE@example.com",
			"password": "Sw0rdfish!",
		})
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"username": "alice",
			"password": "not-the-password",
		})
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"username": "nobody",
			"password": "whatever123",
		})
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestLoginSetsAuthCookies(t *testing.T) {
	h := newTestHandler(t)
	registerAccount(t, h, "alice")

	req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "Sw0rdfish!",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	cookies := rec.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie, ok := byName[name]
		if !ok {
			t.Fatalf("cookie %s missing", name)
		}
		if !cookie.HttpOnly {
			t.Fatalf("cookie %s must be HttpOnly", name)
		}
		if cookie.Value == "" || cookie.MaxAge <= 0 {
			t.Fatalf("cookie %s = %+v", name, cookie)
		}
	}
	if byName["refreshToken"].MaxAge <= byName["accessToken"].MaxAge {
		t.Fatal("refresh cookie must outlive the access cookie")
	}
}

func TestRefreshRotatesAndRejectsStaleToken(t *testing.T) {
	h := newTestHandler(t)
	registerAccount(t, h, "alice")
	first := loginAccount(t, h, "alice", "Sw0rdfish!")

	// Token timestamps have second precision; an instant rotation would mint
	// a byte-identical token.
	time.Sleep(1100 * time.Millisecond)

	req := jsonRequest(t, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": first.RefreshToken,
	})
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rotated loginResponse
	decodeData(t, rec, &rotated)
	if rotated.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// Replaying the rotated-out token must fail the mirror comparison.
	req = jsonRequest(t, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": first.RefreshToken,
	})
	rec = httptest.NewRecorder()
	h.Refresh(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "refresh token expired or already used" {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestRefreshReadsCookie(t *testing.T) {
	h := newTestHandler(t)
	registerAccount(t, h, "alice")
	resp := loginAccount(t, h, "alice", "Sw0rdfish!")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: resp.RefreshToken})
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshWithoutTokenRejected(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogoutClearsMirrorButNotAccessToken(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")
	resp := loginAccount(t, h, "alice", "Sw0rdfish!")

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), mustUser(t, h, profile.ID))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge >= 0 || cookie.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", cookie.Name, cookie)
		}
	}

	// The refresh mirror is gone, so the refresh token is dead.
	refreshReq := jsonRequest(t, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": resp.RefreshToken,
	})
	refreshRec := httptest.NewRecorder()
	h.Refresh(refreshRec, refreshReq)
	if refreshRec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", refreshRec.Code)
	}

	// The access token is stateless and stays valid until its TTL.
	authedReq := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	authedReq.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	if _, err := h.AuthenticateRequest(authedReq); err != nil {
		t.Fatalf("access token must stay valid after logout: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")
	user := mustUser(t, h, profile.ID)

	t.Run("wrong old password leaves secret unchanged", func(t *testing.T) {
		req := asUser(jsonRequest(t, http.MethodPost, "/api/auth/change-password", map[string]string{
			"oldPassword": "wrong-guess",
			"newPassword": "NewSecret99",
		}), user)
		rec := httptest.NewRecorder()
		h.ChangePassword(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Message != "invalid old password" {
			t.Fatalf("message = %q", env.Message)
		}
		loginAccount(t, h, "alice", "Sw0rdfish!")
	})

	t.Run("correct old password rotates secret", func(t *testing.T) {
		req := asUser(jsonRequest(t, http.MethodPost, "/api/auth/change-password", map[string]string{
			"oldPassword": "Sw0rdfish!",
			"newPassword": "NewSecret99",
		}), user)
		rec := httptest.NewRecorder()
		h.ChangePassword(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		loginAccount(t, h, "alice", "NewSecret99")
	})
}
