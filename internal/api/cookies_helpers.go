package api

import (
	"net/http"
	"strings"
	"time"

	"vidstream/internal/auth"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type CookieSecureMode int

const (
	// CookieSecureAuto marks cookies Secure only when the request arrived
	// over TLS, directly or via a forwarding proxy.
	CookieSecureAuto CookieSecureMode = iota
	CookieSecureAlways
)

type CookiePolicy struct {
	SameSite   http.SameSite
	SecureMode CookieSecureMode
}

func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: CookieSecureAuto,
	}
}

func (p CookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == CookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func (h *Handler) cookiePolicy() CookiePolicy {
	policy := h.Cookies
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

// setAuthCookies installs both token cookies. The cookie lifetimes track the
// token lifetimes so an expired cookie never presents a token the codec would
// accept.
func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	policy := h.cookiePolicy()
	now := time.Now()
	setTokenCookie(w, r, accessTokenCookie, pair.AccessToken, now.Add(h.Tokens.AccessTTL()), policy)
	setTokenCookie(w, r, refreshTokenCookie, pair.RefreshToken, now.Add(h.Tokens.RefreshTTL()), policy)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.cookiePolicy()
	clearTokenCookie(w, r, accessTokenCookie, policy)
	clearTokenCookie(w, r, refreshTokenCookie, policy)
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value string, expires time.Time, policy CookiePolicy) {
	if value == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func clearTokenCookie(w http.ResponseWriter, r *http.Request, name string, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
