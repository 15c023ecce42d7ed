package api

import (
	"log/slog"
	"net/http"
	"sync"

	"vidstream/internal/auth"
	"vidstream/internal/media"
	"vidstream/internal/storage"
	"vidstream/internal/views"
)

// Handler owns the HTTP surface. Store, Tokens, and Sessions are required;
// Media and Views fall back to disabled/in-memory implementations so tests
// and minimal deployments work without external services.
type Handler struct {
	Store    storage.Repository
	Tokens   *auth.TokenManager
	Sessions *auth.SessionManager
	Media    media.Host
	Views    views.Counter
	Logger   *slog.Logger
	Cookies  CookiePolicy

	fallbackViewsOnce sync.Once
	fallbackViews     views.Counter
}

func NewHandler(store storage.Repository, tokens *auth.TokenManager, sessions *auth.SessionManager) *Handler {
	return &Handler{
		Store:    store,
		Tokens:   tokens,
		Sessions: sessions,
		Cookies:  DefaultCookiePolicy(),
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) mediaHost() media.Host {
	if h.Media != nil {
		return h.Media
	}
	return media.Disabled()
}

// viewCounter never mutates the exported Views field; concurrent requests on
// an unwired Handler share one memory counter guarded by the Once.
func (h *Handler) viewCounter() views.Counter {
	if h.Views != nil {
		return h.Views
	}
	h.fallbackViewsOnce.Do(func() {
		h.fallbackViews = views.NewMemoryCounter()
	})
	return h.fallbackViews
}

// Health reports datastore reachability. It bypasses the response envelope;
// probes want a flat document.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			h.logger().Warn("datastore ping failed", "error", err)
		}
	}
	writeJSON(w, httpStatus, map[string]string{"status": status})
}
