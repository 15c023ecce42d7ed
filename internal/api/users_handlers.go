package api

import (
	"errors"
	"net/http"
	"strings"

	"vidstream/internal/storage"
)

// Me serves the authenticated user's own profile and profile updates. Avatar
// and cover swaps have dedicated multipart endpoints.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, user.Public(), "current user")
	case http.MethodPatch:
		var req struct {
			DisplayName *string `json:"displayName"`
			Email       *string `json:"email"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		if req.DisplayName == nil && req.Email == nil {
			writeFailure(w, http.StatusBadRequest, "no profile fields supplied")
			return
		}
		updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
			DisplayName: req.DisplayName,
			Email:       req.Email,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, updated.Public(), "profile updated")
	default:
		methodNotAllowed(w, r, "GET, PATCH")
	}
}

// MeAvatar replaces the avatar image. The previous asset is deleted best
// effort once the profile points at the new one.
func (h *Handler) MeAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceProfileImage(w, r, "avatar")
}

// MeCover replaces the cover image.
func (h *Handler) MeCover(w http.ResponseWriter, r *http.Request) {
	h.replaceProfileImage(w, r, "coverImage")
}

func (h *Handler) replaceProfileImage(w http.ResponseWriter, r *http.Request, field string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "image update requires multipart form data")
		return
	}

	asset, err := h.uploadFormAsset(r.Context(), r, field)
	if err != nil {
		if errors.Is(err, errMissingFile) {
			writeFieldFailure(w, http.StatusBadRequest, field+" file is required", []string{field})
			return
		}
		h.logger().Error("profile image upload failed", "field", field, "error", err)
		h.writeUploadFailure(w, err)
		return
	}

	update := storage.UserUpdate{}
	previous := ""
	if field == "avatar" {
		update.AvatarURL = &asset.URL
		previous = user.AvatarURL
	} else {
		update.CoverImageURL = &asset.URL
		previous = user.CoverImageURL
	}

	updated, err := h.Store.UpdateUser(user.ID, update)
	if err != nil {
		h.discardAsset(r.Context(), asset.URL)
		writeError(w, err)
		return
	}
	h.discardAsset(r.Context(), previous)
	writeData(w, http.StatusOK, updated.Public(), field+" updated")
}

// MeHistory returns the viewer's watch history, most recent first.
func (h *Handler) MeHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	history, err := h.Store.WatchHistory(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, history, "watch history")
}

func trimPathSegment(path, prefix string) (string, string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
