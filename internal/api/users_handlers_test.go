package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"vidstream/internal/models"
	"vidstream/internal/testsupport"
)

func TestMeReturnsSanitizedProfile(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), mustUser(t, h, profile.ID))
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var me models.PublicUser
	decodeData(t, rec, &me)
	if me.ID != profile.ID || me.Username != "alice" {
		t.Fatalf("me = %+v", me)
	}
}

func TestMeRequiresAuthentication(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMePatchUpdatesProfileFields(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")
	user := mustUser(t, h, profile.ID)

	req := asUser(jsonRequest(t, http.MethodPatch, "/api/users/me", map[string]string{
		"displayName": "Alice Prime",
	}), user)
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated models.PublicUser
	decodeData(t, rec, &updated)
	if updated.DisplayName != "Alice Prime" {
		t.Fatalf("displayName = %q", updated.DisplayName)
	}

	t.Run("empty patch rejected", func(t *testing.T) {
		req := asUser(jsonRequest(t, http.MethodPatch, "/api/users/me", map[string]string{}), user)
		rec := httptest.NewRecorder()
		h.Me(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestAvatarReplacementDeletesPreviousAsset(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")
	user := mustUser(t, h, profile.ID)
	previous := user.AvatarURL

	req := asUser(multipartRequest(t, http.MethodPatch, "/api/users/me/avatar",
		nil, map[string]string{"avatar": "new-avatar.png"}), user)
	rec := httptest.NewRecorder()
	h.MeAvatar(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated models.PublicUser
	decodeData(t, rec, &updated)
	if updated.AvatarURL == previous || updated.AvatarURL == "" {
		t.Fatalf("avatar not replaced: %q", updated.AvatarURL)
	}

	deleted := h.Media.(*testsupport.MediaHost).Deleted()
	if len(deleted) != 1 || deleted[0] != previous {
		t.Fatalf("previous avatar not cleaned up, deleted = %v", deleted)
	}
}

func TestCoverUpdateRequiresFilePart(t *testing.T) {
	h := newTestHandler(t)
	profile := registerAccount(t, h, "alice")

	req := asUser(multipartRequest(t, http.MethodPatch, "/api/users/me/cover", nil, nil), mustUser(t, h, profile.ID))
	rec := httptest.NewRecorder()
	h.MeCover(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMeHistoryListsWatchedVideos(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	viewer := registerAccount(t, h, "viewer")
	video := createTestVideo(t, h, owner.ID, "first clip")

	detailReq := asUser(httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil), mustUser(t, h, viewer.ID))
	detailRec := httptest.NewRecorder()
	h.VideoByID(detailRec, detailReq)
	if detailRec.Code != http.StatusOK {
		t.Fatalf("video detail status = %d", detailRec.Code)
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/me/history", nil), mustUser(t, h, viewer.ID))
	rec := httptest.NewRecorder()
	h.MeHistory(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history []models.WatchHistoryEntry
	decodeData(t, rec, &history)
	if len(history) != 1 || history[0].ID != video.ID {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Owner.Username != "owner" {
		t.Fatalf("owner summary = %+v", history[0].Owner)
	}
}
