package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidstream/internal/models"
	"vidstream/internal/testsupport"
)

func TestCreateVideoFromMultipart(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")

	req := asUser(multipartRequest(t, http.MethodPost, "/api/videos",
		map[string]string{
			"title":           "Launch day",
			"description":     "First upload",
			"durationSeconds": "42.5",
		},
		map[string]string{"videoFile": "launch.mp4", "thumbnail": "launch.jpg"},
	), mustUser(t, h, owner.ID))
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var video models.Video
	decodeData(t, rec, &video)
	if video.OwnerID != owner.ID || video.Title != "Launch day" {
		t.Fatalf("video = %+v", video)
	}
	if video.DurationSeconds != 42.5 || !video.Published {
		t.Fatalf("video = %+v", video)
	}
	if video.VideoURL == "" || video.ThumbnailURL == "" {
		t.Fatalf("asset URLs missing: %+v", video)
	}
}

func TestCreateVideoValidation(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	user := mustUser(t, h, owner.ID)

	cases := []struct {
		name   string
		fields map[string]string
		files  map[string]string
	}{
		{
			name:   "missing title",
			fields: map[string]string{"description": "no title"},
			files:  map[string]string{"videoFile": "a.mp4", "thumbnail": "a.jpg"},
		},
		{
			name:   "missing video file",
			fields: map[string]string{"title": "no media"},
			files:  map[string]string{"thumbnail": "a.jpg"},
		},
		{
			name:   "missing thumbnail",
			fields: map[string]string{"title": "no thumb"},
			files:  map[string]string{"videoFile": "a.mp4"},
		},
		{
			name:   "bad duration",
			fields: map[string]string{"title": "bad duration", "durationSeconds": "fast"},
			files:  map[string]string{"videoFile": "a.mp4", "thumbnail": "a.jpg"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := asUser(multipartRequest(t, http.MethodPost, "/api/videos", tc.fields, tc.files), user)
			rec := httptest.NewRecorder()
			h.Videos(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListVideosHidesDraftsFromStrangers(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	createTestVideo(t, h, owner.ID, "public clip")
	if _, err := h.Store.TogglePublish(createTestVideo(t, h, owner.ID, "draft clip").ID); err != nil {
		t.Fatalf("toggle publish: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/videos?ownerId="+owner.ID, nil)
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	var page models.VideoPage
	decodeData(t, rec, &page)
	if page.TotalItems != 1 || page.Items[0].Title != "public clip" {
		t.Fatalf("anonymous listing = %+v", page)
	}

	ownerReq := asUser(httptest.NewRequest(http.MethodGet, "/api/videos?ownerId="+owner.ID, nil), mustUser(t, h, owner.ID))
	ownerRec := httptest.NewRecorder()
	h.Videos(ownerRec, ownerReq)
	decodeData(t, ownerRec, &page)
	if page.TotalItems != 2 {
		t.Fatalf("owner listing = %+v", page)
	}
}

func TestListVideosPagingAndSearch(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	for _, title := range []string{"go tutorial", "go deep dive", "cooking show"} {
		createTestVideo(t, h, owner.ID, title)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/videos?q=go&limit=1&page=2", nil)
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	var page models.VideoPage
	decodeData(t, rec, &page)
	if page.TotalItems != 2 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}
	if page.Page != 2 || page.Limit != 1 {
		t.Fatalf("page meta = %+v", page)
	}
}

func TestVideoDetailCountsViewAndRecordsHistory(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	viewer := registerAccount(t, h, "viewer")
	video := createTestVideo(t, h, owner.ID, "clip")

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil), mustUser(t, h, viewer.ID))
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var detail models.VideoDetail
	decodeData(t, rec, &detail)
	if detail.ID != video.ID || detail.Owner.Username != "owner" {
		t.Fatalf("detail = %+v", detail)
	}

	counts, err := h.Views.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain views: %v", err)
	}
	if counts[video.ID] != 1 {
		t.Fatalf("view counts = %v", counts)
	}

	history, err := h.Store.WatchHistory(viewer.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 1 || history[0].ID != video.ID {
		t.Fatalf("history = %+v", history)
	}
}

func TestVideoDetailAnonymousViewerSkipsHistory(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	video := createTestVideo(t, h, owner.ID, "clip")

	req := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	counts, _ := h.Views.Drain(context.Background())
	if counts[video.ID] != 1 {
		t.Fatalf("anonymous view not counted: %v", counts)
	}
}

func TestVideoOwnerChecks(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	stranger := registerAccount(t, h, "stranger")
	video := createTestVideo(t, h, owner.ID, "clip")

	t.Run("unauthenticated update", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPatch, "/api/videos/"+video.ID, map[string]string{"title": "hijack"})
		rec := httptest.NewRecorder()
		h.VideoByID(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("non-owner update", func(t *testing.T) {
		req := asUser(jsonRequest(t, http.MethodPatch, "/api/videos/"+video.ID, map[string]string{"title": "hijack"}), mustUser(t, h, stranger.ID))
		rec := httptest.NewRecorder()
		h.VideoByID(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("owner update", func(t *testing.T) {
		req := asUser(jsonRequest(t, http.MethodPatch, "/api/videos/"+video.ID, map[string]string{"title": "renamed"}), mustUser(t, h, owner.ID))
		rec := httptest.NewRecorder()
		h.VideoByID(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var updated models.Video
		decodeData(t, rec, &updated)
		if updated.Title != "renamed" {
			t.Fatalf("title = %q", updated.Title)
		}
	})
}

func TestTogglePublish(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	video := createTestVideo(t, h, owner.ID, "clip")
	user := mustUser(t, h, owner.ID)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/videos/"+video.ID+"/publish", nil), user)
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var toggled models.Video
	decodeData(t, rec, &toggled)
	if toggled.Published {
		t.Fatal("published video must toggle to draft")
	}
}

func TestDeleteVideoCleansUpAssets(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	video := createTestVideo(t, h, owner.ID, "clip")

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/videos/"+video.ID, nil), mustUser(t, h, owner.ID))
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, exists := h.Store.GetVideo(video.ID); exists {
		t.Fatal("video survived delete")
	}
	deleted := h.Media.(*testsupport.MediaHost).Deleted()
	if len(deleted) != 2 {
		t.Fatalf("asset cleanup = %v", deleted)
	}
}

func TestVideoDetailHidesDraftFromStrangers(t *testing.T) {
	h := newTestHandler(t)
	owner := registerAccount(t, h, "owner")
	video := createTestVideo(t, h, owner.ID, "clip")
	if _, err := h.Store.TogglePublish(video.ID); err != nil {
		t.Fatalf("toggle publish: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	ownerReq := asUser(httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil), mustUser(t, h, owner.ID))
	ownerRec := httptest.NewRecorder()
	h.VideoByID(ownerRec, ownerReq)
	if ownerRec.Code != http.StatusOK {
		t.Fatalf("owner status = %d", ownerRec.Code)
	}
}
