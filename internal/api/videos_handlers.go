package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"vidstream/internal/models"
	"vidstream/internal/storage"
)

// Videos serves the published catalog and accepts new uploads.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.createVideo(w, r)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := storage.VideoQuery{
		Query:   strings.TrimSpace(params.Get("q")),
		SortBy:  strings.TrimSpace(params.Get("sortBy")),
		OwnerID: strings.TrimSpace(params.Get("ownerId")),
	}
	if page, err := strconv.Atoi(params.Get("page")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(params.Get("limit")); err == nil {
		query.Limit = limit
	}
	query.SortAscending = strings.EqualFold(params.Get("sortType"), "asc")

	// Owners browsing their own catalog see drafts too.
	if viewer, ok := UserFromContext(r.Context()); ok && query.OwnerID == viewer.ID {
		query.IncludeUnpublished = true
	}

	page, err := h.Store.ListVideos(query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page, "videos")
}

func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "video upload requires multipart form data")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeFieldFailure(w, http.StatusBadRequest, "title is required", []string{"title"})
		return
	}
	duration := 0.0
	if raw := strings.TrimSpace(r.FormValue("durationSeconds")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			writeFieldFailure(w, http.StatusBadRequest, "durationSeconds must be a non-negative number", []string{"durationSeconds"})
			return
		}
		duration = parsed
	}
	published := true
	if raw := strings.TrimSpace(r.FormValue("published")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeFieldFailure(w, http.StatusBadRequest, "published must be a boolean", []string{"published"})
			return
		}
		published = parsed
	}

	videoAsset, err := h.uploadFormAsset(r.Context(), r, "videoFile")
	if err != nil {
		if errors.Is(err, errMissingFile) {
			writeFieldFailure(w, http.StatusBadRequest, "videoFile is required", []string{"videoFile"})
			return
		}
		h.logger().Error("video upload failed", "error", err)
		h.writeUploadFailure(w, err)
		return
	}
	thumbAsset, err := h.uploadFormAsset(r.Context(), r, "thumbnail")
	if err != nil {
		h.discardAsset(r.Context(), videoAsset.URL)
		if errors.Is(err, errMissingFile) {
			writeFieldFailure(w, http.StatusBadRequest, "thumbnail is required", []string{"thumbnail"})
			return
		}
		h.logger().Error("thumbnail upload failed", "error", err)
		h.writeUploadFailure(w, err)
		return
	}

	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:         actor.ID,
		Title:           title,
		Description:     strings.TrimSpace(r.FormValue("description")),
		VideoURL:        videoAsset.URL,
		ThumbnailURL:    thumbAsset.URL,
		DurationSeconds: duration,
		Published:       published,
	})
	if err != nil {
		h.discardAsset(r.Context(), videoAsset.URL)
		h.discardAsset(r.Context(), thumbAsset.URL)
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, video, "video created")
}

// VideoByID dispatches /api/videos/{id}[/publish].
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	id, rest := trimPathSegment(r.URL.Path, "/api/videos/")
	if id == "" {
		writeFailure(w, http.StatusNotFound, "video id missing")
		return
	}

	switch rest {
	case "":
	case "publish":
		h.togglePublish(w, r, id)
		return
	default:
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("unknown video resource %q", rest))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.videoDetail(w, r, id)
	case http.MethodPatch:
		h.updateVideo(w, r, id)
	case http.MethodDelete:
		h.deleteVideo(w, r, id)
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

// videoDetail serves the playback view-model. Each successful fetch buffers
// one view; authenticated viewers also get the video appended to their watch
// history. Both are best effort and never fail the request.
func (h *Handler) videoDetail(w http.ResponseWriter, r *http.Request, id string) {
	viewer, authed := UserFromContext(r.Context())
	viewerID := ""
	if authed {
		viewerID = viewer.ID
	}

	detail, err := h.Store.VideoDetail(id, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.viewCounter().Record(r.Context(), id); err != nil {
		h.logger().Warn("record view", "videoId", id, "error", err)
	}
	if authed {
		if err := h.Store.AppendWatchHistory(viewer.ID, id); err != nil {
			h.logger().Warn("append watch history", "userId", viewer.ID, "videoId", id, "error", err)
		}
	}

	writeData(w, http.StatusOK, detail, "video detail")
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, id string) {
	video, ok := h.requireVideoOwner(w, r, id)
	if !ok {
		return
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Title == nil && req.Description == nil {
		writeFailure(w, http.StatusBadRequest, "no video fields supplied")
		return
	}
	updated, err := h.Store.UpdateVideo(video.ID, storage.VideoUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated, "video updated")
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, id string) {
	video, ok := h.requireVideoOwner(w, r, id)
	if !ok {
		return
	}
	if err := h.Store.DeleteVideo(video.ID); err != nil {
		writeError(w, err)
		return
	}
	h.discardAsset(r.Context(), video.VideoURL)
	h.discardAsset(r.Context(), video.ThumbnailURL)
	writeData(w, http.StatusOK, nil, "video deleted")
}

func (h *Handler) togglePublish(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	video, ok := h.requireVideoOwner(w, r, id)
	if !ok {
		return
	}
	updated, err := h.Store.TogglePublish(video.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated, "publish state toggled")
}

func (h *Handler) requireVideoOwner(w http.ResponseWriter, r *http.Request, id string) (models.Video, bool) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.Video{}, false
	}
	video, exists := h.Store.GetVideo(id)
	if !exists {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("video %s not found", id))
		return models.Video{}, false
	}
	if video.OwnerID != actor.ID {
		writeFailure(w, http.StatusForbidden, "forbidden")
		return models.Video{}, false
	}
	return video, true
}
