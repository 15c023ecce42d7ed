package storage

import (
	"fmt"
	"sort"
	"strings"

	"vidstream/internal/models"
)

// CreateVideo stores a new video entry owned by the provided user.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, fmt.Errorf("user %s %w", params.OwnerID, ErrNotFound)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > MaxTitleLength {
		return models.Video{}, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	description := strings.TrimSpace(params.Description)
	if len(description) > MaxDescriptionLength {
		return models.Video{}, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, MaxDescriptionLength)
	}
	if strings.TrimSpace(params.VideoURL) == "" {
		return models.Video{}, fmt.Errorf("%w: video file is required", ErrValidation)
	}
	if strings.TrimSpace(params.ThumbnailURL) == "" {
		return models.Video{}, fmt.Errorf("%w: thumbnail is required", ErrValidation)
	}
	if params.DurationSeconds < 0 {
		return models.Video{}, fmt.Errorf("%w: duration cannot be negative", ErrValidation)
	}

	now := s.now()
	video := models.Video{
		ID:              newID(),
		OwnerID:         params.OwnerID,
		Title:           title,
		Description:     description,
		VideoURL:        strings.TrimSpace(params.VideoURL),
		ThumbnailURL:    strings.TrimSpace(params.ThumbnailURL),
		DurationSeconds: params.DurationSeconds,
		Published:       params.Published,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
		return models.Video{}, err
	}

	return video, nil
}

// GetVideo returns the video record by id.
func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok
}

// VideoDetail assembles the playback view of a video, including the owner
// summary relative to the viewer. Unpublished videos resolve only for their
// owner.
func (s *Storage) VideoDetail(id, viewerID string) (models.VideoDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.VideoDetail{}, fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	if !video.Published && video.OwnerID != viewerID {
		return models.VideoDetail{}, fmt.Errorf("video %s %w", id, ErrNotFound)
	}

	return models.VideoDetail{
		Video: video,
		Owner: s.channelSummaryLocked(video.OwnerID, viewerID),
	}, nil
}

// ListVideos returns one page of videos matching the query. Unpublished
// entries are included only when the query asks for them, which handlers
// restrict to the owner's own listing.
func (s *Storage) ListVideos(query VideoQuery) (models.VideoPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultVideoPageLimit
	}
	if limit > maxVideoPageLimit {
		limit = maxVideoPageLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query.Query))

	matched := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if !video.Published && !query.IncludeUnpublished {
			continue
		}
		if query.OwnerID != "" && video.OwnerID != query.OwnerID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(video.Title), needle) &&
			!strings.Contains(strings.ToLower(video.Description), needle) {
			continue
		}
		matched = append(matched, video)
	}

	sortVideos(matched, query.SortBy, query.SortAscending)

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return models.VideoPage{
		Items:      matched[start:end],
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func sortVideos(videos []models.Video, sortBy string, ascending bool) {
	var less func(a, b models.Video) bool
	switch sortBy {
	case "views":
		less = func(a, b models.Video) bool { return a.Views < b.Views }
	case "duration":
		less = func(a, b models.Video) bool { return a.DurationSeconds < b.DurationSeconds }
	case "title":
		less = func(a, b models.Video) bool { return a.Title < b.Title }
	default:
		less = func(a, b models.Video) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(videos, func(i, j int) bool {
		if ascending {
			return less(videos[i], videos[j])
		}
		return less(videos[j], videos[i])
	})
}

// UpdateVideo applies metadata changes to an existing video.
func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s %w", id, ErrNotFound)
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Video{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		if len(title) > MaxTitleLength {
			return models.Video{}, fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
		}
		video.Title = title
	}
	if update.Description != nil {
		description := strings.TrimSpace(*update.Description)
		if len(description) > MaxDescriptionLength {
			return models.Video{}, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, MaxDescriptionLength)
		}
		video.Description = description
	}
	if update.ThumbnailURL != nil {
		url := strings.TrimSpace(*update.ThumbnailURL)
		if url == "" {
			return models.Video{}, fmt.Errorf("%w: thumbnail URL cannot be empty", ErrValidation)
		}
		video.ThumbnailURL = url
	}

	video.UpdatedAt = s.now()
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData

	return video, nil
}

// DeleteVideo removes the video and scrubs it from every watch history.
func (s *Storage) DeleteVideo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Videos[id]; !ok {
		return fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	delete(updatedData.Videos, id)

	for userID, user := range updatedData.Users {
		if len(user.WatchHistory) == 0 {
			continue
		}
		filtered := user.WatchHistory[:0]
		for _, videoID := range user.WatchHistory {
			if videoID != id {
				filtered = append(filtered, videoID)
			}
		}
		user.WatchHistory = filtered
		updatedData.Users[userID] = user
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}

// TogglePublish flips the publish flag and returns the updated record.
func (s *Storage) TogglePublish(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	video.Published = !video.Published
	video.UpdatedAt = s.now()
	updatedData.Videos[id] = video

	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData
	return video, nil
}

// AddVideoViews increments the view counter. The flush worker batches counts,
// so delta may be greater than one.
func (s *Storage) AddVideoViews(id string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	video.Views += delta
	updatedData.Videos[id] = video

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}
