package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"vidstream/internal/models"
)

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, published, created_at, updated_at`

func videoColumnsPrefixed(alias string) string {
	cols := strings.Split(videoColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Description,
		&video.VideoURL,
		&video.ThumbnailURL,
		&video.DurationSeconds,
		&video.Views,
		&video.Published,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	return video, err
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
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

	now := r.now()
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

	ctx, cancel := r.opCtx()
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		video.DurationSeconds, video.Views, video.Published, video.CreatedAt, video.UpdatedAt,
	)
	if err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(id string) (models.Video, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	video, err := scanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		return models.Video{}, false
	}
	return video, true
}

func (r *postgresRepository) VideoDetail(id, viewerID string) (models.VideoDetail, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var detail models.VideoDetail
	err := r.pool.QueryRow(ctx, `
		SELECT `+videoColumnsPrefixed("v")+`,
			u.id, u.username, u.display_name, u.avatar_url,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
			EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
		FROM videos v
		JOIN users u ON u.id = v.owner_id
		WHERE v.id = $1 AND (v.published OR v.owner_id = $2)`,
		id, viewerID,
	).Scan(
		&detail.ID, &detail.OwnerID, &detail.Title, &detail.Description, &detail.VideoURL, &detail.ThumbnailURL,
		&detail.DurationSeconds, &detail.Views, &detail.Published, &detail.CreatedAt, &detail.UpdatedAt,
		&detail.Owner.ID, &detail.Owner.Username, &detail.Owner.DisplayName, &detail.Owner.AvatarURL,
		&detail.Owner.SubscriberCount, &detail.Owner.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoDetail{}, fmt.Errorf("video %s %w", id, ErrNotFound)
		}
		return models.VideoDetail{}, fmt.Errorf("query video detail: %w", err)
	}
	return detail, nil
}

func (r *postgresRepository) ListVideos(query VideoQuery) (models.VideoPage, error) {
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

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if !query.IncludeUnpublished {
		conditions = append(conditions, "published")
	}
	if query.OwnerID != "" {
		args = append(args, query.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if needle := strings.TrimSpace(query.Query); needle != "" {
		args = append(args, "%"+strings.ToLower(needle)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos`+where, args...).Scan(&total); err != nil {
		return models.VideoPage{}, fmt.Errorf("count videos: %w", err)
	}

	orderColumn := "created_at"
	switch query.SortBy {
	case "views":
		orderColumn = "views"
	case "duration":
		orderColumn = "duration_seconds"
	case "title":
		orderColumn = "title"
	}
	direction := "DESC"
	if query.SortAscending {
		direction = "ASC"
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM videos%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		videoColumns, where, orderColumn, direction, len(args)-1, len(args),
	), args...)
	if err != nil {
		return models.VideoPage{}, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	items := make([]models.Video, 0, limit)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return models.VideoPage{}, fmt.Errorf("scan video row: %w", err)
		}
		items = append(items, video)
	}
	if err := rows.Err(); err != nil {
		return models.VideoPage{}, err
	}

	return models.VideoPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (r *postgresRepository) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("begin update video: %w", err)
	}
	defer tx.Rollback(ctx)

	video, err := scanVideo(tx.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, fmt.Errorf("video %s %w", id, ErrNotFound)
		}
		return models.Video{}, fmt.Errorf("load video: %w", err)
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
	video.UpdatedAt = r.now()

	_, err = tx.Exec(ctx, `
		UPDATE videos SET title = $2, description = $3, thumbnail_url = $4, updated_at = $5
		WHERE id = $1`,
		video.ID, video.Title, video.Description, video.ThumbnailURL, video.UpdatedAt,
	)
	if err != nil {
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Video{}, fmt.Errorf("commit update video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) DeleteVideo(id string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) TogglePublish(id string) (models.Video, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	video, err := scanVideo(r.pool.QueryRow(ctx, `
		UPDATE videos SET published = NOT published, updated_at = $2
		WHERE id = $1
		RETURNING `+videoColumns, id, r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, fmt.Errorf("video %s %w", id, ErrNotFound)
		}
		return models.Video{}, fmt.Errorf("toggle publish: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) AddVideoViews(id string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `UPDATE videos SET views = views + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("add video views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) Subscribe(channelID, subscriberID string) error {
	if channelID == subscriberID {
		return fmt.Errorf("%w: cannot subscribe to your own channel", ErrValidation)
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, channel_id, subscriber_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, subscriber_id) DO NOTHING`,
		newID(), channelID, subscriberID, r.now(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("channel %s %w", channelID, ErrNotFound)
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (r *postgresRepository) Unsubscribe(channelID, subscriberID string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2`,
		channelID, subscriberID,
	); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (r *postgresRepository) IsSubscribed(channelID, subscriberID string) bool {
	if subscriberID == "" {
		return false
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	var subscribed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2)`,
		channelID, subscriberID,
	).Scan(&subscribed)
	return err == nil && subscribed
}

func (r *postgresRepository) CountSubscribers(channelID string) int {
	ctx, cancel := r.opCtx()
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1`, channelID,
	).Scan(&count); err != nil {
		return 0
	}
	return count
}

func (r *postgresRepository) CountSubscriptions(subscriberID string) int {
	ctx, cancel := r.opCtx()
	defer cancel()
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1`, subscriberID,
	).Scan(&count); err != nil {
		return 0
	}
	return count
}

func (r *postgresRepository) ListSubscribers(channelID string) ([]models.PublicUser, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.display_name, u.avatar_url, u.cover_image_url, u.created_at, u.updated_at
		FROM subscriptions s
		JOIN users u ON u.id = s.subscriber_id
		WHERE s.channel_id = $1
		ORDER BY s.created_at DESC`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]models.PublicUser, 0)
	for rows.Next() {
		var user models.PublicUser
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.DisplayName,
			&user.AvatarURL, &user.CoverImageURL, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		subscribers = append(subscribers, user)
	}
	return subscribers, rows.Err()
}

func (r *postgresRepository) ChannelProfile(username, viewerID string) (models.ChannelProfile, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var profile models.ChannelProfile
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.display_name, u.avatar_url, u.cover_image_url, u.created_at, u.updated_at,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
			(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
			EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
		FROM users u
		WHERE u.username = $1`,
		normalizeUsername(username), viewerID,
	).Scan(
		&profile.ID, &profile.Username, &profile.Email, &profile.DisplayName,
		&profile.AvatarURL, &profile.CoverImageURL, &profile.CreatedAt, &profile.UpdatedAt,
		&profile.SubscriberCount, &profile.SubscribedToCount, &profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, fmt.Errorf("channel %s %w", username, ErrNotFound)
		}
		return models.ChannelProfile{}, fmt.Errorf("query channel profile: %w", err)
	}
	return profile, nil
}
