package storage

import (
	"context"
	"fmt"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		cover_image_url TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		views BIGINT NOT NULL DEFAULT 0,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos (owner_id)`,
	`CREATE INDEX IF NOT EXISTS videos_published_created_idx ON videos (published, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT NOT NULL,
		channel_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		subscriber_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (channel_id, subscriber_id)
	)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_subscriber_idx ON subscriptions (subscriber_id)`,
	`CREATE TABLE IF NOT EXISTS watch_history (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		watched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, video_id)
	)`,
	`CREATE INDEX IF NOT EXISTS watch_history_user_watched_idx ON watch_history (user_id, watched_at DESC)`,
}

func (r *postgresRepository) migrate(ctx context.Context) error {
	for _, stmt := range migrationStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// importSnapshot bulk-loads a JSON store snapshot inside one transaction.
// Existing rows with the same primary key are replaced, so the import can be
// re-run after a partial failure.
func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot import: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, user := range snapshot.Users {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, display_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				username = EXCLUDED.username,
				email = EXCLUDED.email,
				display_name = EXCLUDED.display_name,
				avatar_url = EXCLUDED.avatar_url,
				cover_image_url = EXCLUDED.cover_image_url,
				password_hash = EXCLUDED.password_hash,
				refresh_token = EXCLUDED.refresh_token,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at`,
			user.ID, user.Username, user.Email, user.DisplayName, user.AvatarURL, user.CoverImageURL,
			user.PasswordHash, user.RefreshToken, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return fmt.Errorf("import user %s: %w", user.ID, err)
		}
	}

	for _, video := range snapshot.Videos {
		if _, err := tx.Exec(ctx, `
			INSERT INTO videos (`+videoColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				video_url = EXCLUDED.video_url,
				thumbnail_url = EXCLUDED.thumbnail_url,
				duration_seconds = EXCLUDED.duration_seconds,
				views = EXCLUDED.views,
				published = EXCLUDED.published,
				updated_at = EXCLUDED.updated_at`,
			video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
			video.DurationSeconds, video.Views, video.Published, video.CreatedAt, video.UpdatedAt,
		); err != nil {
			return fmt.Errorf("import video %s: %w", video.ID, err)
		}
	}

	for _, sub := range snapshot.Subscriptions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, channel_id, subscriber_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (channel_id, subscriber_id) DO NOTHING`,
			sub.ID, sub.ChannelID, sub.SubscriberID, sub.CreatedAt,
		); err != nil {
			return fmt.Errorf("import subscription %s: %w", sub.ID, err)
		}
	}

	// Watch history rides on the user records in the JSON layout; the order
	// of the slice becomes the watched_at ordering.
	for _, user := range snapshot.Users {
		for position, videoID := range user.WatchHistory {
			if _, ok := snapshot.Videos[videoID]; !ok {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO watch_history (user_id, video_id, watched_at)
				VALUES ($1, $2, to_timestamp($3))
				ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
				user.ID, videoID, position,
			); err != nil {
				return fmt.Errorf("import watch history for user %s: %w", user.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}
