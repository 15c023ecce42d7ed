package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidstream/internal/auth"
	"vidstream/internal/models"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

type postgresRepository struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	hasher *auth.PasswordHasher
	now    func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration before returning.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:   pool,
		cfg:    cfg,
		hasher: cfg.Hasher,
		now:    cfg.Clock,
	}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) opCtx() (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(context.Background(), r.cfg.AcquireTimeout)
	}
	return context.WithCancel(context.Background())
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}

const userColumns = `id, username, email, display_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := normalizeUsername(params.Username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	email := normalizeEmail(params.Email)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.User{}, fmt.Errorf("%w: displayName is required", ErrValidation)
	}
	if len(params.Password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if strings.TrimSpace(params.AvatarURL) == "" {
		return models.User{}, fmt.Errorf("%w: avatar is required", ErrValidation)
	}

	passwordHash, err := r.hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, err
	}

	now := r.now()
	user := models.User{
		ID:            newID(),
		Username:      username,
		Email:         email,
		DisplayName:   displayName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, display_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9)`,
		user.ID, user.Username, user.Email, user.DisplayName, user.AvatarURL, user.CoverImageURL, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("username or email %w", ErrConflict)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateUser(identifier, password string) (models.User, error) {
	if password == "" {
		return models.User{}, fmt.Errorf("%w: password is required", ErrValidation)
	}
	user, ok := r.FindUserByLogin(identifier)
	if !ok {
		return models.User{}, fmt.Errorf("user %w", ErrNotFound)
	}
	if err := r.hasher.Verify(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByUsername(username string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, normalizeUsername(username)))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByLogin(identifier string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2`,
		normalizeUsername(identifier), normalizeEmail(identifier)))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin update user: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %s %w", id, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return models.User{}, fmt.Errorf("%w: displayName cannot be empty", ErrValidation)
		}
		user.DisplayName = name
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" || !strings.Contains(email, "@") {
			return models.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
		}
		user.Email = email
	}
	if update.AvatarURL != nil {
		url := strings.TrimSpace(*update.AvatarURL)
		if url == "" {
			return models.User{}, fmt.Errorf("%w: avatar URL cannot be empty", ErrValidation)
		}
		user.AvatarURL = url
	}
	if update.CoverImageURL != nil {
		user.CoverImageURL = strings.TrimSpace(*update.CoverImageURL)
	}
	user.UpdatedAt = r.now()

	_, err = tx.Exec(ctx, `
		UPDATE users SET display_name = $2, email = $3, avatar_url = $4, cover_image_url = $5, updated_at = $6
		WHERE id = $1`,
		user.ID, user.DisplayName, user.Email, user.AvatarURL, user.CoverImageURL, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("email %s %w", user.Email, ErrConflict)
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit update user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetUserPassword(id, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	var currentHash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&currentHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user %s %w", id, ErrNotFound)
		}
		return fmt.Errorf("load password hash: %w", err)
	}
	if err := r.hasher.Verify(currentHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := r.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hashed, r.now())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetRefreshToken(id, token string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET refresh_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) ClearRefreshToken(id string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	if _, err := r.pool.Exec(ctx, `UPDATE users SET refresh_token = '' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (r *postgresRepository) AppendWatchHistory(userID, videoID string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO watch_history (user_id, video_id, watched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
		userID, videoID, r.now(),
	)
	if err != nil {
		return fmt.Errorf("append watch history: %w", err)
	}
	return nil
}

func (r *postgresRepository) WatchHistory(userID string) ([]models.WatchHistoryEntry, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+videoColumnsPrefixed("v")+`,
			u.id, u.username, u.display_name, u.avatar_url,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
			EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $1)
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id AND v.published
		JOIN users u ON u.id = v.owner_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
		LIMIT $2`,
		userID, MaxWatchHistoryLength,
	)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.WatchHistoryEntry, 0)
	for rows.Next() {
		var entry models.WatchHistoryEntry
		if err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.Title, &entry.Description, &entry.VideoURL, &entry.ThumbnailURL,
			&entry.DurationSeconds, &entry.Views, &entry.Published, &entry.CreatedAt, &entry.UpdatedAt,
			&entry.Owner.ID, &entry.Owner.Username, &entry.Owner.DisplayName, &entry.Owner.AvatarURL,
			&entry.Owner.SubscriberCount, &entry.Owner.IsSubscribed,
		); err != nil {
			return nil, fmt.Errorf("scan watch history row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
