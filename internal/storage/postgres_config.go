package storage

import (
	"time"

	"vidstream/internal/auth"
)

// PostgresConfig describes how the repository initialises its Postgres
// connection pool and which collaborators it uses for credential hashing.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
	ApplicationName     string
	Hasher              *auth.PasswordHasher
	Clock               func() time.Time
}

func newPostgresConfig(dsn string, opts ...Option) PostgresConfig {
	cfg := PostgresConfig{
		DSN:   dsn,
		Clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyPostgres(&cfg)
		}
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewPasswordHasher(auth.DefaultBcryptCost)
	}
	return cfg
}
