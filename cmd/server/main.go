// Command server starts the vidstream API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vidstream/internal/api"
	"vidstream/internal/auth"
	"vidstream/internal/media"
	"vidstream/internal/observability/logging"
	"vidstream/internal/observability/metrics"
	"vidstream/internal/server"
	"vidstream/internal/storage"
	"vidstream/internal/views"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed for cross-origin requests")
	accessTTL := flag.Duration("access-token-ttl", 0, "access token lifetime")
	refreshTTL := flag.Duration("refresh-token-ttl", 0, "refresh token lifetime")
	tokenIssuer := flag.String("token-issuer", "", "issuer claim stamped on signed tokens")
	bcryptCost := flag.Int("bcrypt-cost", 0, "bcrypt cost for password hashing")
	cookieSecure := flag.String("cookie-secure", "", "auth cookie secure mode (auto or always)")
	mediaEndpoint := flag.String("media-endpoint", "", "object storage endpoint for uploaded media")
	mediaRegion := flag.String("media-region", "", "object storage region")
	mediaAccessKey := flag.String("media-access-key", "", "object storage access key")
	mediaSecretKey := flag.String("media-secret-key", "", "object storage secret key")
	mediaBucket := flag.String("media-bucket", "", "object storage bucket for uploaded media")
	mediaPrefix := flag.String("media-prefix", "", "object storage key prefix for uploaded media")
	mediaPublicURL := flag.String("media-public-url", "", "public base URL used for media playback links")
	mediaPathStyle := flag.Bool("media-path-style", false, "use path-style object storage addressing")
	viewsRedisAddr := flag.String("views-redis-addr", "", "Redis address for the shared view counter")
	viewsRedisUsername := flag.String("views-redis-username", "", "Redis username for the view counter")
	viewsRedisPassword := flag.String("views-redis-password", "", "Redis password for the view counter")
	viewsRedisDB := flag.Int("views-redis-db", 0, "Redis database index for the view counter")
	viewFlushInterval := flag.Duration("view-flush-interval", 0, "interval between view count flushes to the datastore")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("VIDSTREAM_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("VIDSTREAM_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("VIDSTREAM_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("VIDSTREAM_ADDR"))

	accessSecret := strings.TrimSpace(os.Getenv("VIDSTREAM_ACCESS_TOKEN_SECRET"))
	refreshSecret := strings.TrimSpace(os.Getenv("VIDSTREAM_REFRESH_TOKEN_SECRET"))
	if accessSecret == "" || refreshSecret == "" {
		logger.Error("VIDSTREAM_ACCESS_TOKEN_SECRET and VIDSTREAM_REFRESH_TOKEN_SECRET are required")
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     resolveDuration(*accessTTL, "VIDSTREAM_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    resolveDuration(*refreshTTL, "VIDSTREAM_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Issuer:        firstNonEmpty(*tokenIssuer, os.Getenv("VIDSTREAM_TOKEN_ISSUER"), "vidstream"),
	})
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	var options []storage.Option
	if cost := resolveInt(*bcryptCost, "VIDSTREAM_BCRYPT_COST"); cost > 0 {
		options = append(options, storage.WithPasswordHasher(auth.NewPasswordHasher(cost)))
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("VIDSTREAM_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("VIDSTREAM_DATA"))
		store, err = storage.NewJSONRepository(dataFile, options...)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		pgOptions := append([]storage.Option(nil), options...)
		maxConns := resolveInt(*postgresMaxConns, "VIDSTREAM_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "VIDSTREAM_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "VIDSTREAM_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "VIDSTREAM_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "VIDSTREAM_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "VIDSTREAM_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("VIDSTREAM_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessions, err := auth.NewSessionManager(tokens, store)
	if err != nil {
		logger.Error("failed to configure session manager", "error", err)
		os.Exit(1)
	}

	mediaHost, err := media.NewHost(media.Config{
		Endpoint:      firstNonEmpty(*mediaEndpoint, os.Getenv("VIDSTREAM_MEDIA_ENDPOINT")),
		Region:        firstNonEmpty(*mediaRegion, os.Getenv("VIDSTREAM_MEDIA_REGION")),
		AccessKey:     firstNonEmpty(*mediaAccessKey, os.Getenv("VIDSTREAM_MEDIA_ACCESS_KEY")),
		SecretKey:     firstNonEmpty(*mediaSecretKey, os.Getenv("VIDSTREAM_MEDIA_SECRET_KEY")),
		Bucket:        firstNonEmpty(*mediaBucket, os.Getenv("VIDSTREAM_MEDIA_BUCKET")),
		Prefix:        firstNonEmpty(*mediaPrefix, os.Getenv("VIDSTREAM_MEDIA_PREFIX")),
		PublicBaseURL: firstNonEmpty(*mediaPublicURL, os.Getenv("VIDSTREAM_MEDIA_PUBLIC_URL")),
		UsePathStyle:  resolveBool(*mediaPathStyle, "VIDSTREAM_MEDIA_PATH_STYLE"),
	})
	if err != nil {
		logger.Error("failed to configure media storage", "error", err)
		os.Exit(1)
	}
	if !mediaHost.Enabled() {
		logger.Warn("media storage not configured, uploads will be rejected")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var counter views.Counter
	if redisAddr := firstNonEmpty(*viewsRedisAddr, os.Getenv("VIDSTREAM_VIEWS_REDIS_ADDR")); redisAddr != "" {
		counter, err = views.NewRedisCounter(rootCtx, views.RedisConfig{
			Addr:     redisAddr,
			Username: firstNonEmpty(*viewsRedisUsername, os.Getenv("VIDSTREAM_VIEWS_REDIS_USERNAME")),
			Password: firstNonEmpty(*viewsRedisPassword, os.Getenv("VIDSTREAM_VIEWS_REDIS_PASSWORD")),
			DB:       resolveInt(*viewsRedisDB, "VIDSTREAM_VIEWS_REDIS_DB"),
		})
		if err != nil {
			logger.Error("failed to connect view counter", "error", err)
			os.Exit(1)
		}
	} else {
		counter = views.NewMemoryCounter()
	}
	flusher := views.NewFlusher(
		counter,
		store,
		resolveDuration(*viewFlushInterval, "VIDSTREAM_VIEW_FLUSH_INTERVAL", 30*time.Second),
		logging.WithComponent(logger, "views"),
	)

	handler := api.NewHandler(store, tokens, sessions)
	handler.Media = mediaHost
	handler.Views = counter
	handler.Logger = logging.WithComponent(logger, "api")
	if secureMode, err := resolveCookieSecureMode(*cookieSecure, os.Getenv("VIDSTREAM_COOKIE_SECURE")); err != nil {
		logger.Error("invalid cookie secure mode", "error", err)
		os.Exit(1)
	} else {
		policy := api.DefaultCookiePolicy()
		policy.SecureMode = secureMode
		handler.Cookies = policy
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("VIDSTREAM_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("VIDSTREAM_TLS_KEY")),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("VIDSTREAM_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		logger.Info("vidstream API listening", "addr", listenAddr, "mode", serverMode)
		return srv.Run(groupCtx)
	})
	group.Go(func() error {
		return flusher.Run(groupCtx)
	})

	// The flusher returns the cancellation error after its final flush; only
	// report unexpected failures.
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := counter.Close(); err != nil {
		logger.Warn("failed to close view counter", "error", err)
	}
	if err := store.Close(closeCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

func resolveCookieSecureMode(flagValue, envValue string) (api.CookieSecureMode, error) {
	value := strings.ToLower(firstNonEmpty(flagValue, envValue))
	switch value {
	case "", "auto":
		return api.CookieSecureAuto, nil
	case "always":
		return api.CookieSecureAlways, nil
	default:
		return api.CookieSecureAuto, fmt.Errorf("unsupported cookie secure mode %q", value)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, postgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(postgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("VIDSTREAM_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
