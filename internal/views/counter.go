// Package views buffers video view counts and flushes them to the repository
// in batches, so every playback does not turn into a datastore write.
package views

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vidstream/internal/observability/metrics"
	"vidstream/internal/storage"
)

// Counter accumulates pending view counts keyed by video id.
type Counter interface {
	// Record notes one view for the video.
	Record(ctx context.Context, videoID string) error
	// Drain returns the pending counts and resets them.
	Drain(ctx context.Context) (map[string]int64, error)
	Close() error
}

// RedisConfig configures the Redis-backed counter.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	KeyPrefix string
	DB        int
}

const defaultKeyPrefix = "vidstream:views:"

// NewRedisCounter connects to Redis and verifies the connection before
// returning.
func NewRedisCounter(ctx context.Context, cfg RedisConfig) (Counter, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Username:   strings.TrimSpace(cfg.Username),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisCounter{client: client, prefix: prefix}, nil
}

type redisCounter struct {
	client *redis.Client
	prefix string
}

func (c *redisCounter) Record(ctx context.Context, videoID string) error {
	if videoID == "" {
		return nil
	}
	return c.client.Incr(ctx, c.prefix+videoID).Err()
}

func (c *redisCounter) Drain(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := c.client.GetDel(ctx, key).Int64()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return counts, fmt.Errorf("drain %s: %w", key, err)
		}
		if value > 0 {
			counts[strings.TrimPrefix(key, c.prefix)] += value
		}
	}
	if err := iter.Err(); err != nil {
		return counts, fmt.Errorf("scan view keys: %w", err)
	}
	return counts, nil
}

func (c *redisCounter) Close() error {
	return c.client.Close()
}

// NewMemoryCounter returns an in-process counter used when Redis is not
// configured. Counts are lost on restart, which is acceptable for view
// tallies.
func NewMemoryCounter() Counter {
	return &memoryCounter{counts: make(map[string]int64)}
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memoryCounter) Record(ctx context.Context, videoID string) error {
	if videoID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[videoID]++
	return nil
}

func (c *memoryCounter) Drain(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.counts
	c.counts = make(map[string]int64)
	return drained, nil
}

func (c *memoryCounter) Close() error { return nil }

// Flusher periodically drains the counter into the repository.
type Flusher struct {
	counter  Counter
	repo     storage.Repository
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher wires a counter to the repository. A non-positive interval
// falls back to one minute.
func NewFlusher(counter Counter, repo storage.Repository, interval time.Duration, logger *slog.Logger) *Flusher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{counter: counter, repo: repo, interval: interval, logger: logger}
}

// Run flushes on the configured interval until the context is cancelled, then
// performs one final flush so buffered counts survive shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush drains pending counts and applies them to the repository. Failures
// are logged and the affected counts dropped; view tallies are best effort.
func (f *Flusher) Flush(ctx context.Context) {
	counts, err := f.counter.Drain(ctx)
	if err != nil {
		f.logger.Error("drain view counts", "error", err)
	}
	var flushed int64
	for videoID, delta := range counts {
		if err := f.repo.AddVideoViews(videoID, delta); err != nil {
			f.logger.Warn("apply view counts", "videoId", videoID, "delta", delta, "error", err)
			continue
		}
		flushed += delta
	}
	metrics.AddViewsFlushed(flushed)
}
