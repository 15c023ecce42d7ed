// Package media uploads client-supplied assets (videos, thumbnails, avatars)
// to an S3-compatible object store and returns the public URLs persisted on
// the domain records.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrDisabled is returned when no object store is configured. Handlers map it
// to a dependency failure so clients know the upload path is unavailable.
var ErrDisabled = errors.New("media storage disabled")

const defaultRequestTimeout = 30 * time.Second

// Config describes the S3-compatible backend. Endpoint and PublicBaseURL are
// kept separate so a private MinIO endpoint can serve through a CDN host.
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Prefix         string
	PublicBaseURL  string
	UsePathStyle   bool
	RequestTimeout time.Duration
}

// Asset identifies a stored object.
type Asset struct {
	Key string
	URL string
}

// Host is the upload surface handlers depend on; tests substitute stubs.
type Host interface {
	Enabled() bool
	Upload(ctx context.Context, localPath string) (Asset, error)
	Delete(ctx context.Context, assetURL string) error
}

// NewHost returns an S3-backed host, or a disabled one when the configuration
// is incomplete.
func NewHost(cfg Config) (Host, error) {
	if strings.TrimSpace(cfg.Bucket) == "" || strings.TrimSpace(cfg.Endpoint) == "" {
		return disabledHost{}, nil
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load media storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Host{cfg: cfg, client: client}, nil
}

// Disabled returns a host that rejects every operation with ErrDisabled.
func Disabled() Host { return disabledHost{} }

type disabledHost struct{}

func (disabledHost) Enabled() bool { return false }

func (disabledHost) Upload(ctx context.Context, localPath string) (Asset, error) {
	return Asset{}, ErrDisabled
}

func (disabledHost) Delete(ctx context.Context, assetURL string) error {
	return ErrDisabled
}

type s3Host struct {
	cfg    Config
	client *s3.Client
}

func (h *s3Host) Enabled() bool { return true }

// Upload stores the staged file under a generated key and removes the local
// copy on success. The local file is left in place on failure so the staging
// cleanup can report it.
func (h *s3Host) Upload(ctx context.Context, localPath string) (Asset, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("open staged upload: %w", err)
	}
	defer file.Close()

	key := h.objectKey(localPath)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	_, err = h.client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket:      aws.String(h.cfg.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload object %s: %w", key, err)
	}

	_ = file.Close()
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Asset{}, fmt.Errorf("remove staged upload: %w", err)
	}

	return Asset{Key: key, URL: h.publicURL(key)}, nil
}

// Delete removes a previously uploaded asset. Unknown URLs are ignored so
// replacing an asset never fails on cleanup.
func (h *s3Host) Delete(ctx context.Context, assetURL string) error {
	key, ok := h.keyFromURL(assetURL)
	if !ok {
		return nil
	}

	deleteCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	_, err := h.client.DeleteObject(deleteCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (h *s3Host) objectKey(localPath string) string {
	now := time.Now().UTC()
	name := fmt.Sprintf("%d/%02d/%s%s", now.Year(), now.Month(), uuid.NewString(), filepath.Ext(localPath))
	prefix := strings.Trim(h.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (h *s3Host) publicURL(key string) string {
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(h.cfg.Endpoint, "/") + "/" + h.cfg.Bucket
	}
	return base + "/" + key
}

func (h *s3Host) keyFromURL(assetURL string) (string, bool) {
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(h.cfg.Endpoint, "/") + "/" + h.cfg.Bucket
	}
	if !strings.HasPrefix(assetURL, base+"/") {
		return "", false
	}
	key := strings.TrimPrefix(assetURL, base+"/")
	key = path.Clean(key)
	if key == "." || key == "/" || strings.HasPrefix(key, "..") {
		return "", false
	}
	return key, true
}
