package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewHostDisabledWithoutBucket(t *testing.T) {
	host, err := NewHost(Config{Endpoint: "http://127.0.0.1:9000"})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if host.Enabled() {
		t.Fatal("host without bucket must be disabled")
	}
	if _, err := host.Upload(context.Background(), "/tmp/nope"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := host.Delete(context.Background(), "http://x/y"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestObjectKeyLayout(t *testing.T) {
	host := &s3Host{cfg: Config{Bucket: "media", Prefix: "/uploads/", RequestTimeout: time.Second}}

	key := host.objectKey("/tmp/staged-video.mp4")
	if !strings.HasPrefix(key, "uploads/") {
		t.Fatalf("key %q missing prefix", key)
	}
	if !strings.HasSuffix(key, ".mp4") {
		t.Fatalf("key %q lost the file extension", key)
	}
	if key == host.objectKey("/tmp/staged-video.mp4") {
		t.Fatal("keys must be unique per upload")
	}
}

func TestPublicURLAndKeyRoundTrip(t *testing.T) {
	host := &s3Host{cfg: Config{
		Endpoint:      "http://127.0.0.1:9000",
		Bucket:        "media",
		PublicBaseURL: "https://cdn.example.com/media",
	}}

	url := host.publicURL("uploads/2026/08/abc.mp4")
	if url != "https://cdn.example.com/media/uploads/2026/08/abc.mp4" {
		t.Fatalf("public url = %q", url)
	}

	key, ok := host.keyFromURL(url)
	if !ok || key != "uploads/2026/08/abc.mp4" {
		t.Fatalf("keyFromURL = %q, %v", key, ok)
	}
	if _, ok := host.keyFromURL("https://elsewhere.example.com/other.mp4"); ok {
		t.Fatal("foreign URL must not resolve to a key")
	}
	if _, ok := host.keyFromURL("https://cdn.example.com/media/../escape"); ok {
		t.Fatal("path traversal must not resolve to a key")
	}
}

func TestPublicURLFallsBackToEndpoint(t *testing.T) {
	host := &s3Host{cfg: Config{Endpoint: "http://127.0.0.1:9000/", Bucket: "media"}}
	url := host.publicURL("a.png")
	if url != "http://127.0.0.1:9000/media/a.png" {
		t.Fatalf("fallback url = %q", url)
	}
}
