// Package testsupport provides in-memory collaborator stubs for handler
// tests.
package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"vidstream/internal/media"
)

// MediaHost is an in-memory media.Host. Uploads succeed immediately and the
// staged file is removed, matching the real host's contract. Set FailUploads
// to exercise dependency-failure paths.
type MediaHost struct {
	mu          sync.Mutex
	FailUploads bool
	uploaded    []string
	deleted     []string
}

var _ media.Host = (*MediaHost)(nil)

func (m *MediaHost) Enabled() bool { return true }

func (m *MediaHost) Upload(ctx context.Context, localPath string) (media.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUploads {
		return media.Asset{}, errors.New("stubbed upload failure")
	}
	if err := os.Remove(localPath); err != nil {
		return media.Asset{}, err
	}
	key := filepath.Base(localPath)
	url := "https://media.test/" + key
	m.uploaded = append(m.uploaded, url)
	return media.Asset{Key: key, URL: url}, nil
}

func (m *MediaHost) Delete(ctx context.Context, assetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, assetURL)
	return nil
}

// Uploaded returns the URLs issued so far.
func (m *MediaHost) Uploaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploaded...)
}

// Deleted returns the URLs passed to Delete so far.
func (m *MediaHost) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
