package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"vidstream/internal/models"
)

// Snapshot captures a complete JSON-serialisable view of the datastore,
// grouping each collection by primary identifier so it can be persisted and
// later replayed into another backing store. Its layout matches the JSON
// store file, so an existing data file can be imported directly.
type Snapshot struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
}

// SnapshotCounts summarises the size of each collection stored in a Snapshot.
type SnapshotCounts struct {
	Users              int
	Videos             int
	Subscriptions      int
	WatchHistoryVideos int
}

// LoadSnapshotFromJSON reads a previously exported Snapshot (or a JSON store
// data file) from disk.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var snapshot Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		if err == io.EOF {
			snapshot.ensureInitialized()
			return &snapshot, nil
		}
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Users == nil {
		s.Users = make(map[string]models.User)
	}
	if s.Videos == nil {
		s.Videos = make(map[string]models.Video)
	}
	if s.Subscriptions == nil {
		s.Subscriptions = make(map[string]models.Subscription)
	}
}

// Counts walks a Snapshot and returns the per-collection totals.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	counts := SnapshotCounts{
		Users:         len(s.Users),
		Videos:        len(s.Videos),
		Subscriptions: len(s.Subscriptions),
	}
	for _, user := range s.Users {
		counts.WatchHistoryVideos += len(user.WatchHistory)
	}
	return counts
}

// ImportSnapshotToPostgres hands a Snapshot to the Postgres repository so the
// serialised datastore state can be bulk-loaded in one transaction.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
