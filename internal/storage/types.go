package storage

import (
	"errors"
	"sync"
	"time"

	"vidstream/internal/auth"
	"vidstream/internal/models"
)

const (
	// MinPasswordLength is enforced on account creation and password change.
	MinPasswordLength = 8
	// MaxTitleLength bounds video titles.
	MaxTitleLength = 200
	// MaxDescriptionLength bounds video descriptions.
	MaxDescriptionLength = 5000
	// MaxWatchHistoryLength bounds the per-user history list; the oldest
	// entries are dropped once the cap is reached.
	MaxWatchHistoryLength = 500
)

var (
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks writes that collide with an existing unique value.
	ErrConflict = errors.New("already exists")
	// ErrValidation marks rejected input. Handlers map it to a 400 response.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials mirrors the auth sentinel so callers can match on
	// either package.
	ErrInvalidCredentials = auth.ErrInvalidCredentials
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
}

type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	hasher          *auth.PasswordHasher
	now             func() time.Time
}

// CreateUserParams captures the attributes that can be set when registering an
// account. Asset URLs are supplied by the upload pipeline, not by clients.
type CreateUserParams struct {
	Username      string
	Email         string
	DisplayName   string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserUpdate describes the mutable profile fields of a user. Nil pointers
// leave the current value untouched.
type UserUpdate struct {
	DisplayName   *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
}

// CreateVideoParams captures the information required to publish a video.
type CreateVideoParams struct {
	OwnerID         string
	Title           string
	Description     string
	VideoURL        string
	ThumbnailURL    string
	DurationSeconds float64
	Published       bool
}

// VideoUpdate describes the mutable fields of a video entry.
type VideoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

// VideoQuery drives paginated listing. Zero values fall back to the first
// page with the default limit, sorted by creation time descending.
type VideoQuery struct {
	Page               int
	Limit              int
	Query              string
	SortBy             string
	SortAscending      bool
	OwnerID            string
	IncludeUnpublished bool
}

const (
	defaultVideoPageLimit = 10
	maxVideoPageLimit     = 100
)
