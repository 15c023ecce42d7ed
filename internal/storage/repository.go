package storage

import (
	"context"

	"vidstream/internal/auth"
	"vidstream/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// the session layer. Both the JSON-file store and the Postgres repository
// implement it.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(identifier, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByUsername(username string) (models.User, bool)
	FindUserByLogin(identifier string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	SetUserPassword(id, oldPassword, newPassword string) error
	SetRefreshToken(id, token string) error
	ClearRefreshToken(id string) error
	AppendWatchHistory(userID, videoID string) error
	WatchHistory(userID string) ([]models.WatchHistoryEntry, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	VideoDetail(id, viewerID string) (models.VideoDetail, error)
	ListVideos(query VideoQuery) (models.VideoPage, error)
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(id string) error
	TogglePublish(id string) (models.Video, error)
	AddVideoViews(id string, delta int64) error

	Subscribe(channelID, subscriberID string) error
	Unsubscribe(channelID, subscriberID string) error
	IsSubscribed(channelID, subscriberID string) bool
	CountSubscribers(channelID string) int
	CountSubscriptions(subscriberID string) int
	ListSubscribers(channelID string) ([]models.PublicUser, error)
	ChannelProfile(username, viewerID string) (models.ChannelProfile, error)
}

var (
	_ Repository         = (*Storage)(nil)
	_ auth.UserDirectory = (*Storage)(nil)
)

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}
