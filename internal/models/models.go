package models

import (
	"strings"
	"time"
)

// User is the canonical account record. PasswordHash and RefreshToken are
// server-side fields and must never reach API clients; handlers work with the
// Public projection instead.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	PasswordHash  string    `json:"passwordHash,omitempty"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
	WatchHistory  []string  `json:"watchHistory,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PublicUser is the client-safe projection of a User.
type PublicUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Public strips credential and session material from the user record.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// MatchesLogin reports whether the supplied identifier addresses this user by
// username or email, ignoring case.
func (u User) MatchesLogin(identifier string) bool {
	return strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier)
}

type Video struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	VideoURL        string    `json:"videoUrl"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	DurationSeconds float64   `json:"durationSeconds"`
	Views           int64     `json:"views"`
	Published       bool      `json:"published"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Subscription links a subscriber account to the channel account it follows.
type Subscription struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channelId"`
	SubscriberID string    `json:"subscriberId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ChannelProfile is the aggregated public view of a channel page.
type ChannelProfile struct {
	PublicUser
	SubscriberCount   int  `json:"subscriberCount"`
	SubscribedToCount int  `json:"subscribedToCount"`
	IsSubscribed      bool `json:"isSubscribed"`
}

// VideoDetail pairs a video with its owner summary for playback pages.
type VideoDetail struct {
	Video
	Owner ChannelSummary `json:"owner"`
}

// ChannelSummary is the compact owner block embedded in video responses.
type ChannelSummary struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"displayName"`
	AvatarURL       string `json:"avatarUrl"`
	SubscriberCount int    `json:"subscriberCount"`
	IsSubscribed    bool   `json:"isSubscribed"`
}

// WatchHistoryEntry is one item of a viewer's ordered watch history.
type WatchHistoryEntry struct {
	Video
	Owner ChannelSummary `json:"owner"`
}

// VideoPage is a paginated video listing.
type VideoPage struct {
	Items      []Video `json:"items"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalItems int     `json:"totalItems"`
	TotalPages int     `json:"totalPages"`
}
