package storage

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"vidstream/internal/models"
)

var usernameFolder = cases.Fold()

func normalizeUsername(username string) string {
	return usernameFolder.String(strings.TrimSpace(username))
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// CreateUser registers an account. Username and email are normalized before
// the uniqueness check so lookups stay case-insensitive.
func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := normalizeUsername(params.Username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	email := normalizeEmail(params.Email)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.User{}, fmt.Errorf("%w: displayName is required", ErrValidation)
	}
	if len(params.Password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if strings.TrimSpace(params.AvatarURL) == "" {
		return models.User{}, fmt.Errorf("%w: avatar is required", ErrValidation)
	}

	for _, user := range s.data.Users {
		if user.Username == username {
			return models.User{}, fmt.Errorf("username %s %w", username, ErrConflict)
		}
		if user.Email == email {
			return models.User{}, fmt.Errorf("email %s %w", email, ErrConflict)
		}
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	user := models.User{
		ID:            newID(),
		Username:      username,
		Email:         email,
		DisplayName:   displayName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}

	return user, nil
}

// AuthenticateUser verifies credentials against the account addressed by the
// identifier, which may be a username or an email.
func (s *Storage) AuthenticateUser(identifier, password string) (models.User, error) {
	if password == "" {
		return models.User{}, fmt.Errorf("%w: password is required", ErrValidation)
	}
	user, ok := s.FindUserByLogin(identifier)
	if !ok {
		return models.User{}, fmt.Errorf("user %w", ErrNotFound)
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns the user record by id.
func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByUsername looks up an account by its case-folded handle.
func (s *Storage) FindUserByUsername(username string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := normalizeUsername(username)
	for _, user := range s.data.Users {
		if user.Username == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

// FindUserByLogin resolves a login identifier against usernames first, then
// emails. The case-folded username index wins ties; the fallback scan matches
// either field through models.User.MatchesLogin.
func (s *Storage) FindUserByLogin(identifier string) (models.User, bool) {
	if user, ok := s.FindUserByUsername(identifier); ok {
		return user, true
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.User{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.MatchesLogin(identifier) {
			return user, true
		}
	}
	return models.User{}, false
}

// UpdateUser applies profile changes. The password hash and refresh mirror
// are out of scope here and never touched.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s %w", id, ErrNotFound)
	}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return models.User{}, fmt.Errorf("%w: displayName cannot be empty", ErrValidation)
		}
		user.DisplayName = name
	}

	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" || !strings.Contains(email, "@") {
			return models.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if existing.Email == email {
				return models.User{}, fmt.Errorf("email %s %w", email, ErrConflict)
			}
		}
		user.Email = email
	}

	if update.AvatarURL != nil {
		url := strings.TrimSpace(*update.AvatarURL)
		if url == "" {
			return models.User{}, fmt.Errorf("%w: avatar URL cannot be empty", ErrValidation)
		}
		user.AvatarURL = url
	}

	if update.CoverImageURL != nil {
		user.CoverImageURL = strings.TrimSpace(*update.CoverImageURL)
	}

	user.UpdatedAt = s.now()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return user, nil
}

// SetUserPassword verifies the current secret and replaces the stored hash.
// This is the only update path that re-hashes; profile edits never touch the
// digest.
func (s *Storage) SetUserPassword(id, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return fmt.Errorf("user %s %w", id, ErrNotFound)
	}
	if err := s.hasher.Verify(user.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hashed
	user.UpdatedAt = s.now()
	updatedData.Users[id] = user

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}

// SetRefreshToken overwrites the single refresh mirror for the account.
func (s *Storage) SetRefreshToken(id, token string) error {
	return s.updateRefreshToken(id, token)
}

// ClearRefreshToken drops the refresh mirror. Clearing an absent mirror is
// not an error.
func (s *Storage) ClearRefreshToken(id string) error {
	err := s.updateRefreshToken(id, "")
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *Storage) updateRefreshToken(id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return fmt.Errorf("user %s %w", id, ErrNotFound)
	}
	user.RefreshToken = token
	updatedData.Users[id] = user

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}

// AppendWatchHistory records a watched video at the tail of the viewer's
// history. Re-watching moves the entry to the tail instead of duplicating it.
func (s *Storage) AppendWatchHistory(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[userID]
	if !ok {
		return fmt.Errorf("user %s %w", userID, ErrNotFound)
	}
	if _, ok := updatedData.Videos[videoID]; !ok {
		return fmt.Errorf("video %s %w", videoID, ErrNotFound)
	}

	history := make([]string, 0, len(user.WatchHistory)+1)
	for _, existing := range user.WatchHistory {
		if existing != videoID {
			history = append(history, existing)
		}
	}
	history = append(history, videoID)
	if len(history) > MaxWatchHistoryLength {
		history = history[len(history)-MaxWatchHistoryLength:]
	}
	user.WatchHistory = history
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}

// WatchHistory assembles the viewer's history, most recent first. Videos that
// were deleted or unpublished since being watched are skipped.
func (s *Storage) WatchHistory(userID string) ([]models.WatchHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s %w", userID, ErrNotFound)
	}

	entries := make([]models.WatchHistoryEntry, 0, len(user.WatchHistory))
	for i := len(user.WatchHistory) - 1; i >= 0; i-- {
		video, ok := s.data.Videos[user.WatchHistory[i]]
		if !ok || !video.Published {
			continue
		}
		entries = append(entries, models.WatchHistoryEntry{
			Video: video,
			Owner: s.channelSummaryLocked(video.OwnerID, userID),
		})
	}
	return entries, nil
}
