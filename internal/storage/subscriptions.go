package storage

import (
	"fmt"
	"sort"

	"vidstream/internal/models"
)

func subscriptionKey(channelID, subscriberID string) string {
	return channelID + ":" + subscriberID
}

// Subscribe records that subscriberID follows channelID. Subscribing twice is
// a no-op; subscribing to yourself is rejected.
func (s *Storage) Subscribe(channelID, subscriberID string) error {
	if channelID == subscriberID {
		return fmt.Errorf("%w: cannot subscribe to your own channel", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return fmt.Errorf("channel %s %w", channelID, ErrNotFound)
	}
	if _, ok := s.data.Users[subscriberID]; !ok {
		return fmt.Errorf("user %s %w", subscriberID, ErrNotFound)
	}

	key := subscriptionKey(channelID, subscriberID)
	if _, ok := s.data.Subscriptions[key]; ok {
		return nil
	}

	s.data.Subscriptions[key] = models.Subscription{
		ID:           newID(),
		ChannelID:    channelID,
		SubscriberID: subscriberID,
		CreatedAt:    s.now(),
	}
	if err := s.persist(); err != nil {
		delete(s.data.Subscriptions, key)
		return err
	}
	return nil
}

// Unsubscribe removes the follow edge. Removing an absent edge is a no-op.
func (s *Storage) Unsubscribe(channelID, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subscriptionKey(channelID, subscriberID)
	existing, ok := s.data.Subscriptions[key]
	if !ok {
		return nil
	}
	delete(s.data.Subscriptions, key)
	if err := s.persist(); err != nil {
		s.data.Subscriptions[key] = existing
		return err
	}
	return nil
}

// IsSubscribed reports whether subscriberID follows channelID.
func (s *Storage) IsSubscribed(channelID, subscriberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSubscribedLocked(channelID, subscriberID)
}

func (s *Storage) isSubscribedLocked(channelID, subscriberID string) bool {
	if subscriberID == "" {
		return false
	}
	_, ok := s.data.Subscriptions[subscriptionKey(channelID, subscriberID)]
	return ok
}

// CountSubscribers returns the number of accounts following the channel.
func (s *Storage) CountSubscribers(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countSubscribersLocked(channelID)
}

func (s *Storage) countSubscribersLocked(channelID string) int {
	count := 0
	for _, sub := range s.data.Subscriptions {
		if sub.ChannelID == channelID {
			count++
		}
	}
	return count
}

// CountSubscriptions returns how many channels the user follows.
func (s *Storage) CountSubscriptions(subscriberID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sub := range s.data.Subscriptions {
		if sub.SubscriberID == subscriberID {
			count++
		}
	}
	return count
}

// ListSubscribers returns the public profiles of a channel's subscribers,
// newest first.
func (s *Storage) ListSubscribers(channelID string) ([]models.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return nil, fmt.Errorf("channel %s %w", channelID, ErrNotFound)
	}

	subs := make([]models.Subscription, 0)
	for _, sub := range s.data.Subscriptions {
		if sub.ChannelID == channelID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})

	subscribers := make([]models.PublicUser, 0, len(subs))
	for _, sub := range subs {
		if user, ok := s.data.Users[sub.SubscriberID]; ok {
			subscribers = append(subscribers, user.Public())
		}
	}
	return subscribers, nil
}

// ChannelProfile assembles the public channel page for the handle, with
// subscription state resolved against the viewer.
func (s *Storage) ChannelProfile(username, viewerID string) (models.ChannelProfile, error) {
	user, ok := s.FindUserByUsername(username)
	if !ok {
		return models.ChannelProfile{}, fmt.Errorf("channel %s %w", username, ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	subscribedTo := 0
	for _, sub := range s.data.Subscriptions {
		if sub.SubscriberID == user.ID {
			subscribedTo++
		}
	}

	return models.ChannelProfile{
		PublicUser:        user.Public(),
		SubscriberCount:   s.countSubscribersLocked(user.ID),
		SubscribedToCount: subscribedTo,
		IsSubscribed:      s.isSubscribedLocked(user.ID, viewerID),
	}, nil
}

func (s *Storage) channelSummaryLocked(ownerID, viewerID string) models.ChannelSummary {
	owner, ok := s.data.Users[ownerID]
	if !ok {
		return models.ChannelSummary{ID: ownerID}
	}
	return models.ChannelSummary{
		ID:              owner.ID,
		Username:        owner.Username,
		DisplayName:     owner.DisplayName,
		AvatarURL:       owner.AvatarURL,
		SubscriberCount: s.countSubscribersLocked(owner.ID),
		IsSubscribed:    s.isSubscribedLocked(owner.ID, viewerID),
	}
}
