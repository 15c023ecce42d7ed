package api

import (
	"fmt"
	"net/http"
)

// ChannelByUsername dispatches /api/channels/{username}[/subscribe|/subscribers].
// The profile and subscriber listing are public with optional viewer context;
// subscribe and unsubscribe require authentication.
func (h *Handler) ChannelByUsername(w http.ResponseWriter, r *http.Request) {
	username, rest := trimPathSegment(r.URL.Path, "/api/channels/")
	if username == "" {
		writeFailure(w, http.StatusNotFound, "channel username missing")
		return
	}

	switch rest {
	case "":
		h.channelProfile(w, r, username)
	case "subscribe":
		h.channelSubscription(w, r, username)
	case "subscribers":
		h.channelSubscribers(w, r, username)
	default:
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("unknown channel resource %q", rest))
	}
}

func (h *Handler) channelProfile(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	viewerID := ""
	if viewer, ok := UserFromContext(r.Context()); ok {
		viewerID = viewer.ID
	}
	profile, err := h.Store.ChannelProfile(username, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, profile, "channel profile")
}

func (h *Handler) channelSubscription(w http.ResponseWriter, r *http.Request, username string) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	channel, exists := h.Store.FindUserByUsername(username)
	if !exists {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("channel %s not found", username))
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := h.Store.Subscribe(channel.ID, actor.ID); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, nil, "subscribed")
	case http.MethodDelete:
		if err := h.Store.Unsubscribe(channel.ID, actor.ID); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, nil, "unsubscribed")
	default:
		methodNotAllowed(w, r, "POST, DELETE")
	}
}

func (h *Handler) channelSubscribers(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	channel, exists := h.Store.FindUserByUsername(username)
	if !exists {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("channel %s not found", username))
		return
	}
	subscribers, err := h.Store.ListSubscribers(channel.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, subscribers, "channel subscribers")
}
