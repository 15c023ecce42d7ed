package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"vidstream/internal/auth"
	"vidstream/internal/media"
	"vidstream/internal/storage"
)

// Every response uses one of two envelopes: successes carry a data payload,
// failures carry a message plus an errors list for field-level detail.

type successEnvelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

type failureEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, successEnvelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeFieldFailure(w, status, message, nil)
}

func writeFieldFailure(w http.ResponseWriter, status int, message string, fieldErrors []string) {
	if fieldErrors == nil {
		fieldErrors = []string{}
	}
	writeJSON(w, status, failureEnvelope{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     fieldErrors,
	})
}

// writeError maps domain sentinels onto envelope failures. Authentication
// failures collapse to generic messages so responses never reveal whether a
// token was malformed, expired, or forged; the session-invalid message is the
// one deliberate exception because clients must know to re-login.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrSessionInvalid):
		writeFailure(w, http.StatusUnauthorized, auth.ErrSessionInvalid.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
		writeFailure(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, media.ErrDisabled):
		writeFailure(w, http.StatusBadGateway, "media storage unavailable")
	default:
		writeFailure(w, http.StatusInternalServerError, "internal server error")
	}
}

// WriteFailure is the exported variant used by the server middleware.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	writeFailure(w, status, message)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeFailure(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
}
