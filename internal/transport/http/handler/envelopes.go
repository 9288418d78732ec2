package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carpschool/access-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Kind discriminates the
// challenge-family failures so clients can branch without string matching.
type MessageEnvelope struct {
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
	Kind              string `json:"kind,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// StatusEnvelope wraps rate-limit status responses.
type StatusEnvelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var mismatch *domain.CodeMismatchError
	if errors.As(err, &mismatch) {
		remaining := mismatch.AttemptsRemaining
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{
			Error:             err.Error(),
			Kind:              "code_mismatch",
			AttemptsRemaining: &remaining,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInsufficientScope),
		errors.Is(err, domain.ErrCrossInstitution),
		errors.Is(err, domain.ErrSelfLockout):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrTransportUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrInvalidCaptcha):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Kind: "invalid_captcha"})
	case errors.Is(err, domain.ErrChallengeExpired):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Kind: "challenge_expired"})
	case errors.Is(err, domain.ErrChallengeExceeded):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Kind: "challenge_exceeded"})
	case errors.Is(err, domain.ErrNoPendingChallenge):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Kind: "no_pending_challenge"})
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
