package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carpschool/access-api/internal/application/ratelimit"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// Read-channel admission intervals.
const (
	ownEntriesInterval   = 5 * time.Second
	entryStatusInterval  = 2 * time.Second
	adminEntriesInterval = 10 * time.Second
)

// RateLimitHandler exposes the durable rate-limit operations plus the
// admission-limited read channels.
type RateLimitHandler struct {
	svc       ratelimit.Service
	admission *ratelimit.Ephemeral
}

func NewRateLimitHandler(svc ratelimit.Service, admission *ratelimit.Ephemeral) *RateLimitHandler {
	return &RateLimitHandler{svc: svc, admission: admission}
}

type rateLimitRequest struct {
	Action     string `json:"action"`
	IntervalMs int64  `json:"interval_ms"`
}

func (h *RateLimitHandler) Check(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body rateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	allowed, err := h.svc.CheckAndRecord(r.Context(), claims.AccountID, body.Action,
		time.Duration(body.IntervalMs)*time.Millisecond)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !allowed {
		writeDomainError(w, fmt.Errorf("action %s: %w", body.Action, domain.ErrRateLimited))
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "allowed"})
}

func (h *RateLimitHandler) Record(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body rateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.RecordOnly(r.Context(), claims.AccountID, body.Action,
		time.Duration(body.IntervalMs)*time.Millisecond); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "recorded"})
}

func (h *RateLimitHandler) OwnEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.admission.Allow(claims.AccountID, "ratelimit.own", ownEntriesInterval) {
		writeDomainError(w, fmt.Errorf("rate limit listing: %w", domain.ErrRateLimited))
		return
	}
	statuses, err := h.svc.OwnEntries(r.Context(), claims.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Data: statuses})
}

func (h *RateLimitHandler) EntryStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	action := chi.URLParam(r, "action")
	if !h.admission.Allow(claims.AccountID, "ratelimit.status:"+action, entryStatusInterval) {
		writeDomainError(w, fmt.Errorf("rate limit status: %w", domain.ErrRateLimited))
		return
	}
	status, err := h.svc.StatusOf(r.Context(), claims.AccountID, action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *RateLimitHandler) AllEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.admission.Allow(claims.AccountID, "ratelimit.all", adminEntriesInterval) {
		writeDomainError(w, fmt.Errorf("rate limit listing: %w", domain.ErrRateLimited))
		return
	}
	statuses, err := h.svc.AllEntries(r.Context(), claims.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Data: statuses})
}

func (h *RateLimitHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	deleted, err := h.svc.CleanupOlderThan(r.Context(), claims.AccountID,
		time.Duration(body.OlderThanDays)*24*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: fmt.Sprintf("deleted %d entries", deleted)})
}
