package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carpschool/access-api/internal/application/ratelimit"
	"github.com/carpschool/access-api/internal/application/verification"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/transport/http/middleware"
)

const statusChannelInterval = 2 * time.Second

// VerificationHandler exposes the email-ownership verification endpoints.
// Status reads go through the process-local admission limiter.
type VerificationHandler struct {
	svc       verification.Service
	admission *ratelimit.Ephemeral
}

func NewVerificationHandler(svc verification.Service, admission *ratelimit.Ephemeral) *VerificationHandler {
	return &VerificationHandler{svc: svc, admission: admission}
}

func (h *VerificationHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Email         string `json:"email"`
		CaptchaToken  string `json:"captcha_token"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.IssueEmailCode(r.Context(), claims.AccountID, body.Email, body.CaptchaToken, body.CaptchaAnswer); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *VerificationHandler) ChallengeCode(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.ChallengeEmailCode(r.Context(), claims.AccountID, body.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}

func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.admission.Allow(claims.AccountID, "verification.status", statusChannelInterval) {
		writeDomainError(w, fmt.Errorf("verification status: %w", domain.ErrRateLimited))
		return
	}
	status, err := h.svc.Status(r.Context(), claims.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
