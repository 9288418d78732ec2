package handler

import (
	"encoding/json"
	"net/http"

	"github.com/carpschool/access-api/internal/application/admin"
	"github.com/carpschool/access-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes the administrative role-mutation endpoints.
type AdminHandler struct {
	svc admin.Service
}

func NewAdminHandler(svc admin.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) PromoteInstitutionAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	if err := h.svc.PromoteInstitutionAdmin(r.Context(), claims.AccountID, targetID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "institution admin role granted"})
}

func (h *AdminHandler) DemoteInstitutionAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	if err := h.svc.DemoteInstitutionAdmin(r.Context(), claims.AccountID, targetID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "institution admin role revoked"})
}

func (h *AdminHandler) PromoteGlobalAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	if err := h.svc.PromoteGlobalAdmin(r.Context(), claims.AccountID, targetID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "global admin role granted"})
}

func (h *AdminHandler) DemoteGlobalAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	if err := h.svc.DemoteGlobalAdmin(r.Context(), claims.AccountID, targetID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "global admin role revoked"})
}

func (h *AdminHandler) AssignInstitution(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "id")
	var body struct {
		InstitutionID string `json:"institution_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.InstitutionID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.AssignAccountToInstitution(r.Context(), claims.AccountID, targetID, body.InstitutionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account assigned to institution"})
}
