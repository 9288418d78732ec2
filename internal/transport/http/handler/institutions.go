package handler

import (
	"encoding/json"
	"net/http"

	"github.com/carpschool/access-api/internal/application/institution"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// InstitutionHandler exposes tenant management endpoints.
type InstitutionHandler struct {
	svc institution.Service
}

func NewInstitutionHandler(svc institution.Service) *InstitutionHandler {
	return &InstitutionHandler{svc: svc}
}

func (h *InstitutionHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateInstitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inst, err := h.svc.Create(r.Context(), claims.AccountID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *InstitutionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Deactivate(r.Context(), claims.AccountID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "institution deactivated"})
}

func (h *InstitutionHandler) UpdateSMTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var smtp domain.SMTPSettings
	if err := json.NewDecoder(r.Body).Decode(&smtp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.UpdateSMTPSettings(r.Context(), claims.AccountID, chi.URLParam(r, "id"), &smtp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "smtp settings updated"})
}

func (h *InstitutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *InstitutionHandler) List(w http.ResponseWriter, r *http.Request) {
	insts, err := h.svc.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Data: insts})
}
