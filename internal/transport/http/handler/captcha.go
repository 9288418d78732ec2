package handler

import (
	"net/http"

	"github.com/carpschool/access-api/internal/application/captcha"
)

// CaptchaHandler issues human-verification puzzles. Verification happens
// implicitly inside code issuance, so only Generate is exposed.
type CaptchaHandler struct {
	svc captcha.Service
}

func NewCaptchaHandler(svc captcha.Service) *CaptchaHandler {
	return &CaptchaHandler{svc: svc}
}

func (h *CaptchaHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ch, err := h.svc.Generate(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}
