package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/carpschool/access-api/internal/application/admin"
	"github.com/carpschool/access-api/internal/application/captcha"
	"github.com/carpschool/access-api/internal/application/institution"
	"github.com/carpschool/access-api/internal/application/ratelimit"
	"github.com/carpschool/access-api/internal/application/verification"
	"github.com/carpschool/access-api/internal/config"
	"github.com/carpschool/access-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/carpschool/access-api/internal/infrastructure/jwt"
	"github.com/carpschool/access-api/internal/infrastructure/smtp"
	"github.com/carpschool/access-api/internal/infrastructure/sns"
	"github.com/carpschool/access-api/internal/transport/http/handler"
	appmiddleware "github.com/carpschool/access-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	AccountRepo     *dynamo.AccountRepo
	InstitutionRepo *dynamo.InstitutionRepo
	ChallengeRepo   *dynamo.ChallengeRepo
	RateLimitRepo   *dynamo.RateLimitRepo
	CaptchaRepo     *dynamo.CaptchaRepo
	Mailer          smtp.Mailer
	Audit           sns.AuditPublisher
	JWTProvider     *jwtinfra.Provider
	Admission       *ratelimit.Ephemeral
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	captchaSvc := captcha.NewService(captcha.ServiceDeps{
		CaptchaRepo: deps.CaptchaRepo,
		Expiry:      cfg.CaptchaExpiry,
		MaxAttempts: cfg.CaptchaAttempts,
	})
	adminSvc := admin.NewService(admin.ServiceDeps{
		AccountRepo:     deps.AccountRepo,
		InstitutionRepo: deps.InstitutionRepo,
		Audit:           deps.Audit,
	})
	institutionSvc := institution.NewService(institution.ServiceDeps{
		AccountRepo:     deps.AccountRepo,
		InstitutionRepo: deps.InstitutionRepo,
	})
	verificationSvc := verification.NewService(verification.ServiceDeps{
		AccountRepo:     deps.AccountRepo,
		ChallengeRepo:   deps.ChallengeRepo,
		InstitutionRepo: deps.InstitutionRepo,
		Captcha:         captchaSvc,
		Mailer:          deps.Mailer,
		Params:          cfg.Verification,
	})
	ratelimitSvc := ratelimit.NewService(ratelimit.ServiceDeps{
		RateLimitRepo: deps.RateLimitRepo,
		AccountRepo:   deps.AccountRepo,
		Audit:         deps.Audit,
	})

	healthH := handler.NewHealthHandler()
	adminH := handler.NewAdminHandler(adminSvc)
	institutionH := handler.NewInstitutionHandler(institutionSvc)
	verificationH := handler.NewVerificationHandler(verificationSvc, deps.Admission)
	ratelimitH := handler.NewRateLimitHandler(ratelimitSvc, deps.Admission)
	captchaH := handler.NewCaptchaHandler(captchaSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/captcha", captchaH.Generate)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/institutions", institutionH.List)
			r.Get("/institutions/{id}", institutionH.Get)
			r.Post("/institutions", institutionH.Create)
			r.Delete("/institutions/{id}", institutionH.Deactivate)
			r.Put("/institutions/{id}/smtp", institutionH.UpdateSMTP)

			r.With(sensitiveRL.Limit).Post("/verification/email-code", verificationH.IssueCode)
			r.Post("/verification/email-code/challenge", verificationH.ChallengeCode)
			r.Get("/verification/status", verificationH.Status)

			r.Post("/rate-limits/check", ratelimitH.Check)
			r.Post("/rate-limits/record", ratelimitH.Record)
			r.Post("/rate-limits/cleanup", ratelimitH.Cleanup)
			r.Get("/rate-limits", ratelimitH.OwnEntries)
			r.Get("/rate-limits/{action}", ratelimitH.EntryStatus)

			r.Post("/admin/institution-admins/{id}", adminH.PromoteInstitutionAdmin)
			r.Delete("/admin/institution-admins/{id}", adminH.DemoteInstitutionAdmin)
			r.Post("/admin/global-admins/{id}", adminH.PromoteGlobalAdmin)
			r.Delete("/admin/global-admins/{id}", adminH.DemoteGlobalAdmin)
			r.Put("/admin/accounts/{id}/institution", adminH.AssignInstitution)
			r.Get("/admin/rate-limits", ratelimitH.AllEntries)
		})
	})

	return r
}
