package institution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carpschool/access-api/internal/application/authz"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/pkg/id"
	"github.com/carpschool/access-api/internal/pkg/validate"
)

// AccountStore loads the caller for authorization decisions.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// InstitutionStore is the persistence surface for institutions.
type InstitutionStore interface {
	Put(ctx context.Context, inst *domain.Institution) error
	Get(ctx context.Context, institutionID string) (*domain.Institution, error)
	GetByCode(ctx context.Context, code string) (*domain.Institution, error)
	Update(ctx context.Context, institutionID string, updates map[string]interface{}) error
	ListActive(ctx context.Context) ([]domain.Institution, error)
}

// Service manages tenants. Creation and deactivation are global-admin
// operations; SMTP settings may also be changed by that institution's admins.
type Service interface {
	Create(ctx context.Context, callerID string, req *domain.CreateInstitutionRequest) (*domain.Institution, error)
	Deactivate(ctx context.Context, callerID, institutionID string) error
	UpdateSMTPSettings(ctx context.Context, callerID, institutionID string, smtp *domain.SMTPSettings) error
	Get(ctx context.Context, institutionID string) (*domain.Institution, error)
	List(ctx context.Context) ([]domain.Institution, error)
}

type ServiceDeps struct {
	AccountRepo     AccountStore
	InstitutionRepo InstitutionStore
}

type service struct {
	accounts     AccountStore
	institutions InstitutionStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts:     deps.AccountRepo,
		institutions: deps.InstitutionRepo,
	}
}

func (s *service) Create(ctx context.Context, callerID string, req *domain.CreateInstitutionRequest) (*domain.Institution, error) {
	caller, err := s.loadCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	// The short code is the human-facing unique handle.
	if _, err := s.institutions.GetByCode(ctx, req.Code); err == nil {
		return nil, fmt.Errorf("institution code %q already in use: %w", req.Code, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	inst := &domain.Institution{
		InstitutionID: id.New(),
		Name:          req.Name,
		ShortName:     req.ShortName,
		Code:          req.Code,
		Domain:        req.Domain,
		Settings: domain.InstitutionSettings{
			RequireEmailVerification: true,
			RequireDomainMatch:       req.Domain != "",
		},
		Active:    true,
		CreatedBy: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.institutions.Put(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *service) Deactivate(ctx context.Context, callerID, institutionID string) error {
	caller, err := s.loadCaller(ctx, callerID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal); err != nil {
		return err
	}
	if _, err := s.institutions.Get(ctx, institutionID); err != nil {
		return err
	}
	return s.institutions.Update(ctx, institutionID, map[string]interface{}{"active": false})
}

func (s *service) UpdateSMTPSettings(ctx context.Context, callerID, institutionID string, smtp *domain.SMTPSettings) error {
	caller, err := s.loadCaller(ctx, callerID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Resolve(caller), caller.InstitutionID, institutionID, authz.LevelInstitution); err != nil {
		return err
	}
	if err := validate.Struct(smtp); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if _, err := s.institutions.Get(ctx, institutionID); err != nil {
		return err
	}
	return s.institutions.Update(ctx, institutionID, map[string]interface{}{"smtp": smtp})
}

func (s *service) Get(ctx context.Context, institutionID string) (*domain.Institution, error) {
	return s.institutions.Get(ctx, institutionID)
}

func (s *service) List(ctx context.Context) ([]domain.Institution, error) {
	return s.institutions.ListActive(ctx)
}

func (s *service) loadCaller(ctx context.Context, callerID string) (*domain.Account, error) {
	if callerID == "" {
		return nil, fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	return s.accounts.Get(ctx, callerID)
}
