package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carpschool/access-api/internal/application/authz"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/infrastructure/sns"
)

// AccountStore is the minimal account access the gateway needs.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	AddRole(ctx context.Context, accountID string, tag domain.RoleTag) error
	RemoveRole(ctx context.Context, accountID string, tag domain.RoleTag) error
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
}

// InstitutionStore is the minimal institution access the gateway needs.
type InstitutionStore interface {
	Get(ctx context.Context, institutionID string) (*domain.Institution, error)
}

// Service is the administrative mutation gateway: every operation resolves
// the caller's scope, authorizes against the target's institution, then
// applies an idempotent role-set mutation.
type Service interface {
	PromoteInstitutionAdmin(ctx context.Context, callerID, targetID string) error
	DemoteInstitutionAdmin(ctx context.Context, callerID, targetID string) error
	PromoteGlobalAdmin(ctx context.Context, callerID, targetID string) error
	DemoteGlobalAdmin(ctx context.Context, callerID, targetID string) error
	AssignAccountToInstitution(ctx context.Context, callerID, targetID, institutionID string) error
}

type ServiceDeps struct {
	AccountRepo     AccountStore
	InstitutionRepo InstitutionStore
	Audit           sns.AuditPublisher
}

type service struct {
	accounts     AccountStore
	institutions InstitutionStore
	audit        sns.AuditPublisher
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts:     deps.AccountRepo,
		institutions: deps.InstitutionRepo,
		audit:        deps.Audit,
	}
}

func (s *service) PromoteInstitutionAdmin(ctx context.Context, callerID, targetID string) error {
	caller, target, err := s.loadPair(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if target.InstitutionID == "" {
		return fmt.Errorf("target account has no institution: %w", domain.ErrBadRequest)
	}
	if err := authz.Authorize(authz.Resolve(caller), caller.InstitutionID, target.InstitutionID, authz.LevelSameInstitution); err != nil {
		return err
	}
	if err := s.accounts.AddRole(ctx, targetID, domain.InstitutionAdminTag(target.InstitutionID)); err != nil {
		return err
	}
	s.publishAudit(ctx, "admin.promote_institution_admin", callerID, targetID, target.InstitutionID)
	return nil
}

func (s *service) DemoteInstitutionAdmin(ctx context.Context, callerID, targetID string) error {
	caller, target, err := s.loadPair(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if target.InstitutionID == "" {
		return fmt.Errorf("target account has no institution: %w", domain.ErrBadRequest)
	}
	if err := authz.Authorize(authz.Resolve(caller), caller.InstitutionID, target.InstitutionID, authz.LevelSameInstitution); err != nil {
		return err
	}
	if err := s.accounts.RemoveRole(ctx, targetID, domain.InstitutionAdminTag(target.InstitutionID)); err != nil {
		return err
	}
	s.publishAudit(ctx, "admin.demote_institution_admin", callerID, targetID, target.InstitutionID)
	return nil
}

func (s *service) PromoteGlobalAdmin(ctx context.Context, callerID, targetID string) error {
	caller, _, err := s.loadPair(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal); err != nil {
		return err
	}
	if err := s.accounts.AddRole(ctx, targetID, domain.GlobalAdminTag()); err != nil {
		return err
	}
	s.publishAudit(ctx, "admin.promote_global_admin", callerID, targetID, "")
	return nil
}

func (s *service) DemoteGlobalAdmin(ctx context.Context, callerID, targetID string) error {
	caller, _, err := s.loadPair(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal); err != nil {
		return err
	}
	// Lockout prevention: even the last global admin cannot demote themselves.
	if callerID == targetID {
		return fmt.Errorf("refusing self-demotion: %w", domain.ErrSelfLockout)
	}
	if err := s.accounts.RemoveRole(ctx, targetID, domain.GlobalAdminTag()); err != nil {
		return err
	}
	s.publishAudit(ctx, "admin.demote_global_admin", callerID, targetID, "")
	return nil
}

func (s *service) AssignAccountToInstitution(ctx context.Context, callerID, targetID, institutionID string) error {
	caller, target, err := s.loadPair(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal); err != nil {
		return err
	}
	inst, err := s.institutions.Get(ctx, institutionID)
	if err != nil {
		return err
	}
	if !inst.Active {
		return fmt.Errorf("institution is deactivated: %w", domain.ErrBadRequest)
	}
	// Re-assigning the same institution is a no-op success.
	if target.InstitutionID == inst.InstitutionID {
		return nil
	}
	if err := s.accounts.Update(ctx, targetID, map[string]interface{}{"institution_id": inst.InstitutionID}); err != nil {
		return err
	}
	s.publishAudit(ctx, "admin.assign_institution", callerID, targetID, inst.InstitutionID)
	return nil
}

func (s *service) loadPair(ctx context.Context, callerID, targetID string) (caller, target *domain.Account, err error) {
	if callerID == "" {
		return nil, nil, fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	caller, err = s.accounts.Get(ctx, callerID)
	if err != nil {
		return nil, nil, fmt.Errorf("caller: %w", err)
	}
	target, err = s.accounts.Get(ctx, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	return caller, target, nil
}

// publishAudit is best effort: a failed audit write never fails the mutation.
func (s *service) publishAudit(ctx context.Context, action, callerID, targetID, institutionID string) {
	if s.audit == nil {
		return
	}
	ev := sns.AuditEvent{
		Action:          action,
		ActorAccountID:  callerID,
		TargetAccountID: targetID,
		InstitutionID:   institutionID,
		At:              time.Now().UTC(),
	}
	if err := s.audit.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish audit event", "action", action, "err", err)
	}
}
