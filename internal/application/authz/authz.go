// Package authz resolves role tags into permission scopes and decides
// allow/deny for scoped actions. Everything here is pure: callers load the
// account, authz never touches storage.
package authz

import (
	"fmt"

	"github.com/carpschool/access-api/internal/domain"
)

// Level is the authority an action demands.
type Level int

const (
	// LevelInstitution actions may be performed by an admin of the target
	// institution, even one belonging to a different institution.
	LevelInstitution Level = iota
	// LevelSameInstitution actions additionally require the caller to belong
	// to the target institution (same-institution affinity).
	LevelSameInstitution
	// LevelGlobal actions require the global admin tag.
	LevelGlobal
)

// Resolve derives the effective permission scope from an account. A nil
// account yields an empty, non-admin scope.
func Resolve(account *domain.Account) domain.Scope {
	return account.Scope()
}

// Authorize applies the scope rules in order: global admins are always
// allowed; institution-level actions are allowed for admins of the target
// institution; affinity-requiring actions deny cross-institution callers;
// everything else is an insufficient-scope denial.
func Authorize(scope domain.Scope, callerInstitutionID, targetInstitutionID string, level Level) error {
	if scope.GlobalAdmin {
		return nil
	}
	switch level {
	case LevelInstitution:
		if targetInstitutionID != "" && scope.AdminOf(targetInstitutionID) {
			return nil
		}
	case LevelSameInstitution:
		if targetInstitutionID != "" && scope.AdminOf(targetInstitutionID) {
			if callerInstitutionID != targetInstitutionID {
				return fmt.Errorf("caller belongs to a different institution: %w", domain.ErrCrossInstitution)
			}
			return nil
		}
	}
	return fmt.Errorf("action requires higher authority: %w", domain.ErrInsufficientScope)
}
