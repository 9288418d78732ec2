package domain

import (
	"fmt"
	"strings"
)

// RoleKind discriminates the two admin role variants.
type RoleKind string

const (
	RoleGlobalAdmin      RoleKind = "global"
	RoleInstitutionAdmin RoleKind = "institution"
)

// Wire encoding of role tags. The structured RoleTag is the source of truth;
// these flat strings exist only at the persistence boundary.
const (
	tagGlobalAdmin          = "system"
	tagInstitutionAdminPref = "admin."
)

// RoleTag is one entry of an account's role set. A global tag carries no
// institution; an institution-admin tag carries the institution it scopes.
type RoleTag struct {
	Kind          RoleKind
	InstitutionID string
}

func GlobalAdminTag() RoleTag {
	return RoleTag{Kind: RoleGlobalAdmin}
}

func InstitutionAdminTag(institutionID string) RoleTag {
	return RoleTag{Kind: RoleInstitutionAdmin, InstitutionID: institutionID}
}

// Encode returns the flat-string form stored in DynamoDB.
func (t RoleTag) Encode() string {
	if t.Kind == RoleGlobalAdmin {
		return tagGlobalAdmin
	}
	return tagInstitutionAdminPref + t.InstitutionID
}

// ParseRoleTag decodes a stored role string. Unknown strings return an error
// so stale tags surface in logs instead of silently granting nothing.
func ParseRoleTag(s string) (RoleTag, error) {
	if s == tagGlobalAdmin {
		return GlobalAdminTag(), nil
	}
	if rest, ok := strings.CutPrefix(s, tagInstitutionAdminPref); ok && rest != "" {
		return InstitutionAdminTag(rest), nil
	}
	return RoleTag{}, fmt.Errorf("unknown role tag %q", s)
}

// Scope is the resolved authority of a caller: a possible global flag plus the
// set of institutions the caller administers.
type Scope struct {
	GlobalAdmin         bool
	AdminInstitutionIDs map[string]struct{}
}

// AdminOf reports whether the scope grants admin authority over the given
// institution. Global admins administer every institution.
func (s Scope) AdminOf(institutionID string) bool {
	if s.GlobalAdmin {
		return true
	}
	_, ok := s.AdminInstitutionIDs[institutionID]
	return ok
}

// ResolveScope derives a Scope from a role-tag set. Pure: identical tag sets
// always yield identical scopes, and a nil slice resolves to an empty scope.
func ResolveScope(tags []RoleTag) Scope {
	scope := Scope{AdminInstitutionIDs: make(map[string]struct{})}
	for _, t := range tags {
		switch t.Kind {
		case RoleGlobalAdmin:
			scope.GlobalAdmin = true
		case RoleInstitutionAdmin:
			scope.AdminInstitutionIDs[t.InstitutionID] = struct{}{}
		}
	}
	return scope
}
