package domain

import (
	"log/slog"
	"time"
)

// Account is a platform identity. Roles is stored as a DynamoDB string set of
// encoded role tags so grants and revokes stay idempotent at the storage
// layer. InstitutionID is empty until an admin assigns the account.
type Account struct {
	AccountID      string     `json:"id" dynamodbav:"account_id"`
	Email          string     `json:"email" dynamodbav:"email"`
	InstitutionID  string     `json:"institution_id,omitempty" dynamodbav:"institution_id"`
	Roles          []string   `json:"roles,omitempty" dynamodbav:"roles,stringset,omitemptyelem"`
	Verified       bool       `json:"verified" dynamodbav:"verified"`
	VerifiedEmail  string     `json:"verified_email,omitempty" dynamodbav:"verified_email"`
	Enable         bool       `json:"enable" dynamodbav:"enable"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt      time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// RoleTags decodes the stored role strings. Tags that fail to parse are
// logged and skipped so a corrupt entry can never widen authority.
func (a *Account) RoleTags() []RoleTag {
	tags := make([]RoleTag, 0, len(a.Roles))
	for _, s := range a.Roles {
		t, err := ParseRoleTag(s)
		if err != nil {
			slog.Warn("skipping unparseable role tag", "account_id", a.AccountID, "tag", s)
			continue
		}
		tags = append(tags, t)
	}
	return tags
}

// Scope resolves the account's effective permission scope. A nil account
// resolves to an empty, non-admin scope.
func (a *Account) Scope() Scope {
	if a == nil {
		return ResolveScope(nil)
	}
	return ResolveScope(a.RoleTags())
}
