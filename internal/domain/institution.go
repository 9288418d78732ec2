package domain

import "time"

// Institution is a tenant (school). It scopes data visibility and
// administrative authority, and carries the SMTP transport used to deliver
// verification codes to its members.
type Institution struct {
	InstitutionID string              `json:"id" dynamodbav:"institution_id"`
	Name          string              `json:"name" dynamodbav:"name"`
	ShortName     string              `json:"short_name" dynamodbav:"short_name"`
	Code          string              `json:"code" dynamodbav:"code"`
	Domain        string              `json:"domain,omitempty" dynamodbav:"domain"`
	Settings      InstitutionSettings `json:"settings" dynamodbav:"settings"`
	SMTP          *SMTPSettings       `json:"smtp,omitempty" dynamodbav:"smtp"`
	Active        bool                `json:"active" dynamodbav:"active"`
	CreatedBy     string              `json:"created_by" dynamodbav:"created_by"`
	CreatedAt     time.Time           `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time           `json:"updated" dynamodbav:"updated_at"`
}

// InstitutionSettings is the per-tenant policy bag. RequireDomainMatch is
// enforced at account onboarding, not at verification time.
type InstitutionSettings struct {
	AllowPublicRegistration  bool `json:"allow_public_registration" dynamodbav:"allow_public_registration"`
	RequireEmailVerification bool `json:"require_email_verification" dynamodbav:"require_email_verification"`
	RequireDomainMatch       bool `json:"require_domain_match" dynamodbav:"require_domain_match"`
}

// SMTPSettings configures the institution's outbound email transport.
// Verification is unavailable for the institution until Enabled is set.
type SMTPSettings struct {
	From     string `json:"from" dynamodbav:"from" validate:"omitempty,email"`
	Host     string `json:"host" dynamodbav:"host" validate:"omitempty,hostname"`
	Port     string `json:"port" dynamodbav:"port"`
	Username string `json:"username,omitempty" dynamodbav:"username"`
	Password string `json:"-" dynamodbav:"password"`
	Enabled  bool   `json:"enabled" dynamodbav:"enabled"`
}

// CanSendEmail reports whether the institution has a usable email transport.
func (i *Institution) CanSendEmail() bool {
	return i.SMTP != nil && i.SMTP.Enabled && i.SMTP.Host != "" && i.SMTP.From != ""
}

type CreateInstitutionRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=100"`
	ShortName string `json:"short_name" validate:"required,min=2,max=20"`
	Code      string `json:"code" validate:"required,min=2,max=10"`
	Domain    string `json:"domain,omitempty" validate:"omitempty,fqdn"`
}
