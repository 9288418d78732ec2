package domain

import "time"

// EmailChallenge is one pending institutional-email ownership proof.
// Keyed by account_id alone, so at most one pending challenge can exist
// per account. Issuing a new challenge overwrites the old item.
// ExpiresAt doubles as the DynamoDB TTL attribute.
type EmailChallenge struct {
	AccountID     string `json:"account_id" dynamodbav:"account_id"`
	Email         string `json:"email" dynamodbav:"email"`
	InstitutionID string `json:"institution_id" dynamodbav:"institution_id"`
	Code          string `json:"-" dynamodbav:"code"`
	Attempts      int    `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts   int    `json:"max_attempts" dynamodbav:"max_attempts"`
	Verified      bool   `json:"verified" dynamodbav:"verified"`
	ExpiresAt     int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	VerifiedAt    int64  `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	CreatedAt     int64  `json:"created_at" dynamodbav:"created_at"`
}

// Expired reports whether the challenge's expiry window has passed.
func (c *EmailChallenge) Expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// ChallengeStatus is the user-facing projection of a pending challenge.
type ChallengeStatus struct {
	Pending     bool   `json:"pending"`
	Email       string `json:"email,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}
