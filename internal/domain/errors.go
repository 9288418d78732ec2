package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadRequest      = errors.New("bad request")

	// Authorization denials.
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrCrossInstitution  = errors.New("cross-institution access denied")
	ErrSelfLockout       = errors.New("cannot revoke your own global admin role")

	// Verification failures.
	ErrEmailTaken           = errors.New("email already verified by another account")
	ErrTransportUnavailable = errors.New("institution email delivery not configured")
	ErrInvalidCaptcha       = errors.New("invalid captcha answer")
	ErrChallengeExpired     = errors.New("verification code expired")
	ErrChallengeExceeded    = errors.New("maximum verification attempts exceeded")
	ErrChallengeMismatch    = errors.New("verification code mismatch")
	ErrNoPendingChallenge   = errors.New("no pending verification")

	// Throttling. Distinct from an authorization denial: the caller is
	// allowed but must wait.
	ErrRateLimited = errors.New("rate limited")
)

// CodeMismatchError reports a wrong verification code along with how many
// attempts the account has left before the challenge is retired.
type CodeMismatchError struct {
	AttemptsRemaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *CodeMismatchError) Unwrap() error { return ErrChallengeMismatch }
