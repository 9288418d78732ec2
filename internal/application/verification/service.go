package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/carpschool/access-api/internal/config"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/infrastructure/smtp"
)

// AccountStore is the account access the coordinator needs.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByVerifiedEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
}

// ChallengeStore is the persistence surface for pending challenges.
type ChallengeStore interface {
	Put(ctx context.Context, c *domain.EmailChallenge) error
	Get(ctx context.Context, accountID string) (*domain.EmailChallenge, error)
	Delete(ctx context.Context, accountID string) error
	IncrementAttempts(ctx context.Context, accountID string) (int, error)
	MarkVerified(ctx context.Context, accountID string, verifiedAt int64) error
}

// InstitutionStore loads the tenant whose SMTP transport delivers the code.
type InstitutionStore interface {
	Get(ctx context.Context, institutionID string) (*domain.Institution, error)
}

// CaptchaGate is the human-verification check in front of code issuance.
type CaptchaGate interface {
	Verify(ctx context.Context, token, answer string) error
}

// Service drives the institutional-email ownership proof: issue a short-lived
// numeric code over the institution's SMTP, then challenge it with a bounded
// number of attempts.
type Service interface {
	IssueEmailCode(ctx context.Context, accountID, email, captchaToken, captchaAnswer string) error
	ChallengeEmailCode(ctx context.Context, accountID, code string) error
	Status(ctx context.Context, accountID string) (*domain.ChallengeStatus, error)
}

type ServiceDeps struct {
	AccountRepo     AccountStore
	ChallengeRepo   ChallengeStore
	InstitutionRepo InstitutionStore
	Captcha         CaptchaGate
	Mailer          smtp.Mailer
	Params          config.VerificationParams
}

type service struct {
	accounts     AccountStore
	challenges   ChallengeStore
	institutions InstitutionStore
	captcha      CaptchaGate
	mailer       smtp.Mailer
	params       config.VerificationParams
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts:     deps.AccountRepo,
		challenges:   deps.ChallengeRepo,
		institutions: deps.InstitutionRepo,
		captcha:      deps.Captcha,
		mailer:       deps.Mailer,
		params:       deps.Params,
	}
}

func (s *service) IssueEmailCode(ctx context.Context, accountID, email, captchaToken, captchaAnswer string) error {
	if accountID == "" {
		return fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	if err := s.captcha.Verify(ctx, captchaToken, captchaAnswer); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.InstitutionID == "" {
		return fmt.Errorf("account has no institution: %w", domain.ErrBadRequest)
	}
	inst, err := s.institutions.Get(ctx, account.InstitutionID)
	if err != nil {
		return err
	}
	if !inst.CanSendEmail() {
		return fmt.Errorf("institution %s: %w", inst.InstitutionID, domain.ErrTransportUnavailable)
	}

	// A proven email belongs to exactly one account.
	if holder, err := s.accounts.GetByVerifiedEmail(ctx, email); err == nil {
		if holder.AccountID != accountID {
			return fmt.Errorf("email %s: %w", email, domain.ErrEmailTaken)
		}
		return fmt.Errorf("email %s already verified by this account: %w", email, domain.ErrConflict)
	} else if !isNotFound(err) {
		return err
	}

	code, err := s.randomCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := time.Now().UTC()
	challenge := &domain.EmailChallenge{
		AccountID:     accountID,
		Email:         email,
		InstitutionID: inst.InstitutionID,
		Code:          code,
		MaxAttempts:   s.params.MaxAttempts,
		ExpiresAt:     now.Add(s.params.Expiry).Unix(),
		CreatedAt:     now.Unix(),
	}
	// PutItem replaces any pending challenge for this account, so issuing a
	// fresh code always retires the old one.
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return err
	}

	subject := fmt.Sprintf("%s verification code", inst.ShortName)
	body := fmt.Sprintf(
		"<p>Your %s verification code is:</p><h2>%s</h2><p>It expires in %d minutes.</p>",
		inst.Name, code, int(s.params.Expiry.Minutes()))
	if err := s.mailer.SendEmail(inst.SMTP, email, subject, body); err != nil {
		// No delivery, no challenge: roll back so the account isn't stuck
		// holding a code it never received.
		if delErr := s.challenges.Delete(ctx, accountID); delErr != nil {
			slog.Warn("failed to roll back undelivered challenge", "account_id", accountID, "err", delErr)
		}
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *service) ChallengeEmailCode(ctx context.Context, accountID, code string) error {
	if accountID == "" {
		return fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	challenge, err := s.challenges.Get(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("no challenge for account: %w", domain.ErrNoPendingChallenge)
		}
		return err
	}
	if challenge.Verified {
		return fmt.Errorf("challenge already completed: %w", domain.ErrNoPendingChallenge)
	}

	now := time.Now().UTC()
	if challenge.Expired(now) {
		if err := s.challenges.Delete(ctx, accountID); err != nil {
			return err
		}
		return fmt.Errorf("challenge for %s: %w", challenge.Email, domain.ErrChallengeExpired)
	}
	if challenge.Attempts >= challenge.MaxAttempts {
		if err := s.challenges.Delete(ctx, accountID); err != nil {
			return err
		}
		return fmt.Errorf("challenge for %s: %w", challenge.Email, domain.ErrChallengeExceeded)
	}

	attempts, err := s.challenges.IncrementAttempts(ctx, accountID)
	if err != nil {
		return err
	}
	// Tolerate surrounding whitespace from copy-paste; the code itself is
	// compared verbatim.
	if strings.TrimSpace(code) != challenge.Code {
		if attempts >= challenge.MaxAttempts {
			if err := s.challenges.Delete(ctx, accountID); err != nil {
				return err
			}
			return fmt.Errorf("challenge for %s: %w", challenge.Email, domain.ErrChallengeExceeded)
		}
		return &domain.CodeMismatchError{AttemptsRemaining: challenge.MaxAttempts - attempts}
	}

	if err := s.challenges.MarkVerified(ctx, accountID, now.Unix()); err != nil {
		return err
	}
	return s.accounts.Update(ctx, accountID, map[string]interface{}{
		"verified":       true,
		"verified_email": challenge.Email,
	})
}

func (s *service) Status(ctx context.Context, accountID string) (*domain.ChallengeStatus, error) {
	if accountID == "" {
		return nil, fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	challenge, err := s.challenges.Get(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return &domain.ChallengeStatus{Pending: false}, nil
		}
		return nil, err
	}
	if challenge.Verified {
		return &domain.ChallengeStatus{Pending: false}, nil
	}
	if challenge.Expired(time.Now().UTC()) {
		// Lazy reap: the TTL will get it eventually, but cleaning up here
		// keeps status reads consistent with issuance.
		if err := s.challenges.Delete(ctx, accountID); err != nil {
			slog.Warn("failed to delete expired challenge", "account_id", accountID, "err", err)
		}
		return &domain.ChallengeStatus{Pending: false}, nil
	}
	return &domain.ChallengeStatus{
		Pending:     true,
		Email:       challenge.Email,
		Attempts:    challenge.Attempts,
		MaxAttempts: challenge.MaxAttempts,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// randomCode draws each digit independently from crypto/rand so codes are
// uniform over the full space, leading zeros included.
func (s *service) randomCode() (string, error) {
	digits := make([]byte, s.params.CodeLength)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
