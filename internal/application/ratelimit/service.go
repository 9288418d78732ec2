package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carpschool/access-api/internal/application/authz"
	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/infrastructure/sns"
)

// Store is the durable persistence surface for rate-limit entries.
type Store interface {
	CheckAndRecord(ctx context.Context, accountID, name string, limitMs, nowMs int64) (bool, error)
	Record(ctx context.Context, accountID, name string, limitMs, nowMs int64) error
	Get(ctx context.Context, accountID, name string) (*domain.RateLimitEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.RateLimitEntry, error)
	ListAll(ctx context.Context) ([]domain.RateLimitEntry, error)
	DeleteOlderThan(ctx context.Context, cutoffMs int64) (int, error)
}

// AccountStore loads the caller for privileged operations.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// Service is the durable rate limiter. Entries survive restarts, are shared
// across instances, and are never swept automatically; CleanupOlderThan is the
// only way old entries leave the table.
type Service interface {
	CheckAndRecord(ctx context.Context, accountID, action string, minInterval time.Duration) (bool, error)
	RecordOnly(ctx context.Context, accountID, action string, minInterval time.Duration) error
	StatusOf(ctx context.Context, accountID, action string) (*domain.RateLimitStatus, error)
	OwnEntries(ctx context.Context, accountID string) ([]domain.RateLimitStatus, error)
	AllEntries(ctx context.Context, callerID string) ([]domain.RateLimitStatus, error)
	CleanupOlderThan(ctx context.Context, callerID string, olderThan time.Duration) (int, error)
}

type ServiceDeps struct {
	RateLimitRepo Store
	AccountRepo   AccountStore
	Audit         sns.AuditPublisher
	Now           func() time.Time // defaults to time.Now
}

type service struct {
	entries  Store
	accounts AccountStore
	audit    sns.AuditPublisher
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		entries:  deps.RateLimitRepo,
		accounts: deps.AccountRepo,
		audit:    deps.Audit,
		now:      now,
	}
}

// CheckAndRecord admits the call and stamps the entry iff at least minInterval
// elapsed since the last admitted call. The check and the stamp are one
// conditional write, so two racing calls can never both be admitted.
func (s *service) CheckAndRecord(ctx context.Context, accountID, action string, minInterval time.Duration) (bool, error) {
	if accountID == "" || action == "" {
		return false, fmt.Errorf("account and action are required: %w", domain.ErrBadRequest)
	}
	return s.entries.CheckAndRecord(ctx, accountID, action, minInterval.Milliseconds(), s.now().UnixMilli())
}

// RecordOnly stamps the entry without admission control, for callers that
// already decided the call happens.
func (s *service) RecordOnly(ctx context.Context, accountID, action string, minInterval time.Duration) error {
	if accountID == "" || action == "" {
		return fmt.Errorf("account and action are required: %w", domain.ErrBadRequest)
	}
	return s.entries.Record(ctx, accountID, action, minInterval.Milliseconds(), s.now().UnixMilli())
}

// StatusOf projects the entry read-only. An absent entry reports an
// immediately callable status.
func (s *service) StatusOf(ctx context.Context, accountID, action string) (*domain.RateLimitStatus, error) {
	entry, err := s.entries.Get(ctx, accountID, action)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.RateLimitStatus{Name: action, CanMakeCall: true}, nil
		}
		return nil, err
	}
	status := entry.StatusOf(s.now())
	return &status, nil
}

func (s *service) OwnEntries(ctx context.Context, accountID string) ([]domain.RateLimitStatus, error) {
	if accountID == "" {
		return nil, fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	entries, err := s.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.project(entries), nil
}

// AllEntries lists every account's entries. Global admins only.
func (s *service) AllEntries(ctx context.Context, callerID string) ([]domain.RateLimitStatus, error) {
	if err := s.authorizeGlobal(ctx, callerID); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.project(entries), nil
}

// CleanupOlderThan deletes entries idle past the horizon. Global admins only.
func (s *service) CleanupOlderThan(ctx context.Context, callerID string, olderThan time.Duration) (int, error) {
	if err := s.authorizeGlobal(ctx, callerID); err != nil {
		return 0, err
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("cleanup horizon must be positive: %w", domain.ErrBadRequest)
	}
	cutoff := s.now().Add(-olderThan).UnixMilli()
	deleted, err := s.entries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return deleted, err
	}
	if s.audit != nil {
		_ = s.audit.Publish(ctx, sns.AuditEvent{
			Action:         "ratelimit.cleanup",
			ActorAccountID: callerID,
			At:             s.now().UTC(),
		})
	}
	return deleted, nil
}

func (s *service) authorizeGlobal(ctx context.Context, callerID string) error {
	if callerID == "" {
		return fmt.Errorf("missing caller identity: %w", domain.ErrUnauthenticated)
	}
	caller, err := s.accounts.Get(ctx, callerID)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	return authz.Authorize(authz.Resolve(caller), "", "", authz.LevelGlobal)
}

func (s *service) project(entries []domain.RateLimitEntry) []domain.RateLimitStatus {
	now := s.now()
	statuses := make([]domain.RateLimitStatus, 0, len(entries))
	for i := range entries {
		statuses = append(statuses, entries[i].StatusOf(now))
	}
	return statuses
}
