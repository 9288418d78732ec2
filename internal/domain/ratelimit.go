package domain

import "time"

// RateLimitEntry records the last allowed call for one (account, action) key.
// PK: account_id, SK: name. Durable entries persist across restarts and are
// shared by all server instances; ephemeral admission entries are flushed here
// under a channel-prefixed name purely for observability.
type RateLimitEntry struct {
	AccountID  string `json:"account_id" dynamodbav:"account_id"`
	Name       string `json:"name" dynamodbav:"name"`
	LimitMs    int64  `json:"limit_ms" dynamodbav:"limit_ms"`
	LastCalled int64  `json:"last_called" dynamodbav:"last_called"` // Unix millis
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  int64  `json:"updated_at" dynamodbav:"updated_at"`
}

// RateLimitStatus is the read-only projection returned to callers for UI
// display. Computing it never mutates the entry.
type RateLimitStatus struct {
	Name                 string `json:"name"`
	LimitMs              int64  `json:"limit_ms"`
	LastCalled           int64  `json:"last_called"`
	TimeSinceLastCallMs  int64  `json:"time_since_last_call_ms"`
	TimeUntilNextAllowed int64  `json:"time_until_next_allowed_ms"`
	CanMakeCall          bool   `json:"can_make_call"`
}

// StatusOf projects an entry against the given instant.
func (e *RateLimitEntry) StatusOf(now time.Time) RateLimitStatus {
	elapsed := now.UnixMilli() - e.LastCalled
	wait := e.LimitMs - elapsed
	if wait < 0 {
		wait = 0
	}
	return RateLimitStatus{
		Name:                 e.Name,
		LimitMs:              e.LimitMs,
		LastCalled:           e.LastCalled,
		TimeSinceLastCallMs:  elapsed,
		TimeUntilNextAllowed: wait,
		CanMakeCall:          wait == 0,
	}
}
