package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/carpschool/access-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMirrorStore struct {
	mockStore
}

func (m *mockMirrorStore) ListSince(ctx context.Context, sinceMs int64) ([]domain.RateLimitEntry, error) {
	args := m.Called(ctx, sinceMs)
	if l, _ := args.Get(0).([]domain.RateLimitEntry); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEphemeral(c *clock, store Store) *Ephemeral {
	return NewEphemeral(EphemeralDeps{
		Store:         store,
		SweepInterval: 5 * time.Minute,
		FlushInterval: time.Minute,
		Retention:     time.Hour,
		Now:           c.now,
	})
}

func TestAllow_FirstCallAdmitted(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	assert.True(t, e.Allow("acct", "messages", 5*time.Second))
}

func TestAllow_WithinInterval_Denied(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	require.True(t, e.Allow("acct", "messages", 5*time.Second))
	c.advance(2 * time.Second)
	assert.False(t, e.Allow("acct", "messages", 5*time.Second))
}

func TestAllow_AfterInterval_Admitted(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	require.True(t, e.Allow("acct", "messages", 5*time.Second))
	c.advance(5 * time.Second)
	assert.True(t, e.Allow("acct", "messages", 5*time.Second))
}

func TestAllow_DenialDoesNotResetWindow(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	require.True(t, e.Allow("acct", "messages", 5*time.Second))
	c.advance(4 * time.Second)
	require.False(t, e.Allow("acct", "messages", 5*time.Second))
	c.advance(time.Second)
	// 5s after the admitted call, not 5s after the denial.
	assert.True(t, e.Allow("acct", "messages", 5*time.Second))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	require.True(t, e.Allow("acct", "messages", 5*time.Second))
	assert.True(t, e.Allow("acct", "status", 5*time.Second))
	assert.True(t, e.Allow("other", "messages", 5*time.Second))
}

func TestSweepIdle_EvictsPastRetention(t *testing.T) {
	c := &clock{t: testInstant}
	e := newEphemeral(c, nil)

	e.Allow("stale", "messages", 5*time.Second)
	c.advance(30 * time.Minute)
	e.Allow("fresh", "messages", 5*time.Second)
	c.advance(31 * time.Minute)

	e.sweepIdle()

	assert.Equal(t, 1, e.Len())
	// The surviving fresh entry still rate limits.
	assert.True(t, e.Allow("stale", "messages", time.Hour))
}

func TestFlush_MirrorsUnderChannelPrefix(t *testing.T) {
	c := &clock{t: testInstant}
	store := &mockMirrorStore{}
	e := newEphemeral(c, store)

	require.True(t, e.Allow("acct", "messages", 5*time.Second))
	store.On("Record", mock.Anything, "acct", "channel:messages", int64(5000), testInstant.UnixMilli()).
		Return(nil)

	e.flush(context.Background())

	store.AssertExpectations(t)
}

func TestWarm_SeedsFromMirroredEntries(t *testing.T) {
	c := &clock{t: testInstant}
	store := &mockMirrorStore{}
	e := newEphemeral(c, store)

	store.On("ListSince", mock.Anything, testInstant.Add(-time.Hour).UnixMilli()).
		Return([]domain.RateLimitEntry{
			{AccountID: "acct", Name: "channel:messages", LimitMs: 5000, LastCalled: testInstant.Add(-2 * time.Second).UnixMilli()},
			{AccountID: "acct", Name: "sendMessage", LimitMs: 5000, LastCalled: testInstant.UnixMilli()},
		}, nil)

	e.warm(context.Background())

	// Only the channel-prefixed mirror seeds admission state.
	assert.Equal(t, 1, e.Len())
	assert.False(t, e.Allow("acct", "messages", 5*time.Second))
	c.advance(3 * time.Second)
	assert.True(t, e.Allow("acct", "messages", 5*time.Second))
}

func TestStartStop_Terminates(t *testing.T) {
	e := NewEphemeral(EphemeralDeps{
		SweepInterval: time.Millisecond,
		FlushInterval: time.Millisecond,
		Retention:     time.Hour,
	})
	e.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	e.Stop()
	// Second Stop must not panic.
	e.Stop()
}
