package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/carpschool/access-api/internal/domain"
)

// channelPrefix marks durable entries that mirror ephemeral admission state.
// Mirrored entries are observability only, never authoritative.
const channelPrefix = "channel:"

type admissionEntry struct {
	lastCalled time.Time
	interval   time.Duration
}

// Ephemeral is the process-local admission limiter for read channels. State
// lives in one mutex-guarded map; a sweeper evicts idle entries; a flusher
// mirrors them into the durable store so history survives a restart.
type Ephemeral struct {
	mu      sync.Mutex
	entries map[string]admissionEntry

	store         Store
	sweepInterval time.Duration
	flushInterval time.Duration
	retention     time.Duration
	now           func() time.Time
	stop          chan struct{}
	stopOnce      sync.Once
}

type EphemeralDeps struct {
	// Store mirrors admission state durably. Nil disables flush and warm-up.
	Store         Store
	SweepInterval time.Duration
	FlushInterval time.Duration
	Retention     time.Duration
	Now           func() time.Time // defaults to time.Now
}

func NewEphemeral(deps EphemeralDeps) *Ephemeral {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Ephemeral{
		entries:       make(map[string]admissionEntry),
		store:         deps.Store,
		sweepInterval: deps.SweepInterval,
		flushInterval: deps.FlushInterval,
		retention:     deps.Retention,
		now:           now,
		stop:          make(chan struct{}),
	}
}

// Allow admits the call iff at least minInterval elapsed since the last
// admitted call for (subject, action), stamping on admission.
func (e *Ephemeral) Allow(subject, action string, minInterval time.Duration) bool {
	key := subject + "\x00" + action
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.entries[key]; ok && now.Sub(entry.lastCalled) < minInterval {
		return false
	}
	e.entries[key] = admissionEntry{lastCalled: now, interval: minInterval}
	return true
}

// Len reports the live entry count.
func (e *Ephemeral) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Start warms the map from the durable mirror, then runs the sweep and flush
// loops until Stop.
func (e *Ephemeral) Start(ctx context.Context) {
	e.warm(ctx)
	go e.loop(ctx)
}

func (e *Ephemeral) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Ephemeral) loop(ctx context.Context) {
	sweep := time.NewTicker(e.sweepInterval)
	flush := time.NewTicker(e.flushInterval)
	defer sweep.Stop()
	defer flush.Stop()
	for {
		select {
		case <-sweep.C:
			e.sweepIdle()
		case <-flush.C:
			e.flush(ctx)
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepIdle evicts entries idle past the retention horizon regardless of their
// per-key interval, so the map stays bounded by recent activity.
func (e *Ephemeral) sweepIdle() {
	horizon := e.now().Add(-e.retention)
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, entry := range e.entries {
		if entry.lastCalled.Before(horizon) {
			delete(e.entries, key)
		}
	}
}

// flush mirrors the live entries into the durable store under the channel
// prefix. Failures are logged and retried on the next tick.
func (e *Ephemeral) flush(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	snapshot := make(map[string]admissionEntry, len(e.entries))
	for k, v := range e.entries {
		snapshot[k] = v
	}
	e.mu.Unlock()

	for key, entry := range snapshot {
		subject, action, ok := splitKey(key)
		if !ok {
			continue
		}
		err := e.store.Record(ctx, subject, channelPrefix+action,
			entry.interval.Milliseconds(), entry.lastCalled.UnixMilli())
		if err != nil {
			slog.Warn("failed to flush admission entry", "subject", subject, "action", action, "err", err)
		}
	}
}

// warm seeds the map from mirrored entries younger than the retention horizon.
func (e *Ephemeral) warm(ctx context.Context) {
	if e.store == nil {
		return
	}
	since := e.now().Add(-e.retention).UnixMilli()
	entries, err := listSince(ctx, e.store, since)
	if err != nil {
		slog.Warn("failed to warm admission cache", "err", err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		action, ok := strings.CutPrefix(entry.Name, channelPrefix)
		if !ok {
			continue
		}
		key := entry.AccountID + "\x00" + action
		e.entries[key] = admissionEntry{
			lastCalled: time.UnixMilli(entry.LastCalled),
			interval:   time.Duration(entry.LimitMs) * time.Millisecond,
		}
	}
}

func splitKey(key string) (subject, action string, ok bool) {
	subject, action, ok = strings.Cut(key, "\x00")
	return subject, action, ok
}

// SinceLister is implemented by stores that can replay recent entries.
type SinceLister interface {
	ListSince(ctx context.Context, sinceMs int64) ([]domain.RateLimitEntry, error)
}

func listSince(ctx context.Context, store Store, sinceMs int64) ([]domain.RateLimitEntry, error) {
	lister, ok := store.(SinceLister)
	if !ok {
		return nil, nil
	}
	return lister.ListSince(ctx, sinceMs)
}
