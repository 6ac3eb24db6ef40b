package reputation

import (
	"log/slog"
	"slices"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/credential"
	"github.com/zarlcorp/mocaport/internal/storage"
)

// Cache is the persisted display cache. It is never authoritative.
type Cache struct {
	Score       int       `json:"score"`
	LastUpdated time.Time `json:"last_updated"`
}

// Persister is the storage the tracker caches into.
type Persister interface {
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
}

// Source is a credential collection the tracker follows.
type Source interface {
	All() []credential.Credential
	Subscribe(fn func([]credential.Credential)) func()
}

// Tracker recomputes the snapshot whenever the collection changes.
type Tracker struct {
	mu        deadlock.RWMutex
	persist   Persister
	max       int
	log       *slog.Logger
	now       func() time.Time
	snap      Snapshot
	listeners []func(Snapshot)
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker normalising scores against max.
func NewTracker(p Persister, max int, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		persist: p,
		max:     max,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	t.snap = Compute(nil, max, time.Time{})
	return t
}

// Attach computes the initial snapshot from src and follows its changes.
// A persisted cache is reused only when its score matches the fresh
// total. The returned func detaches.
func (t *Tracker) Attach(src Source) func() {
	creds := src.All()
	snap := Compute(creds, t.max, t.now().UTC())

	var cache Cache
	found, err := t.persist.Load(storage.KeyReputation, &cache)
	switch {
	case err != nil:
		t.log.Warn("load reputation cache", "err", err)
		t.save(snap)
	case found && cache.Score == snap.Score:
		snap.UpdatedAt = cache.LastUpdated
	case found:
		t.log.Debug("discarding stale reputation cache", "cached", cache.Score, "fresh", snap.Score)
		t.save(snap)
	default:
		t.save(snap)
	}

	t.set(snap)
	return src.Subscribe(t.Update)
}

// Update recomputes from creds and persists the cache.
func (t *Tracker) Update(creds []credential.Credential) {
	snap := Compute(creds, t.max, t.now().UTC())
	t.save(snap)
	t.set(snap)
}

// Reset drops back to an empty snapshot without writing.
func (t *Tracker) Reset() {
	t.set(Compute(nil, t.max, time.Time{}))
}

// Snapshot returns the latest snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// OnChange registers fn to receive every new snapshot.
func (t *Tracker) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) set(snap Snapshot) {
	t.mu.Lock()
	t.snap = snap
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (t *Tracker) save(snap Snapshot) {
	c := Cache{Score: snap.Score, LastUpdated: snap.UpdatedAt}
	if err := t.persist.Save(storage.KeyReputation, c); err != nil {
		t.log.Warn("persist reputation cache", "err", err)
	}
}
