// Package session holds the signed-in identity and tears the session down
// on logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/storage"
)

var (
	// ErrNoIdentity is returned by operations that need a signed-in user.
	ErrNoIdentity = errors.New("no active identity")
	// ErrEmptyProvider is returned when login is given a blank provider.
	ErrEmptyProvider = errors.New("provider must not be empty")
)

// Store is the persistence the holder needs.
type Store interface {
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
	Delete(key string) error
}

// Holder owns the current identity. At most one identity is active.
type Holder struct {
	mu      deadlock.RWMutex
	store   Store
	gen     *identity.Generator
	delay   time.Duration
	log     *slog.Logger
	current *identity.Identity
	// halts run before the stored namespaces are cleared, hooks after
	halts []Step
	hooks []Step
}

// Option configures a Holder.
type Option func(*Holder)

// WithLoginDelay sets the simulated sign-in latency.
func WithLoginDelay(d time.Duration) Option {
	return func(h *Holder) { h.delay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Holder) { h.log = l }
}

// WithGenerator replaces the identity generator.
func WithGenerator(g *identity.Generator) Option {
	return func(h *Holder) { h.gen = g }
}

// NewHolder creates a holder with no active identity.
func NewHolder(store Store, opts ...Option) *Holder {
	h := &Holder{
		store: store,
		gen:   identity.New(),
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Login signs in with provider, replacing any active identity. It fails
// only when ctx ends during the simulated latency or the identity cannot
// be persisted.
func (h *Holder) Login(ctx context.Context, provider string) (identity.Identity, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return identity.Identity{}, ErrEmptyProvider
	}

	if err := sleep(ctx, h.delay); err != nil {
		return identity.Identity{}, fmt.Errorf("login: %w", err)
	}

	id := h.gen.Generate(provider)
	if err := h.store.Save(storage.KeyIdentity, id); err != nil {
		return identity.Identity{}, fmt.Errorf("login: %w", err)
	}

	h.mu.Lock()
	h.current = &id
	h.mu.Unlock()

	h.log.Info("signed in", "provider", provider, "moca_id", id.MocaID)
	return id, nil
}

// Current returns the active identity.
func (h *Holder) Current() (identity.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current == nil {
		return identity.Identity{}, false
	}
	return *h.current, true
}

// Update merges p into the active identity and persists it. With no active
// identity nothing changes and ErrNoIdentity is returned.
func (h *Holder) Update(p identity.Patch) (identity.Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		return identity.Identity{}, ErrNoIdentity
	}

	id := h.current.Apply(p)
	h.current = &id

	if err := h.store.Save(storage.KeyIdentity, id); err != nil {
		h.log.Warn("persist identity", "err", err)
		return id, fmt.Errorf("update identity: %w", err)
	}
	return id, nil
}

// Restore reads a persisted identity. Unreadable or invalid records are
// logged and treated as no session.
func (h *Holder) Restore(_ context.Context) (identity.Identity, bool) {
	var id identity.Identity
	found, err := h.store.Load(storage.KeyIdentity, &id)
	if err != nil {
		h.log.Warn("restore session", "err", err)
		return identity.Identity{}, false
	}
	if !found {
		return identity.Identity{}, false
	}
	if !id.Valid() {
		h.log.Warn("restore session: discarding invalid identity record")
		return identity.Identity{}, false
	}

	h.mu.Lock()
	h.current = &id
	h.mu.Unlock()

	h.log.Debug("session restored", "moca_id", id.MocaID)
	return id, true
}

// BeforeClear registers a logout step that runs once the identity is
// dropped but before the persisted namespaces are cleared. Work that could
// still write to the store is stopped here.
func (h *Holder) BeforeClear(description string, run func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halts = append(h.halts, Step{Description: description, Run: run})
}

// OnLogout registers a step run after the persisted namespaces are cleared.
func (h *Holder) OnLogout(description string, run func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, Step{Description: description, Run: run})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
