package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/core/pkg/zcrypto"
	"github.com/zarlcorp/mocaport/internal/storage"
)

// ErrNegativePoints is returned when a credential would carry negative points.
var ErrNegativePoints = errors.New("credential points must not be negative")

const (
	idAlphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixSize = 9
)

// Persister is the storage the collection writes through to.
type Persister interface {
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
}

// Store is the ordered credential collection for the current session.
// Every mutation is written through to the Persister. A failed write is
// logged and returned but the in-memory change stands.
type Store struct {
	mu      deadlock.RWMutex
	persist Persister
	log     *slog.Logger
	now     func() time.Time
	creds   []Credential
	subs    map[int]func([]Credential)
	nextSub int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now for issuance dates and ids.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty collection backed by p.
func NewStore(p Persister, opts ...StoreOption) *Store {
	s := &Store{
		persist: p,
		log:     slog.Default(),
		now:     time.Now,
		subs:    make(map[int]func([]Credential)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the collection with the persisted one. Read failures are
// logged and leave the collection empty.
func (s *Store) Load() {
	var creds []Credential
	found, err := s.persist.Load(storage.KeyCredentials, &creds)
	if err != nil {
		s.log.Warn("load credentials", "err", err)
		creds = nil
	}
	if !found {
		creds = nil
	}

	s.mu.Lock()
	s.creds = creds
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Add appends c with a fresh id and issuance date and returns the stored copy.
func (s *Store) Add(c Credential) (Credential, error) {
	if c.Points < 0 {
		return Credential{}, ErrNegativePoints
	}

	s.mu.Lock()
	c = c.clone()
	c.ID = s.newIDLocked()
	c.IssuanceDate = s.now().UTC()
	s.creds = append(s.creds, c)
	err := s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	if err != nil {
		return c, fmt.Errorf("add credential: %w", err)
	}
	return c, nil
}

// Remove deletes the credential with id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.creds = append(s.creds[:i:i], s.creds[i+1:]...)
	err := s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Update merges p into the credential with id. An absent id is a no-op.
func (s *Store) Update(id string, p Patch) error {
	if p.Points != nil && *p.Points < 0 {
		return ErrNegativePoints
	}

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.creds[i] = s.creds[i].apply(p)
	err := s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return nil
}

// Reset empties the collection in memory without writing. Logout clears
// the persisted copy separately.
func (s *Store) Reset() {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	s.notify(nil)
}

// Get returns the credential with id.
func (s *Store) Get(id string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Credential{}, false
	}
	return s.creds[i].clone(), true
}

// All returns a copy of the collection in insertion order.
func (s *Store) All() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// ByCategory returns the credentials in cat, preserving insertion order.
func (s *Store) ByCategory(cat Category) []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Credential
	for _, c := range s.creds {
		if c.Category == cat {
			out = append(out, c.clone())
		}
	}
	return out
}

// TotalVerifiedPoints sums the points of verified credentials.
func (s *Store) TotalVerifiedPoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TotalVerifiedPoints(s.creds)
}

// IsClaimed reports whether a credential titled title is held, ignoring
// case and surrounding whitespace.
func (s *Store) IsClaimed(title string) bool {
	_, ok := s.FindByTitle(title)
	return ok
}

// FindByTitle returns the first credential whose title matches.
func (s *Store) FindByTitle(title string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.creds {
		if SameTitle(c.Title, title) {
			return c.clone(), true
		}
	}
	return Credential{}, false
}

// Subscribe registers fn to receive the collection after every change.
// fn runs on the mutating goroutine. The returned func unregisters it.
func (s *Store) Subscribe(fn func([]Credential)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// TotalVerifiedPoints sums the points of the verified entries in creds.
func TotalVerifiedPoints(creds []Credential) int {
	total := 0
	for _, c := range creds {
		if c.IsVerified {
			total += c.Points
		}
	}
	return total
}

func (s *Store) notify(snap []Credential) {
	s.mu.RLock()
	subs := make([]func([]Credential), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) saveLocked() error {
	if err := s.persist.Save(storage.KeyCredentials, s.creds); err != nil {
		s.log.Warn("persist credentials", "err", err)
		return err
	}
	return nil
}

func (s *Store) snapshotLocked() []Credential {
	if len(s.creds) == 0 {
		return nil
	}
	out := make([]Credential, len(s.creds))
	for i, c := range s.creds {
		out[i] = c.clone()
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i, c := range s.creds {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// newIDLocked returns cred_<unix-ms>_<9 base36 chars>, unique within the
// collection.
func (s *Store) newIDLocked() string {
	for {
		id := fmt.Sprintf("cred_%d_%s", s.now().UnixMilli(), randBase36(idSuffixSize))
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

// randBase36 draws n characters from idAlphabet. Bytes at or above the
// largest multiple of the alphabet size are rejected so every character is
// equally likely.
func randBase36(n int) string {
	limit := 256 - 256%len(idAlphabet)
	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := zcrypto.RandBytes(n - len(out))
		if err != nil {
			// crypto/rand failure is unrecoverable
			panic("crypto/rand: " + err.Error())
		}
		for _, c := range b {
			if int(c) < limit {
				out = append(out, idAlphabet[int(c)%len(idAlphabet)])
			}
		}
	}
	return string(out)
}
