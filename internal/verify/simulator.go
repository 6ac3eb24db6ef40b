package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/credential"
)

var (
	// ErrAlreadyClaimed is returned when a stamp's title is already held.
	ErrAlreadyClaimed = errors.New("stamp already claimed")
	// ErrSessionEnded is returned when a claim outlives the session that
	// started it.
	ErrSessionEnded = errors.New("session ended")
)

// DefaultPromptTimeout is how long a verification request waits for an answer.
const DefaultPromptTimeout = 15 * time.Second

// Ledger is where granted credentials are kept.
type Ledger interface {
	Add(c credential.Credential) (credential.Credential, error)
	IsClaimed(title string) bool
	FindByTitle(title string) (credential.Credential, bool)
}

// Anchor records a proof on chain. Only consulted while connected.
type Anchor interface {
	Connected() bool
	AnchorProof(proofHash string) (string, error)
}

// Simulator runs verifications against a Provider and commits granted
// credentials to a Ledger.
type Simulator struct {
	// commitMu serializes the claimed check with the append and guards gen.
	commitMu deadlock.Mutex
	// gen is bumped by Halt; a claim commits only within its generation.
	gen uint64

	liveMu   deadlock.Mutex
	attempts map[*Attempt]struct{}
	requests map[*Request]struct{}

	provider      Provider
	ledger        Ledger
	anchor        Anchor
	active        func() bool
	log           *slog.Logger
	promptTimeout time.Duration
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithAnchor enables the on-chain stage for zktls claims while the anchor
// reports a connection.
func WithAnchor(a Anchor) Option {
	return func(s *Simulator) { s.anchor = a }
}

// WithActive sets the check a claim makes before it starts, typically
// whether a user is signed in.
func WithActive(fn func() bool) Option {
	return func(s *Simulator) { s.active = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithPromptTimeout sets how long requests wait before expiring. 0 disables
// expiry.
func WithPromptTimeout(d time.Duration) Option {
	return func(s *Simulator) { s.promptTimeout = d }
}

// NewSimulator creates a simulator.
func NewSimulator(p Provider, l Ledger, opts ...Option) *Simulator {
	s := &Simulator{
		provider:      p,
		ledger:        l,
		attempts:      make(map[*Attempt]struct{}),
		requests:      make(map[*Request]struct{}),
		log:           slog.Default(),
		promptTimeout: DefaultPromptTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Verify runs method's stages without storing anything.
func (s *Simulator) Verify(ctx context.Context, method credential.Method) *Attempt {
	a := newAttempt(method, Plan(method), s.provider, nil)
	s.track(a)
	a.start(ctx)
	return a
}

// Claim verifies stamp and, on success, adds its credential to the ledger.
func (s *Simulator) Claim(ctx context.Context, stamp catalog.Stamp) (*Attempt, error) {
	// the generation is read before the active check so a Halt that races
	// this call is either seen here or invalidates the commit
	gen := s.generation()
	if s.active != nil && !s.active() {
		return nil, ErrSessionEnded
	}
	if s.ledger.IsClaimed(stamp.Title) {
		return nil, ErrAlreadyClaimed
	}

	steps := Plan(stamp.VerificationMethod)
	onChain := stamp.VerificationMethod == credential.MethodZKTLS &&
		s.anchor != nil && s.anchor.Connected()
	if onChain {
		steps = withOnChain(steps)
	}

	log := s.log.With("stamp", stamp.ID, "method", string(stamp.VerificationMethod))
	log.Debug("claim started", "steps", len(steps))

	commit := func(res Result) (*credential.Credential, error) {
		s.commitMu.Lock()
		defer s.commitMu.Unlock()

		if s.gen != gen {
			log.Info("claim dropped, session ended")
			return nil, ErrSessionEnded
		}
		if s.ledger.IsClaimed(stamp.Title) {
			return nil, ErrAlreadyClaimed
		}

		c := stamp.Credential()
		for k, v := range res.Data {
			c.Metadata[k] = v
		}
		c.Metadata["verified_at"] = res.Timestamp.Format(time.RFC3339)
		c.Metadata["proof_hash"] = res.ProofHash

		if onChain {
			tx, err := s.anchor.AnchorProof(res.ProofHash)
			if err != nil {
				log.Warn("on-chain anchor failed", "err", err)
				c.Metadata["on_chain_verified"] = "false"
			} else {
				c.Metadata["on_chain_verified"] = "true"
				c.Metadata["anchor_tx"] = tx
			}
		}

		stored, err := s.ledger.Add(c)
		if err != nil {
			log.Warn("credential not persisted", "err", err)
		}
		log.Info("credential granted", "id", stored.ID, "points", stored.Points)
		return &stored, err
	}

	a := newAttempt(stamp.VerificationMethod, steps, s.provider, commit)
	s.track(a)
	a.start(ctx)
	return a, nil
}

// Request opens a verification request from requester for the credential
// titled title. The request starts in RequestRequesting and expires after
// the prompt timeout.
func (s *Simulator) Request(requester, title string) *Request {
	r := &Request{
		sim:       s,
		requester: requester,
		title:     title,
		changed:   make(chan struct{}),
	}
	s.liveMu.Lock()
	s.requests[r] = struct{}{}
	s.liveMu.Unlock()

	_ = r.Open()
	return r
}

// Halt ends the current generation: every running attempt is cancelled,
// every open request is denied, and claims started before the call can no
// longer commit. It returns how many attempts and requests it stopped.
func (s *Simulator) Halt() int {
	s.commitMu.Lock()
	s.gen++
	s.commitMu.Unlock()

	s.liveMu.Lock()
	attempts, requests := s.attempts, s.requests
	s.attempts = make(map[*Attempt]struct{})
	s.requests = make(map[*Request]struct{})
	s.liveMu.Unlock()

	stopped := 0
	for a := range attempts {
		if a.Cancel() {
			stopped++
		}
	}
	for r := range requests {
		if r.end() {
			stopped++
		}
	}
	if stopped > 0 {
		s.log.Info("verifications halted", "stopped", stopped)
	}
	return stopped
}

func (s *Simulator) generation() uint64 {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.gen
}

// track keeps a until it ends so Halt can cancel it.
func (s *Simulator) track(a *Attempt) {
	s.liveMu.Lock()
	s.attempts[a] = struct{}{}
	s.liveMu.Unlock()

	go func() {
		<-a.Done()
		s.liveMu.Lock()
		delete(s.attempts, a)
		s.liveMu.Unlock()
	}()
}
