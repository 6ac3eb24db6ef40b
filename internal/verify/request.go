package verify

import (
	"context"
	"errors"
	"time"

	"github.com/sasha-s/go-deadlock"
)

var (
	// ErrNotEligible is returned by Claim before the request has been proven.
	ErrNotEligible = errors.New("request is not eligible")
	// ErrInvalidTransition is returned when an action does not apply to the
	// request's current state.
	ErrInvalidTransition = errors.New("invalid request transition")
)

// Reasons recorded on denied requests.
const (
	ReasonDenied       = "denied by user"
	ReasonExpired      = "request expired"
	ReasonNotHeld      = "credential not held"
	ReasonCancelled    = "verification cancelled"
	ReasonSessionEnded = "session ended"
)

// RequestState is the lifecycle of a verification request.
type RequestState int

const (
	RequestIdle RequestState = iota
	RequestRequesting
	RequestApproved
	RequestProofPending
	RequestEligible
	RequestDenied
	RequestClaimed
)

func (s RequestState) String() string {
	switch s {
	case RequestIdle:
		return "idle"
	case RequestRequesting:
		return "requesting"
	case RequestApproved:
		return "approved"
	case RequestProofPending:
		return "proof pending"
	case RequestEligible:
		return "eligible"
	case RequestDenied:
		return "denied"
	case RequestClaimed:
		return "claimed"
	}
	return "unknown"
}

// Settled reports whether the state waits on the user rather than on the
// request itself.
func (s RequestState) Settled() bool {
	switch s {
	case RequestIdle, RequestEligible, RequestDenied, RequestClaimed:
		return true
	}
	return false
}

// Status is a point-in-time view of a request.
type Status struct {
	Requester  string
	Credential string
	State      RequestState
	Reason     string
	ProofHash  string
	TxHash     string
	ExpiresAt  time.Time
}

// Request is a third-party ask to prove a held credential. Every transition
// happens under one lock so a deny racing expiry or a finishing proof
// settles exactly once.
type Request struct {
	mu        deadlock.Mutex
	sim       *Simulator
	requester string
	title     string

	state     RequestState
	reason    string
	proofHash string
	txHash    string
	expiresAt time.Time
	expiry    *time.Timer
	attempt   *Attempt
	changed   chan struct{}
}

// Status returns a snapshot.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Requester:  r.requester,
		Credential: r.title,
		State:      r.state,
		Reason:     r.reason,
		ProofHash:  r.proofHash,
		TxHash:     r.txHash,
		ExpiresAt:  r.expiresAt,
	}
}

// Attempt returns the proof run, or nil before approval.
func (r *Request) Attempt() *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Changed is closed on the next state transition.
func (r *Request) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Open moves an idle request to RequestRequesting and arms the expiry timer.
func (r *Request) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RequestIdle {
		return ErrInvalidTransition
	}

	r.reason, r.proofHash, r.txHash = "", "", ""
	r.attempt = nil
	r.expiresAt = time.Time{}
	if d := r.sim.promptTimeout; d > 0 {
		r.expiresAt = time.Now().Add(d)
		r.expiry = time.AfterFunc(d, r.expire)
	}
	r.setLocked(RequestRequesting)
	r.sim.log.Debug("verification requested", "requester", r.requester, "credential", r.title)
	return nil
}

// Approve accepts the request and starts proving the held credential. It
// returns once the proof is running; use Wait for the outcome.
func (r *Request) Approve(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RequestRequesting {
		return ErrInvalidTransition
	}
	r.stopExpiryLocked()
	r.setLocked(RequestApproved)

	held, ok := r.sim.ledger.FindByTitle(r.title)
	if !ok || !held.IsVerified {
		r.denyLocked(ReasonNotHeld)
		return nil
	}

	a := newAttempt(held.VerificationMethod, Plan(held.VerificationMethod), r.sim.provider, nil)
	r.attempt = a
	r.setLocked(RequestProofPending)
	a.start(ctx)

	go r.settle(a)
	return nil
}

// Deny rejects the request. A running proof is cancelled.
func (r *Request) Deny() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case RequestRequesting, RequestApproved, RequestProofPending:
	default:
		return ErrInvalidTransition
	}
	r.denyLocked(ReasonDenied)
	return nil
}

// Claim finishes an eligible request and records a transaction hash.
func (r *Request) Claim() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RequestEligible {
		return "", ErrNotEligible
	}
	r.txHash = r.sim.provider.TxHash()
	r.setLocked(RequestClaimed)
	r.sim.log.Info("request claimed", "requester", r.requester, "tx", r.txHash)
	return r.txHash, nil
}

// Reset returns a denied request to RequestIdle so it can be opened again.
func (r *Request) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RequestDenied {
		return ErrInvalidTransition
	}
	r.setLocked(RequestIdle)
	return nil
}

// Wait blocks until the request settles or ctx is done.
func (r *Request) Wait(ctx context.Context) (Status, error) {
	for {
		st := r.Status()
		if st.State.Settled() {
			return st, nil
		}
		ch := r.Changed()
		// re-check after taking the channel so a transition in between is not missed
		if st = r.Status(); st.State.Settled() {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return r.Status(), ctx.Err()
		}
	}
}

func (r *Request) settle(a *Attempt) {
	res, err := a.Wait(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempt != a || r.state != RequestProofPending {
		return
	}
	switch {
	case errors.Is(err, ErrCancelled):
		r.denyLocked(ReasonCancelled)
	case !res.Success:
		r.denyLocked(res.DenialReason)
	default:
		r.proofHash = res.ProofHash
		r.setLocked(RequestEligible)
		r.sim.log.Info("request eligible", "requester", r.requester, "credential", r.title)
	}
}

// end denies the request if it is still waiting on the user or a proof.
func (r *Request) end() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Settled() {
		return false
	}
	r.denyLocked(ReasonSessionEnded)
	return true
}

func (r *Request) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RequestRequesting {
		return
	}
	r.denyLocked(ReasonExpired)
}

func (r *Request) denyLocked(reason string) {
	r.stopExpiryLocked()
	if r.attempt != nil {
		r.attempt.Cancel()
	}
	r.reason = reason
	r.setLocked(RequestDenied)
	r.sim.log.Info("request denied", "requester", r.requester, "reason", reason)
}

func (r *Request) stopExpiryLocked() {
	if r.expiry != nil {
		r.expiry.Stop()
		r.expiry = nil
	}
}

func (r *Request) setLocked(s RequestState) {
	r.state = s
	close(r.changed)
	r.changed = make(chan struct{})
}
