// Package portal composes the session, credential store, reputation
// tracker, verification simulator and wallet into one object per user
// session. The CLI and the TUI both drive it.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/config"
	"github.com/zarlcorp/mocaport/internal/credential"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/reputation"
	"github.com/zarlcorp/mocaport/internal/session"
	"github.com/zarlcorp/mocaport/internal/storage"
	"github.com/zarlcorp/mocaport/internal/verify"
	"github.com/zarlcorp/mocaport/internal/wallet"
)

var (
	// ErrUnknownStamp is returned when a stamp id is not in the catalog.
	ErrUnknownStamp = errors.New("unknown stamp")
	// ErrNoProof is returned when a credential carries no proof to anchor.
	ErrNoProof = errors.New("credential has no proof")
)

// Anchored is the outcome of checking a held credential on chain.
type Anchored struct {
	Verified bool   `json:"verified"`
	TxHash   string `json:"tx_hash,omitempty"`
}

// Portal is one user's session over a store.
type Portal struct {
	mu       deadlock.Mutex
	store    *storage.Store
	log      *slog.Logger
	catalog  *catalog.Catalog
	maxScore int

	provider verify.Provider
	session  *session.Holder
	creds    *credential.Store
	tracker *reputation.Tracker
	sim     *verify.Simulator
	wallet  *wallet.Wallet

	// detach stops the tracker following creds; nil while signed out.
	detach func()
}

type options struct {
	log      *slog.Logger
	provider verify.Provider
	catalog  *catalog.Catalog
}

// Option configures a Portal.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProvider replaces the seeded random outcome provider.
func WithProvider(p verify.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithCatalog replaces the embedded stamp catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// Open wires a portal over store using cfg. Nothing is loaded until Login
// or Restore.
func Open(store *storage.Store, cfg config.Config, opts ...Option) *Portal {
	o := options{log: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.catalog == nil {
		o.catalog = catalog.Default()
	}

	vc := cfg.Verification
	if o.provider == nil {
		rates := make(map[credential.Method]float64, len(vc.SuccessRates))
		for m, r := range vc.SuccessRates {
			rates[credential.Method(m)] = r
		}
		o.provider = verify.NewRandomProvider(vc.Seed,
			verify.WithRates(rates),
			verify.WithTimeScale(vc.TimeScale),
		)
	}

	p := &Portal{
		store:    store,
		log:      o.log,
		catalog:  o.catalog,
		maxScore: cfg.Reputation.MaxScore,
		provider: o.provider,
	}

	p.session = session.NewHolder(store,
		session.WithLogger(o.log.With("component", "session")),
		session.WithLoginDelay(vc.Scale(cfg.Session.LoginDelay.Duration)),
	)
	p.creds = credential.NewStore(store, credential.WithLogger(o.log.With("component", "credentials")))
	p.tracker = reputation.NewTracker(store, cfg.Reputation.MaxScore,
		reputation.WithLogger(o.log.With("component", "reputation")))
	p.wallet = wallet.New(
		wallet.WithBalance(cfg.Wallet.Balance),
		wallet.WithOnChainRate(vc.OnChainRate),
		wallet.WithTimeScale(vc.TimeScale),
		wallet.WithLogger(o.log.With("component", "wallet")),
	)
	p.sim = verify.NewSimulator(o.provider, p.creds,
		verify.WithAnchor(p.wallet),
		verify.WithPromptTimeout(cfg.Verification.PromptTimeout.Duration),
		verify.WithActive(func() bool {
			_, ok := p.session.Current()
			return ok
		}),
		verify.WithLogger(o.log.With("component", "verify")),
	)

	// running claims could write credentials back after the clear
	p.session.BeforeClear("cancel verifications", func(context.Context) error {
		p.sim.Halt()
		return nil
	})

	// the tracker detaches before the credentials reset so the emptied
	// collection is not written back to the reputation cache
	p.session.OnLogout("reset reputation", func(context.Context) error {
		p.stopTracking()
		p.tracker.Reset()
		return nil
	})
	p.session.OnLogout("clear credentials", func(context.Context) error {
		p.creds.Reset()
		return nil
	})
	p.session.OnLogout("disconnect wallet", func(context.Context) error {
		p.wallet.Disconnect()
		return nil
	})

	return p
}

// Login signs in with provider and loads that user's state.
func (p *Portal) Login(ctx context.Context, provider string) (identity.Identity, error) {
	id, err := p.session.Login(ctx, provider)
	if err != nil {
		return identity.Identity{}, err
	}
	p.startTracking()
	return id, nil
}

// Restore resumes a persisted session, if there is one.
func (p *Portal) Restore(ctx context.Context) (identity.Identity, bool) {
	id, ok := p.session.Restore(ctx)
	if !ok {
		return identity.Identity{}, false
	}
	p.startTracking()
	return id, true
}

// LogoutPlan lists what Logout will do.
func (p *Portal) LogoutPlan() []string {
	return p.session.Plan()
}

// Logout ends the session and clears everything it stored.
func (p *Portal) Logout(ctx context.Context) session.LogoutResult {
	return p.session.Logout(ctx)
}

// Identity returns the signed-in identity.
func (p *Portal) Identity() (identity.Identity, bool) {
	return p.session.Current()
}

// UpdateIdentity merges patch into the signed-in identity.
func (p *Portal) UpdateIdentity(patch identity.Patch) (identity.Identity, error) {
	return p.session.Update(patch)
}

// DismissTour marks the first-run tour as seen.
func (p *Portal) DismissTour() error {
	seen := false
	_, err := p.session.Update(identity.Patch{IsFirstTime: &seen})
	return err
}

// Credentials returns the held credentials, optionally limited to cat.
// An empty cat returns all.
func (p *Portal) Credentials(cat credential.Category) []credential.Credential {
	if cat == "" {
		return p.creds.All()
	}
	return p.creds.ByCategory(cat)
}

// Forget removes a held credential.
func (p *Portal) Forget(id string) error {
	if _, ok := p.session.Current(); !ok {
		return session.ErrNoIdentity
	}
	if _, ok := p.creds.Get(id); !ok {
		return fmt.Errorf("forget %s: %w", id, storage.ErrNotFound)
	}
	return p.creds.Remove(id)
}

// Reputation returns the current reputation snapshot.
func (p *Portal) Reputation() reputation.Snapshot {
	return p.tracker.Snapshot()
}

// OnReputationChange registers fn to receive every new snapshot.
func (p *Portal) OnReputationChange(fn func(reputation.Snapshot)) {
	p.tracker.OnChange(fn)
}

// MaxScore returns the reputation ceiling.
func (p *Portal) MaxScore() int {
	return p.maxScore
}

// Catalog returns the stamp catalog.
func (p *Portal) Catalog() *catalog.Catalog {
	return p.catalog
}

// Available returns the stamps matching f that are not yet held.
func (p *Portal) Available(f catalog.Filter) []catalog.Stamp {
	return p.catalog.Available(f, p.creds.IsClaimed)
}

// Claim starts verifying the stamp with stampID.
func (p *Portal) Claim(ctx context.Context, stampID string) (*verify.Attempt, error) {
	if _, ok := p.session.Current(); !ok {
		return nil, session.ErrNoIdentity
	}
	stamp, ok := p.catalog.Find(stampID)
	if !ok {
		return nil, fmt.Errorf("claim %q: %w", stampID, ErrUnknownStamp)
	}
	return p.sim.Claim(ctx, stamp)
}

// Rehearse runs the stages of the stamp with stampID without claiming it.
func (p *Portal) Rehearse(ctx context.Context, stampID string) (*verify.Attempt, error) {
	stamp, ok := p.catalog.Find(stampID)
	if !ok {
		return nil, fmt.Errorf("rehearse %q: %w", stampID, ErrUnknownStamp)
	}
	return p.sim.Verify(ctx, stamp.VerificationMethod), nil
}

// SuccessRate returns the chance a verification by method succeeds, when
// the provider publishes its rates.
func (p *Portal) SuccessRate(method credential.Method) (float64, bool) {
	r, ok := p.provider.(verify.Rated)
	if !ok {
		return 0, false
	}
	return r.Rate(method), true
}

// Request opens a verification request from requester for title.
func (p *Portal) Request(requester, title string) (*verify.Request, error) {
	if _, ok := p.session.Current(); !ok {
		return nil, session.ErrNoIdentity
	}
	return p.sim.Request(requester, title), nil
}

// Wallet returns the session's wallet.
func (p *Portal) Wallet() *wallet.Wallet {
	return p.wallet
}

// MintReputation signs and mints the current score into a token.
func (p *Portal) MintReputation(ctx context.Context) (wallet.Mint, error) {
	id, ok := p.session.Current()
	if !ok {
		return wallet.Mint{}, session.ErrNoIdentity
	}
	score := p.tracker.Snapshot().Score

	sig, err := p.wallet.Sign(ctx, fmt.Sprintf("mint reputation %d for %s", score, id.MocaID))
	if err != nil {
		return wallet.Mint{}, fmt.Errorf("sign mint: %w", err)
	}
	m, err := p.wallet.MintReputation(ctx, score)
	if err != nil {
		return wallet.Mint{}, err
	}
	m.Signature = sig
	return m, nil
}

// AnchorCredential checks a held credential's proof on chain with the
// connected wallet and records the outcome in its metadata. A confirmed
// proof is written in a transaction.
func (p *Portal) AnchorCredential(ctx context.Context, id string) (Anchored, error) {
	if _, ok := p.session.Current(); !ok {
		return Anchored{}, session.ErrNoIdentity
	}
	c, ok := p.creds.Get(id)
	if !ok {
		return Anchored{}, fmt.Errorf("anchor %s: %w", id, storage.ErrNotFound)
	}
	proof := c.Metadata["proof_hash"]
	if proof == "" {
		return Anchored{}, fmt.Errorf("anchor %s: %w", id, ErrNoProof)
	}

	ok, err := p.wallet.VerifyOnChain(ctx, c.ID, proof)
	if err != nil {
		return Anchored{}, fmt.Errorf("anchor %s: %w", id, err)
	}
	out := Anchored{Verified: ok}
	md := map[string]string{"on_chain_verified": strconv.FormatBool(ok)}
	if ok {
		tx, err := p.wallet.SendTransaction(ctx)
		if err != nil {
			return Anchored{}, fmt.Errorf("anchor %s: %w", id, err)
		}
		out.TxHash = tx
		md["anchor_tx"] = tx
	}

	if err := p.creds.Update(id, credential.Patch{Metadata: md}); err != nil {
		return out, err
	}
	p.log.Info("credential checked on chain", "id", id, "verified", ok)
	return out, nil
}

// Close detaches the tracker and closes the store.
func (p *Portal) Close() error {
	p.stopTracking()
	return p.store.Close()
}

func (p *Portal) startTracking() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.detach != nil {
		p.detach()
	}
	p.creds.Load()
	p.detach = p.tracker.Attach(p.creds)
}

func (p *Portal) stopTracking() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.detach != nil {
		p.detach()
		p.detach = nil
	}
}
