package verify

import (
	"encoding/hex"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/credential"
)

// ProofHashLen is the number of hex digits after the 0x prefix of every
// fabricated hash.
const ProofHashLen = 64

// NFTContract is the collection address reported by ownership checks.
const NFTContract = "0x1234567890123456789012345678901234567890"

// Default success probabilities per method.
var DefaultRates = map[credential.Method]float64{
	credential.MethodZKTLS:         0.90,
	credential.MethodSmartContract: 0.70,
	credential.MethodAPI:           0.95,
	credential.MethodPlatform:      0.95,
}

// Result is the outcome of a verification run. A failed run is a denial
// carrying a reason, not an error.
type Result struct {
	Success      bool
	Method       credential.Method
	ProofHash    string
	Data         map[string]string
	DenialReason string
	Timestamp    time.Time

	// Credential is the credential appended by a successful claim.
	Credential *credential.Credential
}

// Provider decides how long each stage takes and how a run ends.
type Provider interface {
	StepDelay(method credential.Method, step Step) time.Duration
	Resolve(method credential.Method) Result
	TxHash() string
}

// Rated is implemented by providers that publish their success rates.
type Rated interface {
	Rate(method credential.Method) float64
}

// RandomProvider draws outcomes from a seeded PCG source, so a fixed seed
// reproduces the same sequence of results.
//
// Artifacts: ProofHash is "0x" followed by 64 lowercase hex digits from the
// source. Numeric fields are uniform draws from the documented ranges:
// zktls commits [100,599], repositories [5,24], account_age_days
// [365,1364]; smart-contract nft_count [1,5]; api proposals_voted [3,12],
// daos_participated [1,5], last_vote within 30 days; platform
// member_days [30,729].
type RandomProvider struct {
	mu    deadlock.Mutex
	rng   *rand.Rand
	rates map[credential.Method]float64
	scale float64
	now   func() time.Time
}

// ProviderOption configures a RandomProvider.
type ProviderOption func(*RandomProvider)

// WithRates overrides success probabilities per method.
func WithRates(rates map[credential.Method]float64) ProviderOption {
	return func(p *RandomProvider) {
		for m, r := range rates {
			p.rates[m] = r
		}
	}
}

// WithTimeScale multiplies every nominal delay. 0 skips waiting.
func WithTimeScale(scale float64) ProviderOption {
	return func(p *RandomProvider) { p.scale = scale }
}

// WithProviderClock replaces time.Now for result timestamps.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *RandomProvider) { p.now = now }
}

// NewRandomProvider creates a provider seeded with seed. Seed 0 picks a
// random seed.
func NewRandomProvider(seed uint64, opts ...ProviderOption) *RandomProvider {
	if seed == 0 {
		seed = rand.Uint64()
	}
	p := &RandomProvider{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		rates: make(map[credential.Method]float64, len(DefaultRates)),
		scale: 1,
		now:   time.Now,
	}
	for m, r := range DefaultRates {
		p.rates[m] = r
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Rate returns the success probability for method.
func (p *RandomProvider) Rate(method credential.Method) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateLocked(method)
}

func (p *RandomProvider) rateLocked(method credential.Method) float64 {
	if r, ok := p.rates[method]; ok {
		return r
	}
	return p.rates[credential.MethodAPI]
}

func (p *RandomProvider) StepDelay(_ credential.Method, step Step) time.Duration {
	return time.Duration(float64(step.Nominal) * p.scale)
}

func (p *RandomProvider) Resolve(method credential.Method) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{
		Method:    method,
		Timestamp: p.now().UTC(),
	}

	if p.rng.Float64() >= p.rateLocked(method) {
		res.DenialReason = denialReason(method)
		return res
	}

	res.Success = true
	res.ProofHash = p.hashLocked()
	res.Data = p.artifactsLocked(method)
	return res
}

func (p *RandomProvider) TxHash() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hashLocked()
}

func (p *RandomProvider) hashLocked() string {
	b := make([]byte, ProofHashLen/2)
	for i := range b {
		b[i] = byte(p.rng.UintN(256))
	}
	return "0x" + hex.EncodeToString(b)
}

// between returns a uniform int in [lo, hi].
func (p *RandomProvider) between(lo, hi int) int {
	return lo + p.rng.IntN(hi-lo+1)
}

func (p *RandomProvider) artifactsLocked(method credential.Method) map[string]string {
	itoa := strconv.Itoa
	switch method {
	case credential.MethodZKTLS:
		return map[string]string{
			"commits":          itoa(p.between(100, 599)),
			"repositories":     itoa(p.between(5, 24)),
			"account_age_days": itoa(p.between(365, 1364)),
		}
	case credential.MethodSmartContract:
		return map[string]string{
			"nft_count":        itoa(p.between(1, 5)),
			"contract_address": NFTContract,
		}
	case credential.MethodPlatform:
		return map[string]string{
			"member_days": itoa(p.between(30, 729)),
		}
	default:
		back := time.Duration(p.rng.Int64N(int64(30 * 24 * time.Hour)))
		return map[string]string{
			"proposals_voted":   itoa(p.between(3, 12)),
			"daos_participated": itoa(p.between(1, 5)),
			"last_vote":         p.now().UTC().Add(-back).Format(time.RFC3339),
		}
	}
}

func denialReason(method credential.Method) string {
	switch method {
	case credential.MethodZKTLS:
		return "proof verification failed"
	case credential.MethodSmartContract:
		return "no qualifying tokens found for this wallet"
	case credential.MethodPlatform:
		return "membership could not be confirmed"
	default:
		return "service could not confirm the requirements"
	}
}

// FixedProvider always returns the same outcome after a fixed delay per
// stage. Useful for deterministic runs.
type FixedProvider struct {
	Success bool
	Delay   time.Duration
	Reason  string
}

func (f FixedProvider) StepDelay(credential.Method, Step) time.Duration {
	return f.Delay
}

func (f FixedProvider) Resolve(method credential.Method) Result {
	res := Result{Method: method, Success: f.Success, Timestamp: time.Now().UTC()}
	if !f.Success {
		res.DenialReason = f.Reason
		if res.DenialReason == "" {
			res.DenialReason = denialReason(method)
		}
		return res
	}
	res.ProofHash = "0x" + hex.EncodeToString(make([]byte, ProofHashLen/2))
	res.Data = map[string]string{}
	return res
}

// Rate is 1 for a succeeding provider and 0 otherwise.
func (f FixedProvider) Rate(credential.Method) float64 {
	if f.Success {
		return 1
	}
	return 0
}

func (f FixedProvider) TxHash() string {
	return "0x" + hex.EncodeToString(make([]byte, ProofHashLen/2))
}
