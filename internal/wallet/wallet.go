// Package wallet is an in-process stand-in for the Moca AIR wallet kit. It
// fabricates addresses, signatures and transaction hashes and never talks
// to a chain.
package wallet

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/core/pkg/zcrypto"
)

var (
	// ErrNotConnected is returned by operations that need a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrRejected is returned when an on-chain check does not confirm a proof.
	ErrRejected = errors.New("on-chain verification rejected")
)

// Nominal delays before scaling.
const (
	SignDelay    = 1 * time.Second
	TxDelay      = 2 * time.Second
	MintDelay    = 2500 * time.Millisecond
	OnChainDelay = 2 * time.Second
)

const (
	maxTokenID    = 1_000_000
	mocaIDLetters = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Account is a connected wallet.
type Account struct {
	Address     string    `json:"address"`
	MocaID      string    `json:"moca_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Mint is the receipt of a reputation token mint.
type Mint struct {
	TokenID   int    `json:"token_id"`
	Score     int    `json:"score"`
	TxHash    string `json:"tx_hash"`
	Signature string `json:"signature,omitempty"`
}

// Wallet is a mock wallet. The zero value is not usable; call New.
type Wallet struct {
	mu          deadlock.RWMutex
	account     *Account
	balance     float64
	onChainRate float64
	scale       float64
	log         *slog.Logger
	now         func() time.Time
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithBalance sets the reported balance in ETH.
func WithBalance(eth float64) Option {
	return func(w *Wallet) { w.balance = eth }
}

// WithOnChainRate sets the probability that an on-chain check confirms.
func WithOnChainRate(rate float64) Option {
	return func(w *Wallet) { w.onChainRate = rate }
}

// WithTimeScale multiplies every delay. 0 skips waiting.
func WithTimeScale(scale float64) Option {
	return func(w *Wallet) { w.scale = scale }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wallet) { w.log = l }
}

// New creates a disconnected wallet.
func New(opts ...Option) *Wallet {
	w := &Wallet{
		balance:     2.5,
		onChainRate: 0.9,
		scale:       1,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Connect returns the connected account, creating one if needed.
func (w *Wallet) Connect(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.account != nil {
		return *w.account, nil
	}
	w.account = &Account{
		Address:     "0x" + randHex(20),
		MocaID:      "moca_" + randBase36(8),
		ConnectedAt: w.now().UTC(),
	}
	w.log.Info("wallet connected", "address", w.account.Address)
	return *w.account, nil
}

// Disconnect forgets the account. Disconnecting twice is a no-op.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.account != nil {
		w.log.Info("wallet disconnected", "address", w.account.Address)
	}
	w.account = nil
}

// Connected reports whether an account is connected.
func (w *Wallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.account != nil
}

// Account returns the connected account.
func (w *Wallet) Account() (Account, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.account == nil {
		return Account{}, false
	}
	return *w.account, true
}

// Sign returns a fabricated signature over msg.
func (w *Wallet) Sign(ctx context.Context, msg string) (string, error) {
	if err := w.pause(ctx, SignDelay); err != nil {
		return "", err
	}
	w.log.Debug("message signed", "len", len(msg))
	return "0x" + randHex(64), nil
}

// SendTransaction returns a fabricated transaction hash.
func (w *Wallet) SendTransaction(ctx context.Context) (string, error) {
	if err := w.pause(ctx, TxDelay); err != nil {
		return "", err
	}
	return "0x" + randHex(32), nil
}

// Balance returns the balance in ETH with four decimals.
func (w *Wallet) Balance(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.account == nil {
		return "", ErrNotConnected
	}
	return fmt.Sprintf("%.4f", w.balance), nil
}

// MintReputation mints a token recording score.
func (w *Wallet) MintReputation(ctx context.Context, score int) (Mint, error) {
	if score < 0 {
		return Mint{}, fmt.Errorf("mint reputation: negative score %d", score)
	}
	if err := w.pause(ctx, MintDelay); err != nil {
		return Mint{}, err
	}

	m := Mint{
		TokenID: int(randUint32() % maxTokenID),
		Score:   score,
		TxHash:  "0x" + randHex(32),
	}
	w.log.Info("reputation minted", "token", m.TokenID, "score", score)
	return m, nil
}

// VerifyOnChain checks a credential's proof against the registry contract.
// A false result is not an error.
func (w *Wallet) VerifyOnChain(ctx context.Context, credentialID, proofHash string) (bool, error) {
	if err := w.pause(ctx, OnChainDelay); err != nil {
		return false, err
	}
	ok := w.draw()
	w.log.Debug("on-chain verification", "credential", credentialID, "proof", proofHash, "ok", ok)
	return ok, nil
}

// AnchorProof records proofHash without waiting and returns the
// transaction hash. It returns ErrRejected when the check does not confirm.
func (w *Wallet) AnchorProof(proofHash string) (string, error) {
	if !w.Connected() {
		return "", ErrNotConnected
	}
	if proofHash == "" {
		return "", fmt.Errorf("anchor proof: empty hash")
	}
	if !w.draw() {
		return "", ErrRejected
	}
	return "0x" + randHex(32), nil
}

// pause requires a connection then waits d scaled, or until ctx is done.
func (w *Wallet) pause(ctx context.Context, d time.Duration) error {
	if !w.Connected() {
		return ErrNotConnected
	}

	w.mu.RLock()
	d = time.Duration(float64(d) * w.scale)
	w.mu.RUnlock()

	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Wallet) draw() bool {
	w.mu.RLock()
	rate := w.onChainRate
	w.mu.RUnlock()
	return float64(randUint32())/float64(1<<32) < rate
}

func randBytes(n int) []byte {
	b, err := zcrypto.RandBytes(n)
	if err != nil {
		// crypto/rand failure is unrecoverable
		panic("crypto/rand: " + err.Error())
	}
	return b
}

func randHex(n int) string {
	return hex.EncodeToString(randBytes(n))
}

func randUint32() uint32 {
	return binary.BigEndian.Uint32(randBytes(4))
}

// randBase36 rejects bytes past the last full multiple of the alphabet so
// the modulo does not favour the leading letters.
func randBase36(n int) string {
	limit := 256 - 256%len(mocaIDLetters)
	var sb strings.Builder
	for sb.Len() < n {
		for _, b := range randBytes(n - sb.Len()) {
			if int(b) < limit {
				sb.WriteByte(mocaIDLetters[int(b)%len(mocaIDLetters)])
			}
		}
	}
	return sb.String()
}
