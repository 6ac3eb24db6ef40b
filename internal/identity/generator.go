package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/zarlcorp/core/pkg/zcrypto"
)

const (
	mocaIDSpace = 10000
	avatarBase  = "https://api.dicebear.com/7.x/avataaars/svg?seed="
)

// Generator produces new identities using crypto/rand.
type Generator struct {
	now func() time.Time
}

// New creates a generator.
func New() *Generator {
	return &Generator{now: time.Now}
}

// Generate produces a fresh identity for a provider sign-in.
func (g *Generator) Generate(provider string) Identity {
	return Identity{
		ID:          "user_" + uuid.NewString(),
		Name:        displayName(provider),
		Email:       contactEmail(provider),
		MocaID:      g.MocaID(),
		Provider:    provider,
		Avatar:      avatarBase + g.hexID(),
		CreatedAt:   g.now().UTC(),
		IsFirstTime: true,
	}
}

// MocaID returns a network identifier of the form user<0-9999>.moca.
func (g *Generator) MocaID() string {
	return fmt.Sprintf("user%d.moca", randIntn(mocaIDSpace))
}

func contactEmail(provider string) string {
	if provider == ProviderEmail {
		return "user@example.com"
	}
	return "user@" + provider + ".com"
}

func displayName(provider string) string {
	if provider == ProviderTwitter {
		return "John (@johndoe)"
	}
	return "John Doe"
}

// hexID generates an 8-character hex string.
func (g *Generator) hexID() string {
	b, err := zcrypto.RandBytes(4)
	if err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// randIntn returns a cryptographically random int in [0, n).
func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failure is unrecoverable
		panic("crypto/rand: " + err.Error())
	}
	return int(v.Int64())
}
