// Package identity defines the signed-in user record.
// Random fields are drawn from crypto/rand.
package identity

import (
	"strings"
	"time"
)

// Supported sign-in providers. Any non-empty label is accepted; these are
// the ones the login menu offers.
const (
	ProviderGoogle  = "google"
	ProviderTwitter = "twitter"
	ProviderEmail   = "email"
	ProviderWallet  = "wallet"
)

// Providers lists the offered sign-in providers in menu order.
var Providers = []string{ProviderGoogle, ProviderTwitter, ProviderEmail, ProviderWallet}

// Identity is the authenticated user.
type Identity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	MocaID      string    `json:"moca_id"`
	Provider    string    `json:"provider"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsFirstTime bool      `json:"is_first_time"`
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Email       *string
	MocaID      *string
	Avatar      *string
	IsFirstTime *bool
}

// Apply returns a copy of id with p's non-nil fields written over it.
func (id Identity) Apply(p Patch) Identity {
	if p.Name != nil {
		id.Name = *p.Name
	}
	if p.Email != nil {
		id.Email = *p.Email
	}
	if p.MocaID != nil {
		id.MocaID = *p.MocaID
	}
	if p.Avatar != nil {
		id.Avatar = *p.Avatar
	}
	if p.IsFirstTime != nil {
		id.IsFirstTime = *p.IsFirstTime
	}
	return id
}

// Valid reports whether id has the fields every identity must carry.
func (id Identity) Valid() bool {
	return id.ID != "" && id.MocaID != "" && strings.TrimSpace(id.Provider) != ""
}
