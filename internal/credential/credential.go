// Package credential defines claimed credential stamps and the per-session
// collection that holds them.
package credential

import (
	"strings"
	"time"
)

// Category groups credentials for the score breakdown.
type Category string

const (
	CategoryWeb3     Category = "Web3"
	CategoryWeb2     Category = "Web2"
	CategoryPlatform Category = "Platform"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryWeb3, CategoryWeb2, CategoryPlatform}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// Method is how a credential was verified. It selects the simulated
// latency tier and success probability.
type Method string

const (
	MethodZKTLS         Method = "zktls"
	MethodSmartContract Method = "smart-contract"
	MethodAPI           Method = "api"
	MethodPlatform      Method = "platform"
)

// Credential is a claimed stamp.
type Credential struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Icon               string            `json:"icon"`
	Category           Category          `json:"category"`
	Points             int               `json:"points"`
	Issuer             string            `json:"issuer"`
	IssuanceDate       time.Time         `json:"issuance_date"`
	IsVerified         bool              `json:"is_verified"`
	VerificationMethod Method            `json:"verification_method"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Patch carries a partial update. Nil fields are left unchanged; a non-nil
// Metadata map is merged key by key.
type Patch struct {
	Title       *string
	Description *string
	Icon        *string
	Category    *Category
	Points      *int
	Issuer      *string
	IsVerified  *bool
	Metadata    map[string]string
}

func (c Credential) apply(p Patch) Credential {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Points != nil {
		c.Points = *p.Points
	}
	if p.Issuer != nil {
		c.Issuer = *p.Issuer
	}
	if p.IsVerified != nil {
		c.IsVerified = *p.IsVerified
	}
	if len(p.Metadata) > 0 {
		md := make(map[string]string, len(c.Metadata)+len(p.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		for k, v := range p.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	return c
}

func (c Credential) clone() Credential {
	if c.Metadata != nil {
		md := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	return c
}

// SameTitle reports whether two titles name the same stamp.
func SameTitle(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
