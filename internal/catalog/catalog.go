// Package catalog holds the static list of claimable stamps.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zarlcorp/mocaport/internal/credential"
)

//go:embed stamps.json
var stampsJSON []byte

const (
	// AllCategories is the filter value matching every category.
	AllCategories = "all"
	// Issuer is recorded on every credential granted through the catalog.
	Issuer = "MocaPort Verification Service"
)

// Stamp is one catalog entry.
type Stamp struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Icon               string              `json:"icon"`
	Category           credential.Category `json:"category"`
	Points             int                 `json:"points"`
	VerificationMethod credential.Method   `json:"verification_method"`
	Requirements       string              `json:"requirements"`
}

// Catalog is a read-only set of stamps.
type Catalog struct {
	stamps []Stamp
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(stampsJSON)
	if err != nil {
		panic("catalog: embedded stamps: " + err.Error())
	}
	return c
}

// Parse decodes a catalog document of the form {"stamps": [...]}.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Stamps []Stamp `json:"stamps"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Stamps))
	for _, s := range doc.Stamps {
		if s.ID == "" || s.Title == "" {
			return nil, fmt.Errorf("parse catalog: stamp missing id or title")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("parse catalog: duplicate stamp id %q", s.ID)
		}
		if s.Points < 0 {
			return nil, fmt.Errorf("parse catalog: stamp %q has negative points", s.ID)
		}
		seen[s.ID] = true
	}
	return &Catalog{stamps: doc.Stamps}, nil
}

// All returns every stamp in catalog order.
func (c *Catalog) All() []Stamp {
	return append([]Stamp(nil), c.stamps...)
}

// Find returns the stamp with id.
func (c *Catalog) Find(id string) (Stamp, bool) {
	for _, s := range c.stamps {
		if s.ID == id {
			return s, true
		}
	}
	return Stamp{}, false
}

// Filter narrows the catalog view.
type Filter struct {
	Search   string
	Category string // a credential.Category, "all" or empty
}

// Available returns the stamps matching f whose titles are not already
// claimed. claimed may be nil.
func (c *Catalog) Available(f Filter, claimed func(title string) bool) []Stamp {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	var out []Stamp
	for _, s := range c.stamps {
		if !matchesSearch(s, search) || !matchesCategory(s, f.Category) {
			continue
		}
		if claimed != nil && claimed(s.Title) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Credential builds the verified credential granted for s.
func (s Stamp) Credential() credential.Credential {
	return credential.Credential{
		Title:              s.Title,
		Description:        s.Description,
		Icon:               s.Icon,
		Category:           s.Category,
		Points:             s.Points,
		Issuer:             Issuer,
		IsVerified:         true,
		VerificationMethod: s.VerificationMethod,
		Metadata:           map[string]string{"requirements": s.Requirements},
	}
}

func matchesSearch(s Stamp, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Title), search) ||
		strings.Contains(strings.ToLower(s.Description), search)
}

func matchesCategory(s Stamp, cat string) bool {
	cat = strings.TrimSpace(cat)
	if cat == "" || strings.EqualFold(cat, AllCategories) {
		return true
	}
	return strings.EqualFold(string(s.Category), cat)
}
