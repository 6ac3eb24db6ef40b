package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zarlcorp/mocaport/internal/credential"
)

func titles(stamps []Stamp) []string {
	out := make([]string, len(stamps))
	for i, s := range stamps {
		out[i] = s.Title
	}
	return out
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	all := c.All()
	require.NotEmpty(t, all)

	cats := make(map[credential.Category]int)
	for _, s := range all {
		cats[s.Category]++
		assert.NotEmpty(t, s.Requirements, s.ID)
		assert.Contains(t, []credential.Method{
			credential.MethodZKTLS, credential.MethodSmartContract,
			credential.MethodAPI, credential.MethodPlatform,
		}, s.VerificationMethod, s.ID)
	}
	for _, cat := range credential.Categories {
		assert.Positive(t, cats[cat], "category %s has no stamps", cat)
	}
}

func TestFind(t *testing.T) {
	c := Default()

	s, ok := c.Find("github-contributor")
	require.True(t, ok)
	assert.Equal(t, "GitHub Contributor", s.Title)

	_, ok = c.Find("nope")
	assert.False(t, ok)
}

func TestAvailableSearchIsCaseInsensitive(t *testing.T) {
	c := Default()

	for _, q := range []string{"github", "GITHUB", "  GitHub  "} {
		got := titles(c.Available(Filter{Search: q}, nil))
		assert.Equal(t, []string{"GitHub Contributor"}, got, "search %q", q)
	}
}

func TestAvailableSearchesDescription(t *testing.T) {
	c := Default()
	got := titles(c.Available(Filter{Search: "governance"}, nil))
	assert.Equal(t, []string{"DAO Voter"}, got)
}

func TestAvailableCategory(t *testing.T) {
	c := Default()

	tests := []struct {
		category string
		want     credential.Category
	}{
		{"Web3", credential.CategoryWeb3},
		{"web2", credential.CategoryWeb2},
		{"PLATFORM", credential.CategoryPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got := c.Available(Filter{Category: tt.category}, nil)
			require.NotEmpty(t, got)
			for _, s := range got {
				assert.Equal(t, tt.want, s.Category)
			}
		})
	}

	assert.Len(t, c.Available(Filter{Category: AllCategories}, nil), len(c.All()))
	assert.Len(t, c.Available(Filter{}, nil), len(c.All()))
	assert.Empty(t, c.Available(Filter{Category: "Gaming"}, nil))
}

func TestAvailableExcludesClaimed(t *testing.T) {
	c := Default()
	held := []string{"github contributor", "NFT HOLDER"}
	claimed := func(title string) bool {
		for _, h := range held {
			if credential.SameTitle(h, title) {
				return true
			}
		}
		return false
	}

	got := titles(c.Available(Filter{}, claimed))
	assert.NotContains(t, got, "GitHub Contributor")
	assert.NotContains(t, got, "NFT Holder")
	assert.Len(t, got, len(c.All())-2)
}

func TestAvailableCombinesFilters(t *testing.T) {
	c := Default()
	got := titles(c.Available(Filter{Search: "verified", Category: "Web2"}, nil))
	assert.Equal(t, []string{"Twitter Verified"}, got)
}

func TestStampCredential(t *testing.T) {
	s, ok := Default().Find("nft-holder")
	require.True(t, ok)

	cred := s.Credential()
	assert.Equal(t, s.Title, cred.Title)
	assert.Equal(t, s.Points, cred.Points)
	assert.Equal(t, Issuer, cred.Issuer)
	assert.True(t, cred.IsVerified)
	assert.Equal(t, credential.MethodSmartContract, cred.VerificationMethod)
	assert.Equal(t, s.Requirements, cred.Metadata["requirements"])
}

func TestParseRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing id", `{"stamps":[{"title":"x"}]}`},
		{"duplicate id", `{"stamps":[{"id":"a","title":"x"},{"id":"a","title":"y"}]}`},
		{"negative points", `{"stamps":[{"id":"a","title":"x","points":-1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
