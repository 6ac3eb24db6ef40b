package identity

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	g := New()
	id := g.Generate(ProviderGoogle)

	tests := []struct {
		name  string
		check func() bool
	}{
		{"ID prefix", func() bool { return strings.HasPrefix(id.ID, "user_") }},
		{"ID has uuid", func() bool {
			return regexp.MustCompile(`^user_[0-9a-f-]{36}$`).MatchString(id.ID)
		}},
		{"MocaID format", func() bool { return regexp.MustCompile(`^user\d{1,4}\.moca$`).MatchString(id.MocaID) }},
		{"Name", func() bool { return id.Name == "John Doe" }},
		{"Email", func() bool { return id.Email == "user@google.com" }},
		{"Provider", func() bool { return id.Provider == ProviderGoogle }},
		{"Avatar seeded", func() bool { return regexp.MustCompile(`seed=[0-9a-f]{8}$`).MatchString(id.Avatar) }},
		{"first time", func() bool { return id.IsFirstTime }},
		{"CreatedAt non-zero", func() bool { return !id.CreatedAt.IsZero() }},
		{"valid", func() bool { return id.Valid() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check() {
				t.Errorf("check failed for identity: %+v", id)
			}
		})
	}
}

func TestProviderFields(t *testing.T) {
	tests := []struct {
		provider string
		email    string
		name     string
	}{
		{ProviderGoogle, "user@google.com", "John Doe"},
		{ProviderTwitter, "user@twitter.com", "John (@johndoe)"},
		{ProviderEmail, "user@example.com", "John Doe"},
		{ProviderWallet, "user@wallet.com", "John Doe"},
		{"github", "user@github.com", "John Doe"},
	}

	g := New()
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			id := g.Generate(tt.provider)
			if id.Email != tt.email {
				t.Errorf("email = %q, want %q", id.Email, tt.email)
			}
			if id.Name != tt.name {
				t.Errorf("name = %q, want %q", id.Name, tt.name)
			}
		})
	}
}

func TestGenerateUniqueIDs(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for range 200 {
		id := g.Generate(ProviderEmail)
		if seen[id.ID] {
			t.Fatalf("duplicate id %s", id.ID)
		}
		seen[id.ID] = true
	}
}

func TestMocaIDRange(t *testing.T) {
	g := New()
	re := regexp.MustCompile(`^user(\d+)\.moca$`)
	for range 500 {
		m := re.FindStringSubmatch(g.MocaID())
		if m == nil {
			t.Fatal("moca id does not match pattern")
		}
		if len(m[1]) > 4 {
			t.Fatalf("moca id number out of range: %s", m[1])
		}
	}
}

func TestGenerateUsesClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &Generator{now: func() time.Time { return fixed }}

	id := g.Generate(ProviderGoogle)
	if !id.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", id.CreatedAt, fixed)
	}
}

func TestApply(t *testing.T) {
	base := New().Generate(ProviderGoogle)

	name := "Jane Roe"
	done := false
	got := base.Apply(Patch{Name: &name, IsFirstTime: &done})

	if got.Name != name {
		t.Errorf("name = %q, want %q", got.Name, name)
	}
	if got.IsFirstTime {
		t.Error("is_first_time should be cleared")
	}
	if got.Email != base.Email || got.MocaID != base.MocaID || got.ID != base.ID {
		t.Error("untouched fields changed")
	}
	if base.Name == name {
		t.Error("apply mutated the receiver")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want bool
	}{
		{"zero", Identity{}, false},
		{"missing provider", Identity{ID: "user_1", MocaID: "user1.moca", Provider: "  "}, false},
		{"complete", Identity{ID: "user_1", MocaID: "user1.moca", Provider: "google"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
