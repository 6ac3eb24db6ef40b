package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zarlcorp/mocaport/internal/logger"
	"github.com/zarlcorp/mocaport/internal/storage"
)

func TestLogoutClearsAllNamespaces(t *testing.T) {
	h, s := newTestHolder(t)
	_, err := h.Login(context.Background(), "google")
	require.NoError(t, err)
	require.NoError(t, s.Save(storage.KeyCredentials, []string{"a"}))
	require.NoError(t, s.Save(storage.KeyReputation, map[string]int{"score": 40}))

	result := h.Logout(context.Background())
	assert.False(t, result.HasErrors(), result.Summary())

	for _, ns := range storage.Namespaces {
		var v any
		found, err := s.Load(ns, &v)
		require.NoError(t, err)
		assert.False(t, found, "namespace %s should be cleared", ns)
	}

	_, ok := h.Current()
	assert.False(t, ok)

	// a fresh holder over the same storage finds no session
	_, ok = NewHolder(s, WithLogger(logger.Discard())).Restore(context.Background())
	assert.False(t, ok)
}

func TestLogoutWithoutIdentity(t *testing.T) {
	h, _ := newTestHolder(t)

	result := h.Logout(context.Background())
	assert.False(t, result.HasErrors())
	assert.Len(t, result.Steps, len(storage.Namespaces))
	assert.True(t, strings.HasPrefix(result.Summary(), "signed out session"))
}

func TestLogoutBestEffort(t *testing.T) {
	boom := errors.New("locked")
	s := &flakyStore{
		Store:      storage.NewMemory(),
		failDelete: map[string]error{storage.KeyIdentity: boom},
	}
	h := NewHolder(s, WithLogger(logger.Discard()))
	_, err := h.Login(context.Background(), "google")
	require.NoError(t, err)
	require.NoError(t, s.Save(storage.KeyCredentials, []string{"a"}))

	var hookRan bool
	h.OnLogout("disconnect wallet", func(context.Context) error {
		hookRan = true
		return nil
	})

	result := h.Logout(context.Background())
	assert.True(t, result.HasErrors())
	assert.True(t, hookRan, "later steps run after an earlier failure")
	assert.Contains(t, result.Summary(), "(with errors)")
	assert.Contains(t, result.Summary(), "locked")

	var v any
	found, err := s.Load(storage.KeyCredentials, &v)
	require.NoError(t, err)
	assert.False(t, found, "credentials cleared despite identity delete failure")

	_, ok := h.Current()
	assert.False(t, ok, "in-memory identity cleared regardless")
}

func TestLogoutHookErrorsReported(t *testing.T) {
	h, _ := newTestHolder(t)
	h.OnLogout("reset credentials", func(context.Context) error { return errors.New("busy") })

	result := h.Logout(context.Background())
	require.True(t, result.HasErrors())
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, "reset credentials", last.Description)
	assert.EqualError(t, last.Err, "busy")
}

func TestPlan(t *testing.T) {
	h, _ := newTestHolder(t)
	id, err := h.Login(context.Background(), "google")
	require.NoError(t, err)
	h.OnLogout("disconnect wallet", func(context.Context) error { return nil })
	h.BeforeClear("cancel verifications", func(context.Context) error { return nil })

	plan := h.Plan()
	require.Len(t, plan, len(storage.Namespaces)+3)
	assert.Equal(t, "sign out "+id.MocaID, plan[0])
	assert.Equal(t, "cancel verifications", plan[1])
	assert.Equal(t, "delete stored identity", plan[2])
	assert.Equal(t, "disconnect wallet", plan[len(plan)-1])
}

func TestBeforeClearRunsFirst(t *testing.T) {
	h, s := newTestHolder(t)
	_, err := h.Login(context.Background(), "google")
	require.NoError(t, err)

	var order []string
	h.OnLogout("after", func(context.Context) error {
		order = append(order, "after")
		return nil
	})
	h.BeforeClear("halt", func(context.Context) error {
		order = append(order, "halt")
		_, signedIn := h.Current()
		assert.False(t, signedIn, "identity is dropped before halting")

		// a late write here must still be cleared
		return s.Save(storage.KeyCredentials, []string{"late"})
	})

	result := h.Logout(context.Background())
	assert.False(t, result.HasErrors(), result.Summary())
	assert.Equal(t, []string{"halt", "after"}, order)

	var v any
	found, err := s.Load(storage.KeyCredentials, &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSummary(t *testing.T) {
	r := LogoutResult{
		Name: "user42.moca",
		Steps: []StepStatus{
			{Description: "deleted stored identity"},
			{Description: "delete stored credentials", Err: errors.New("io")},
		},
	}

	want := "signed out user42.moca (with errors)\n- deleted stored identity\n- delete stored credentials: io"
	assert.Equal(t, want, r.Summary())
}
