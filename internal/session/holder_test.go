package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/logger"
	"github.com/zarlcorp/mocaport/internal/storage"
)

func newTestHolder(t *testing.T) (*Holder, *storage.Store) {
	t.Helper()
	s := storage.NewMemory()
	return NewHolder(s, WithLogger(logger.Discard())), s
}

// flakyStore fails writes and deletes on chosen keys.
type flakyStore struct {
	*storage.Store
	failSave   error
	failDelete map[string]error
}

func (f *flakyStore) Save(key string, v any) error {
	if f.failSave != nil {
		return f.failSave
	}
	return f.Store.Save(key, v)
}

func (f *flakyStore) Delete(key string) error {
	if err, ok := f.failDelete[key]; ok {
		return err
	}
	return f.Store.Delete(key)
}

func TestLoginPersists(t *testing.T) {
	h, s := newTestHolder(t)

	id, err := h.Login(context.Background(), "google")
	require.NoError(t, err)
	assert.Equal(t, "google", id.Provider)
	assert.True(t, id.IsFirstTime)

	cur, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, id, cur)

	var stored identity.Identity
	found, err := s.Load(storage.KeyIdentity, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id.ID, stored.ID)
}

func TestLoginNormalizesProvider(t *testing.T) {
	h, _ := newTestHolder(t)

	id, err := h.Login(context.Background(), "  Twitter ")
	require.NoError(t, err)
	assert.Equal(t, "twitter", id.Provider)
	assert.Equal(t, "John (@johndoe)", id.Name)
}

func TestLoginEmptyProvider(t *testing.T) {
	h, _ := newTestHolder(t)

	_, err := h.Login(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyProvider)

	_, ok := h.Current()
	assert.False(t, ok)
}

func TestLoginWriteFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	h := NewHolder(&flakyStore{Store: storage.NewMemory(), failSave: boom}, WithLogger(logger.Discard()))

	_, err := h.Login(context.Background(), "google")
	assert.ErrorIs(t, err, boom)

	_, ok := h.Current()
	assert.False(t, ok, "failed login must not leave an active identity")
}

func TestLoginHonoursContext(t *testing.T) {
	s := storage.NewMemory()
	h := NewHolder(s, WithLoginDelay(time.Hour), WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Login(ctx, "google")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoginWaitsForDelay(t *testing.T) {
	s := storage.NewMemory()
	h := NewHolder(s, WithLoginDelay(20*time.Millisecond), WithLogger(logger.Discard()))

	start := time.Now()
	_, err := h.Login(context.Background(), "email")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestUpdate(t *testing.T) {
	h, s := newTestHolder(t)
	_, err := h.Login(context.Background(), "google")
	require.NoError(t, err)

	done := false
	got, err := h.Update(identity.Patch{IsFirstTime: &done})
	require.NoError(t, err)
	assert.False(t, got.IsFirstTime)

	var stored identity.Identity
	_, err = s.Load(storage.KeyIdentity, &stored)
	require.NoError(t, err)
	assert.False(t, stored.IsFirstTime)
}

func TestUpdateWithoutIdentity(t *testing.T) {
	h, s := newTestHolder(t)

	name := "nobody"
	got, err := h.Update(identity.Patch{Name: &name})
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, identity.Identity{}, got)

	var stored identity.Identity
	found, err := s.Load(storage.KeyIdentity, &stored)
	require.NoError(t, err)
	assert.False(t, found, "update without identity must not persist anything")
}

func TestRestore(t *testing.T) {
	s := storage.NewMemory()
	h1 := NewHolder(s, WithLogger(logger.Discard()))
	want, err := h1.Login(context.Background(), "wallet")
	require.NoError(t, err)

	h2 := NewHolder(s, WithLogger(logger.Discard()))
	got, ok := h2.Restore(context.Background())
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.MocaID, got.MocaID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestRestoreCorruptRecordIsAbsent(t *testing.T) {
	b := storage.NewMemoryBackend()
	require.NoError(t, b.Write(storage.KeyIdentity, []byte(`{"id":`)))
	h := NewHolder(storage.New(b), WithLogger(logger.Discard()))

	_, ok := h.Restore(context.Background())
	assert.False(t, ok)
	_, ok = h.Current()
	assert.False(t, ok)
}

func TestRestoreInvalidRecordIsAbsent(t *testing.T) {
	s := storage.NewMemory()
	require.NoError(t, s.Save(storage.KeyIdentity, identity.Identity{Name: "ghost"}))
	h := NewHolder(s, WithLogger(logger.Discard()))

	_, ok := h.Restore(context.Background())
	assert.False(t, ok)
}

func TestRestoreNothingStored(t *testing.T) {
	h, _ := newTestHolder(t)
	_, ok := h.Restore(context.Background())
	assert.False(t, ok)
}
