package storage

import (
	"errors"
	"testing"

	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"
)

type sample struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

func openTestStore(t *testing.T) (*Store, *zfilesystem.MemFS) {
	t.Helper()
	fs := zfilesystem.NewMemFS()
	s, err := OpenFS(fs, "testpass")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, s := range map[string]*Store{
		"zstore": func() *Store { s, _ := openTestStore(t); return s }(),
		"memory": NewMemory(),
	} {
		t.Run(name, func(t *testing.T) {
			want := sample{Name: "GitHub Contributor", Points: 40}
			if err := s.Save(KeyCredentials, want); err != nil {
				t.Fatalf("save: %v", err)
			}

			var got sample
			found, err := s.Load(KeyCredentials, &got)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !found {
				t.Fatal("expected record to be found")
			}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestLoadMissingKey(t *testing.T) {
	for name, s := range map[string]*Store{
		"zstore": func() *Store { s, _ := openTestStore(t); return s }(),
		"memory": NewMemory(),
	} {
		t.Run(name, func(t *testing.T) {
			var got sample
			found, err := s.Load(KeyIdentity, &got)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if found {
				t.Error("missing key should not be found")
			}
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, s := range map[string]*Store{
		"zstore": func() *Store { s, _ := openTestStore(t); return s }(),
		"memory": NewMemory(),
	} {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(KeyReputation, sample{Points: 1}); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := s.Delete(KeyReputation); err != nil {
				t.Fatalf("first delete: %v", err)
			}
			if err := s.Delete(KeyReputation); err != nil {
				t.Fatalf("second delete: %v", err)
			}

			var got sample
			found, err := s.Load(KeyReputation, &got)
			if err != nil || found {
				t.Errorf("after delete: found=%v err=%v", found, err)
			}
		})
	}
}

func TestLoadCorruptRecord(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Write(KeyIdentity, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New(b)

	var got sample
	found, err := s.Load(KeyIdentity, &got)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if found {
		t.Error("corrupt record should not report found")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	fs := zfilesystem.NewMemFS()

	s1, err := OpenFS(fs, "testpass")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.Save(KeyIdentity, sample{Name: "John Doe"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s1.Close()

	s2, err := OpenFS(fs, "testpass")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var got sample
	found, err := s2.Load(KeyIdentity, &got)
	if err != nil || !found {
		t.Fatalf("load after reopen: found=%v err=%v", found, err)
	}
	if got.Name != "John Doe" {
		t.Errorf("name = %q, want %q", got.Name, "John Doe")
	}
}

func TestReopenWithWrongPassword(t *testing.T) {
	fs := zfilesystem.NewMemFS()

	s1, err := OpenFS(fs, "testpass")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	_, err = OpenFS(fs, "wrong")
	if !errors.Is(err, zstore.ErrWrongPassword) {
		t.Errorf("error = %v, want ErrWrongPassword", err)
	}
}

type failingBackend struct{ err error }

func (f failingBackend) Read(string) ([]byte, error) { return nil, f.err }
func (f failingBackend) Write(string, []byte) error  { return f.err }
func (f failingBackend) Remove(string) error         { return f.err }

func TestBackendErrorsAreWrapped(t *testing.T) {
	boom := errors.New("disk full")
	s := New(failingBackend{err: boom})

	if err := s.Save(KeyCredentials, sample{}); !errors.Is(err, boom) {
		t.Errorf("save error = %v, want wrapped %v", err, boom)
	}
	if _, err := s.Load(KeyCredentials, &sample{}); !errors.Is(err, boom) {
		t.Errorf("load error = %v, want wrapped %v", err, boom)
	}
	if err := s.Delete(KeyCredentials); !errors.Is(err, boom) {
		t.Errorf("delete error = %v, want wrapped %v", err, boom)
	}
}

func TestMemoryBackendCopies(t *testing.T) {
	b := NewMemoryBackend()
	buf := []byte(`{"name":"a"}`)
	if err := b.Write("k", buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf[2] = 'X'

	got, err := b.Read("k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"name":"a"}` {
		t.Errorf("stored bytes aliased caller buffer: %s", got)
	}
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}

func TestInitialized(t *testing.T) {
	dir := t.TempDir()
	if Initialized(dir) {
		t.Fatal("empty dir reported as initialized")
	}

	s, err := Open(dir, "correct-horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()

	if !Initialized(dir) {
		t.Error("vault not detected after open")
	}
}
