// Package cli implements mocaport's command-line subcommands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/zarlcorp/mocaport/internal/storage"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable that supplies the master
// password without prompting.
const PasswordEnv = "MOCAPORT_PASSWORD"

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errPasswordShort    = fmt.Errorf("master password needs at least %d characters", storage.MinPasswordLen)
)

// DataDir returns the default data directory for mocaport.
func DataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "mocaport")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mocaport"
	}
	return filepath.Join(home, ".local", "share", "mocaport")
}

// IsFirstRun reports whether dir has no vault yet.
func IsFirstRun(dir string) bool {
	return !storage.Initialized(dir)
}

// prompter asks for passwords on a writer. read is swapped in tests.
type prompter struct {
	w    io.Writer
	read func() ([]byte, error)
}

func newPrompter(w io.Writer) prompter {
	return prompter{w: w, read: func() ([]byte, error) {
		return term.ReadPassword(int(syscall.Stdin))
	}}
}

func (p prompter) ask(label string) (string, error) {
	fmt.Fprint(p.w, label)
	b, err := p.read()
	fmt.Fprintln(p.w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// create asks twice and enforces the vault's minimum length.
func (p prompter) create() (string, error) {
	pass, err := p.ask("create master password: ")
	if err != nil {
		return "", err
	}
	if len(pass) < storage.MinPasswordLen {
		return "", errPasswordShort
	}
	again, err := p.ask("confirm password: ")
	if err != nil {
		return "", err
	}
	if pass != again {
		return "", errPasswordMismatch
	}
	return pass, nil
}

func (p prompter) password(dir string) (string, error) {
	if pass := os.Getenv(PasswordEnv); pass != "" {
		return pass, nil
	}
	if IsFirstRun(dir) {
		return p.create()
	}
	return p.ask("master password: ")
}

// Password returns the master password from PasswordEnv, or prompts on w.
func Password(dir string, w io.Writer) (string, error) {
	return newPrompter(w).password(dir)
}

// OpenStore obtains the password and opens the encrypted store in dir.
func OpenStore(dir string, w io.Writer) (*storage.Store, error) {
	pass, err := Password(dir, w)
	if err != nil {
		return nil, err
	}
	return storage.Open(dir, pass)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
