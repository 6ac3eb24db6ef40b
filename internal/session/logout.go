package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/zarlcorp/mocaport/internal/storage"
)

// Step is one teardown action.
type Step struct {
	Description string
	Run         func(context.Context) error
}

// StepStatus records the outcome of one logout step.
type StepStatus struct {
	Description string
	Err         error
}

// LogoutResult summarizes a completed logout.
type LogoutResult struct {
	Name  string
	Steps []StepStatus
}

// HasErrors returns true if any step failed.
func (r LogoutResult) HasErrors() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Summary returns a human-readable summary of the logout.
func (r LogoutResult) Summary() string {
	var b strings.Builder

	name := r.Name
	if name == "" {
		name = "session"
	}
	if r.HasErrors() {
		fmt.Fprintf(&b, "signed out %s (with errors)", name)
	} else {
		fmt.Fprintf(&b, "signed out %s", name)
	}

	for _, s := range r.Steps {
		if s.Err != nil {
			fmt.Fprintf(&b, "\n- %s: %v", s.Description, s.Err)
		} else {
			fmt.Fprintf(&b, "\n- %s", s.Description)
		}
	}

	return b.String()
}

// Plan lists what Logout will do, for a confirmation prompt.
func (h *Holder) Plan() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	steps := make([]string, 0, len(storage.Namespaces)+len(h.halts)+len(h.hooks)+1)
	if h.current != nil {
		steps = append(steps, "sign out "+h.current.MocaID)
	}
	for _, s := range h.halts {
		steps = append(steps, s.Description)
	}
	for _, ns := range storage.Namespaces {
		steps = append(steps, "delete stored "+ns)
	}
	for _, s := range h.hooks {
		steps = append(steps, s.Description)
	}
	return steps
}

// Logout drops the active identity, runs the BeforeClear steps, clears
// every persisted namespace, then runs the OnLogout hooks. It is
// best-effort: each step is attempted regardless of earlier failures.
func (h *Holder) Logout(ctx context.Context) LogoutResult {
	h.mu.Lock()
	var result LogoutResult
	if h.current != nil {
		result.Name = h.current.MocaID
	}
	h.current = nil
	halts := append([]Step(nil), h.halts...)
	hooks := append([]Step(nil), h.hooks...)
	h.mu.Unlock()

	for _, s := range halts {
		result.run(ctx, s)
	}

	for _, ns := range storage.Namespaces {
		result.deleteNamespace(h.store, ns)
	}

	for _, s := range hooks {
		result.run(ctx, s)
	}

	if result.HasErrors() {
		h.log.Warn("logout finished with errors", "summary", result.Summary())
	} else {
		h.log.Info("signed out", "moca_id", result.Name)
	}
	return result
}

func (r *LogoutResult) deleteNamespace(store Store, ns string) {
	if err := store.Delete(ns); err != nil {
		r.Steps = append(r.Steps, StepStatus{
			Description: "delete stored " + ns,
			Err:         err,
		})
		return
	}
	r.Steps = append(r.Steps, StepStatus{Description: "deleted stored " + ns})
}

func (r *LogoutResult) run(ctx context.Context, s Step) {
	r.Steps = append(r.Steps, StepStatus{
		Description: s.Description,
		Err:         s.Run(ctx),
	})
}
