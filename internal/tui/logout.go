package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/session"
)

type logoutPhase int

const (
	logoutConfirm logoutPhase = iota
	logoutRunning
	logoutDone
)

// logoutConfirmMsg asks the root to run the logout cascade.
type logoutConfirmMsg struct{}

// logoutResultMsg carries the result of a completed logout.
type logoutResultMsg struct {
	result session.LogoutResult
}

// logoutModel confirms sign-out and shows what was torn down.
type logoutModel struct {
	identity identity.Identity
	plan     []string
	phase    logoutPhase
	result   session.LogoutResult
}

func newLogoutModel(id identity.Identity, plan []string) logoutModel {
	return logoutModel{
		identity: id,
		plan:     plan,
		phase:    logoutConfirm,
	}
}

func (m logoutModel) Init() tea.Cmd {
	return nil
}

func (m logoutModel) Update(msg tea.Msg) (logoutModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case logoutResultMsg:
		m.result = msg.result
		m.phase = logoutDone
		return m, nil
	}

	return m, nil
}

func (m logoutModel) handleKey(msg tea.KeyMsg) (logoutModel, tea.Cmd) {
	switch m.phase {
	case logoutConfirm:
		if key.Matches(msg, zstyle.KeyQuit) {
			return m, tea.Quit
		}
		if msg.String() == "y" {
			m.phase = logoutRunning
			return m, func() tea.Msg { return logoutConfirmMsg{} }
		}
		// any other key cancels
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }

	case logoutDone:
		return m, func() tea.Msg { return navigateMsg{view: viewLogin} }
	}
	return m, nil
}

func (m logoutModel) View() string {
	switch m.phase {
	case logoutConfirm:
		return m.viewConfirm()
	case logoutRunning:
		return "\n  " + zstyle.MutedText.Render("signing out "+m.identity.Name+"...") + "\n"
	case logoutDone:
		return m.viewDone()
	}
	return ""
}

func (m logoutModel) viewConfirm() string {
	s := "\n  " + zstyle.Subtitle.Render("sign out "+m.identity.Name+"?") + "\n\n"

	s += "  " + zstyle.MutedText.Render("this will:") + "\n"
	for _, step := range m.plan {
		s += fmt.Sprintf("  %s %s\n", zstyle.StatusWarn.Render("-"), step)
	}

	s += "\n"
	s += "  " + zstyle.StatusWarn.Render("held credentials will be lost.") + " (y/n)\n"
	return s
}

func (m logoutModel) viewDone() string {
	var b strings.Builder

	lines := strings.Split(m.result.Summary(), "\n")

	// first line is the header
	if m.result.HasErrors() {
		b.WriteString("\n  " + zstyle.StatusWarn.Render(lines[0]) + "\n\n")
	} else {
		b.WriteString("\n  " + zstyle.StatusOK.Render(lines[0]) + "\n\n")
	}

	for _, s := range m.result.Steps {
		if s.Err != nil {
			b.WriteString("  " + zstyle.StatusWarn.Render(fmt.Sprintf("- %s: %v", s.Description, s.Err)) + "\n")
		} else {
			b.WriteString("  - " + s.Description + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString("  " + zstyle.MutedText.Render("press any key to continue") + "\n")
	return b.String()
}
