package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/credential"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/reputation"
)

const gaugeWidth = 40

// dashboardModel shows the identity, reputation and held credentials.
type dashboardModel struct {
	identity    identity.Identity
	rep         reputation.Snapshot
	credentials []credential.Credential
	gauge       progress.Model
	cursor      int
	confirm     bool
	flash       string
}

// flashMsg clears the flash after a timeout.
type flashMsg struct{}

// viewCredentialMsg opens the detail view for a credential.
type viewCredentialMsg struct {
	credential credential.Credential
}

// forgetMsg asks the root to remove a held credential.
type forgetMsg struct {
	id string
}

// requestMsg opens a verification request for a held credential.
type requestMsg struct {
	title string
}

// dismissTourMsg hides the first-visit tour.
type dismissTourMsg struct{}

// logoutStartMsg opens the sign-out confirmation.
type logoutStartMsg struct{}

func newDashboardModel(id identity.Identity, rep reputation.Snapshot, creds []credential.Credential) dashboardModel {
	return dashboardModel{
		identity:    id,
		rep:         rep,
		credentials: creds,
		gauge:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(gaugeWidth)),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return nil
}

func (m dashboardModel) Update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirm {
			return m.handleConfirm(msg)
		}
		return m.handleKey(msg)

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (dashboardModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	switch msg.String() {
	case "c":
		return m, func() tea.Msg { return navigateMsg{view: viewCatalog} }
	case "w":
		return m, func() tea.Msg { return navigateMsg{view: viewWallet} }
	case "x":
		return m, func() tea.Msg { return logoutStartMsg{} }
	case "h":
		if !m.identity.IsFirstTime {
			return m, nil
		}
		return m, func() tea.Msg { return dismissTourMsg{} }
	case "y":
		if err := copyToClipboard(m.identity.MocaID); err != nil {
			m.flash = "copy: " + err.Error()
			return m, clearFlashAfter()
		}
		m.flash = "moca id copied"
		return m, clearFlashAfter()
	}

	if len(m.credentials) == 0 {
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyUp) {
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyDown) {
		if m.cursor < len(m.credentials)-1 {
			m.cursor++
		}
		return m, nil
	}

	c := m.credentials[m.cursor]

	if key.Matches(msg, zstyle.KeyEnter) {
		return m, func() tea.Msg { return viewCredentialMsg{credential: c} }
	}

	switch msg.String() {
	case "r":
		return m, func() tea.Msg { return requestMsg{title: c.Title} }
	case "d":
		m.confirm = true
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) handleConfirm(msg tea.KeyMsg) (dashboardModel, tea.Cmd) {
	m.confirm = false
	if msg.String() != "y" {
		return m, nil
	}
	id := m.credentials[m.cursor].ID
	return m, func() tea.Msg { return forgetMsg{id: id} }
}

func (m dashboardModel) View() string {
	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)

	s := "\n"
	s += fmt.Sprintf("  %s  %s\n", zstyle.Subtitle.Render(m.identity.Name), zstyle.MutedText.Render(m.identity.Email))
	s += fmt.Sprintf("  %s  %s\n", zstyle.MutedText.Render("moca id"), m.identity.MocaID)

	if m.identity.IsFirstTime {
		s += "\n  " + zstyle.Highlight.Render("welcome to mocaport") + "\n"
		s += "  " + zstyle.MutedText.Render("claim stamps with c, answer dApp requests with r, mint your score from the wallet with w.") + "\n"
		s += "  " + zstyle.MutedText.Render("press h to hide this tour.") + "\n"
	}

	s += "\n" + m.viewReputation()
	s += "\n"

	if len(m.credentials) == 0 {
		s += "  " + zstyle.MutedText.Render("no credentials yet, press c to claim a stamp") + "\n"
	}

	for i, c := range m.credentials {
		line := fmt.Sprintf("%s %-28s %-9s %4d pts", c.Icon, truncate(c.Title, 28), c.Category, c.Points)
		if !c.IsVerified {
			line += "  " + zstyle.StatusWarn.Render("unverified")
		}
		if i == m.cursor {
			s += "  " + accentStyle.Render("▸") + " " + line + "\n"
		} else {
			s += "    " + line + "\n"
		}
	}

	s += "\n"

	// always reserve a line for flash to prevent layout shift
	switch {
	case m.confirm:
		title := m.credentials[m.cursor].Title
		s += "  " + zstyle.StatusWarn.Render(fmt.Sprintf("forget %q? (y/n)", title)) + "\n"
	case m.flash != "":
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	default:
		s += "\n"
	}

	return s
}

func (m dashboardModel) viewReputation() string {
	r := m.rep

	s := fmt.Sprintf("  %s %s  %s\n",
		zstyle.Title.Render(fmt.Sprintf("%d", r.Score)),
		zstyle.MutedText.Render(fmt.Sprintf("/ %d", r.MaxScore)),
		zstyle.Highlight.Render(string(r.Level)),
	)
	s += "  " + m.gauge.ViewAs(float64(r.Percent)/100) + "\n"
	s += "  " + zstyle.MutedText.Render(fmt.Sprintf("percentile %d", r.Percentile))

	if next, at := reputation.Next(r.Score, r.MaxScore); next != r.Level {
		s += zstyle.MutedText.Render(fmt.Sprintf("  ·  %d to %s", at-r.Score, next))
	}
	s += "\n"

	var parts string
	for _, cat := range credential.Categories {
		parts += fmt.Sprintf("  %s %d", zstyle.MutedText.Render(string(cat)), r.Breakdown[cat])
	}
	s += parts + "\n"

	return s
}

func clearFlashAfter() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return flashMsg{}
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
