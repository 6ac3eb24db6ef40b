package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/identity"
)

var providerLabels = map[string]string{
	identity.ProviderGoogle:  "Continue with Google",
	identity.ProviderTwitter: "Continue with Twitter",
	identity.ProviderEmail:   "Continue with Email",
	identity.ProviderWallet:  "Connect Wallet",
}

// loginModel picks a sign-in provider.
type loginModel struct {
	cursor  int
	version string
	loading bool
	spinner spinner.Model
	errMsg  string
}

// navigateMsg tells the root model to switch views.
type navigateMsg struct {
	view viewID
}

// loginMsg asks the root to sign in with provider.
type loginMsg struct {
	provider string
}

// loginResultMsg carries the outcome of a sign-in.
type loginResultMsg struct {
	identity identity.Identity
	err      error
}

func newLoginModel(version string) loginModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
	)
	return loginModel{version: version, spinner: sp}
}

func (m loginModel) Init() tea.Cmd {
	return nil
}

// items is every provider followed by quit.
func (m loginModel) items() int {
	return len(identity.Providers) + 1
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.loading {
			return m, nil
		}
		return m.handleKey(msg)

	case loginResultMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m loginModel) handleKey(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyUp) {
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyDown) {
		if m.cursor < m.items()-1 {
			m.cursor++
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyEnter) {
		if m.cursor == len(identity.Providers) {
			return m, tea.Quit
		}
		provider := identity.Providers[m.cursor]
		m.loading = true
		m.errMsg = ""
		return m, tea.Batch(
			m.spinner.Tick,
			func() tea.Msg { return loginMsg{provider: provider} },
		)
	}

	return m, nil
}

func (m loginModel) View() string {
	title := zstyle.Title.Render("mocaport")
	ver := zstyle.MutedText.Render(m.version)

	s := fmt.Sprintf("\n  %s %s\n", title, ver)
	s += "  " + zstyle.MutedText.Render("portable credentials and reputation on Moca Network") + "\n\n"

	for i := range m.items() {
		label := "Quit"
		if i < len(identity.Providers) {
			label = providerLabels[identity.Providers[i]]
		}
		if m.cursor == i {
			s += zstyle.Highlight.Render(fmt.Sprintf("    > %s", label)) + "\n"
		} else {
			s += fmt.Sprintf("      %s\n", label)
		}
	}

	s += "\n"
	switch {
	case m.loading:
		s += "  " + m.spinner.View() + " " + zstyle.MutedText.Render("signing in...") + "\n"
	case m.errMsg != "":
		s += "  " + zstyle.StatusErr.Render(m.errMsg) + "\n"
	default:
		s += "\n"
	}

	s += "\n  " + zstyle.MutedText.Render("j/k navigate  enter select  q quit") + "\n\n"
	return s
}
