package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/storage"
)

type unlockStage int

const (
	stageUnlock unlockStage = iota
	stageCreate
	stageConfirm
)

var stagePrompts = map[unlockStage]string{
	stageUnlock:  "master password:",
	stageCreate:  "create master password:",
	stageConfirm: "confirm password:",
}

// passwordModel unlocks the local vault, or creates it on first run.
type passwordModel struct {
	field    textinput.Model
	stage    unlockStage
	pending  string
	failures int
	errMsg   string
	dataDir  string
}

// passwordSubmitMsg is sent when the user submits a password.
type passwordSubmitMsg struct {
	password string
}

// passwordErrMsg is sent when the vault cannot be opened.
type passwordErrMsg struct {
	err error
}

func newPasswordModel(firstRun bool, dataDir string) passwordModel {
	ti := textinput.New()
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.CharLimit = 128
	ti.Width = 40
	ti.Focus()

	m := passwordModel{field: ti, dataDir: dataDir}
	if firstRun {
		m.stage = stageCreate
	}
	return m
}

func (m passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m passwordModel) Update(msg tea.Msg) (passwordModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// q is a valid password character, only ctrl+c quits here
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if key.Matches(msg, zstyle.KeyEnter) {
			return m.submit()
		}

	case passwordErrMsg:
		m.failures++
		m.errMsg = msg.err.Error()
		m.field.Reset()
		if m.stage == stageConfirm {
			m.stage = stageCreate
		}
		m.pending = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.field, cmd = m.field.Update(msg)
	return m, cmd
}

func (m passwordModel) submit() (passwordModel, tea.Cmd) {
	val := m.field.Value()
	if val == "" {
		return m, nil
	}
	m.field.Reset()

	switch m.stage {
	case stageCreate:
		if len(val) < storage.MinPasswordLen {
			m.errMsg = fmt.Sprintf("use at least %d characters", storage.MinPasswordLen)
			return m, nil
		}
		m.pending = val
		m.stage = stageConfirm
		m.errMsg = ""
		return m, nil

	case stageConfirm:
		if val != m.pending {
			m.errMsg = "passwords do not match"
			m.stage = stageCreate
			m.pending = ""
			return m, nil
		}
	}

	m.errMsg = ""
	return m, func() tea.Msg { return passwordSubmitMsg{password: val} }
}

func (m passwordModel) View() string {
	indent := lipgloss.NewStyle().MarginLeft(2)
	logo := indent.Render(zstyle.StyledLogo(lipgloss.NewStyle().Foreground(accent)))
	toolName := indent.Render(zstyle.MutedText.Render("mocaport"))

	s := fmt.Sprintf("\n%s\n%s\n\n  %s\n  %s\n", logo, toolName, stagePrompts[m.stage], m.field.View())

	if m.stage != stageUnlock && m.dataDir != "" {
		s += "  " + zstyle.MutedText.Render("a new vault will be created in "+m.dataDir) + "\n"
	}

	if m.errMsg != "" {
		line := m.errMsg
		if m.failures > 1 {
			line = fmt.Sprintf("%s (attempt %d)", line, m.failures)
		}
		s += "\n  " + zstyle.StatusErr.Render(line)
	}

	s += "\n"
	return s
}
