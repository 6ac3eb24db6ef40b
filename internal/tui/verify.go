package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/verify"
)

// verifyModel follows one claim through its stages.
type verifyModel struct {
	stamp   catalog.Stamp
	attempt *verify.Attempt
	steps   []verify.Step
	stage   int
	spinner spinner.Model
	bar     progress.Model

	done   bool
	result verify.Result
	err    error
}

// verifyEventMsg carries one stage event.
type verifyEventMsg struct {
	event verify.Event
}

// verifyDoneMsg is sent once the attempt has ended.
type verifyDoneMsg struct {
	result verify.Result
	err    error
}

func newVerifyModel(stamp catalog.Stamp, a *verify.Attempt) verifyModel {
	return verifyModel{
		stamp:   stamp,
		attempt: a,
		steps:   a.Steps(),
		stage:   -1,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
		),
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(gaugeWidth)),
	}
}

func (m verifyModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.attempt))
}

// waitForEvent reads the next stage event. Once the stream closes it
// reports the outcome.
func waitForEvent(a *verify.Attempt) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.Events()
		if ok {
			return verifyEventMsg{event: ev}
		}
		res, err := a.Wait(context.Background())
		return verifyDoneMsg{result: res, err: err}
	}
}

func (m verifyModel) finished() bool {
	return m.done
}

func (m verifyModel) Update(msg tea.Msg) (verifyModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case verifyEventMsg:
		if !msg.event.Final {
			m.stage = msg.event.Stage
		}
		return m, waitForEvent(m.attempt)

	case verifyDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m verifyModel) handleKey(msg tea.KeyMsg) (verifyModel, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.attempt.Cancel()
		return m, tea.Quit
	}

	if m.done {
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }
	}

	if key.Matches(msg, zstyle.KeyBack) {
		// the done message follows once the event stream closes
		m.attempt.Cancel()
	}
	return m, nil
}

func (m verifyModel) View() string {
	s := "\n  " + zstyle.Subtitle.Render(m.stamp.Icon+" "+m.stamp.Title) + "\n"
	s += "  " + zstyle.MutedText.Render(fmt.Sprintf("%s · %d pts", m.stamp.VerificationMethod, m.stamp.Points)) + "\n\n"

	for i, step := range m.steps {
		switch {
		case i < m.stage || (m.done && m.err == nil && i <= m.stage):
			s += "  " + zstyle.StatusOK.Render("✓") + " " + step.Title + "\n"
		case i == m.stage && !m.done:
			s += "  " + m.spinner.View() + " " + step.Title + "\n"
			s += "    " + zstyle.MutedText.Render(step.Detail) + "\n"
		default:
			s += "  " + zstyle.MutedText.Render("· "+step.Title) + "\n"
		}
	}

	s += "\n  " + m.bar.ViewAs(m.fraction()) + "\n\n"
	s += "  " + m.viewOutcome() + "\n"
	return s
}

func (m verifyModel) fraction() float64 {
	if len(m.steps) == 0 {
		return 0
	}
	if m.done && m.err == nil {
		return 1
	}
	return float64(m.stage+1) / float64(len(m.steps)+1)
}

func (m verifyModel) viewOutcome() string {
	if !m.done {
		return zstyle.MutedText.Render("verifying...")
	}

	switch {
	case errors.Is(m.err, verify.ErrCancelled):
		return zstyle.StatusWarn.Render("verification cancelled")
	case m.err != nil:
		return zstyle.StatusErr.Render(m.err.Error())
	case !m.result.Success:
		return zstyle.StatusErr.Render("denied: " + m.result.DenialReason)
	}

	s := zstyle.StatusOK.Render(fmt.Sprintf("claimed %s (+%d points)", m.stamp.Title, m.stamp.Points))
	if m.result.ProofHash != "" {
		s += "\n  " + zstyle.MutedText.Render("proof "+truncate(m.result.ProofHash, 24))
	}
	return s
}
