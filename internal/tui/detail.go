package tui

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/credential"
	"github.com/zarlcorp/mocaport/internal/wallet"
)

// detailModel displays a single held credential.
type detailModel struct {
	credential credential.Credential
	flash      string
	confirm    bool
	anchoring  bool
}

// anchorMsg asks the root to check a credential's proof on chain.
type anchorMsg struct {
	id string
}

// anchorResultMsg carries the on-chain check and the updated credential.
type anchorResultMsg struct {
	credential credential.Credential
	verified   bool
	err        error
}

func newDetailModel(c credential.Credential) detailModel {
	return detailModel{credential: c}
}

func (m detailModel) Init() tea.Cmd {
	return nil
}

func (m detailModel) Update(msg tea.Msg) (detailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case anchorResultMsg:
		m.anchoring = false
		switch {
		case errors.Is(msg.err, wallet.ErrNotConnected):
			m.flash = "connect the wallet first"
		case msg.err != nil:
			m.flash = "anchor: " + msg.err.Error()
		case msg.verified:
			m.credential = msg.credential
			m.flash = "proof confirmed on chain"
		default:
			m.credential = msg.credential
			m.flash = "proof not confirmed"
		}
		return m, clearFlashAfter()

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	return m, nil
}

func (m detailModel) handleKey(msg tea.KeyMsg) (detailModel, tea.Cmd) {
	if m.confirm {
		return m.handleConfirm(msg)
	}

	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyBack) {
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }
	}

	switch msg.String() {
	case "p":
		proof := m.credential.Metadata["proof_hash"]
		if proof == "" {
			m.flash = "no proof recorded"
			return m, clearFlashAfter()
		}
		if err := copyToClipboard(proof); err != nil {
			m.flash = "copy: " + err.Error()
			return m, clearFlashAfter()
		}
		m.flash = "proof copied"
		return m, clearFlashAfter()

	case "r":
		title := m.credential.Title
		return m, func() tea.Msg { return requestMsg{title: title} }

	case "o":
		if m.anchoring {
			return m, nil
		}
		m.anchoring = true
		m.flash = "checking on chain..."
		id := m.credential.ID
		return m, func() tea.Msg { return anchorMsg{id: id} }

	case "d":
		m.confirm = true
		return m, nil
	}

	return m, nil
}

func (m detailModel) handleConfirm(msg tea.KeyMsg) (detailModel, tea.Cmd) {
	m.confirm = false
	if msg.String() != "y" {
		return m, nil
	}
	id := m.credential.ID
	return m, func() tea.Msg { return forgetMsg{id: id} }
}

func (m detailModel) View() string {
	c := m.credential

	s := "\n  " + zstyle.Subtitle.Render(c.Icon+" "+c.Title) + "\n"
	if c.Description != "" {
		s += "  " + zstyle.MutedText.Render(c.Description) + "\n"
	}
	s += "\n"

	status := zstyle.StatusOK.Render("verified")
	if !c.IsVerified {
		status = zstyle.StatusWarn.Render("unverified")
	}

	s += m.fieldLine("status", status)
	s += m.fieldLine("category", string(c.Category))
	s += m.fieldLine("points", fmt.Sprintf("%d", c.Points))
	s += m.fieldLine("method", string(c.VerificationMethod))
	s += m.fieldLine("issuer", c.Issuer)
	s += m.fieldLine("issued", c.IssuanceDate.Format(time.RFC3339))

	if len(c.Metadata) > 0 {
		s += "\n"
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			s += m.fieldLine(k, c.Metadata[k])
		}
	}

	s += "\n  " + zstyle.MutedText.Render(c.ID) + "\n\n"

	switch {
	case m.confirm:
		s += "  " + zstyle.StatusWarn.Render(fmt.Sprintf("forget %q? (y/n)", c.Title)) + "\n"
	case m.flash != "":
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	default:
		s += "\n"
	}

	return s
}

func (m detailModel) fieldLine(label, value string) string {
	l := zstyle.MutedText.Render(fmt.Sprintf("  %-18s", label))
	return fmt.Sprintf("  %s %s\n", l, value)
}
