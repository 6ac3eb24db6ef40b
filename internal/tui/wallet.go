package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/wallet"
)

// walletModel connects the simulated wallet and mints the score.
type walletModel struct {
	account   wallet.Account
	connected bool
	balance   string
	score     int
	busy      string
	spinner   spinner.Model
	mints     []wallet.Mint
	errMsg    string
}

// walletConnectMsg asks the root to connect the wallet.
type walletConnectMsg struct{}

// walletDisconnectMsg asks the root to disconnect the wallet.
type walletDisconnectMsg struct{}

// walletMintMsg asks the root to mint the current score.
type walletMintMsg struct{}

// walletStatusMsg carries the wallet state after connect or disconnect.
type walletStatusMsg struct {
	account   wallet.Account
	connected bool
	balance   string
	err       error
}

// walletMintedMsg carries a mint outcome.
type walletMintedMsg struct {
	mint wallet.Mint
	err  error
}

func newWalletModel(w *wallet.Wallet, score int) walletModel {
	m := walletModel{
		score: score,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
		),
	}
	m.account, m.connected = w.Account()
	return m
}

func (m walletModel) Init() tea.Cmd {
	return nil
}

func (m walletModel) Update(msg tea.Msg) (walletModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case walletStatusMsg:
		m.busy = ""
		m.errMsg = ""
		if msg.err != nil && !msg.connected {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.account = msg.account
		m.connected = msg.connected
		m.balance = msg.balance
		if !m.connected {
			m.balance = ""
		}
		return m, nil

	case walletMintedMsg:
		m.busy = ""
		m.errMsg = ""
		if msg.err != nil {
			m.errMsg = mintError(msg.err)
			return m, nil
		}
		m.mints = append(m.mints, msg.mint)
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func mintError(err error) string {
	if errors.Is(err, wallet.ErrNotConnected) {
		return "connect the wallet first"
	}
	return err.Error()
}

func (m walletModel) handleKey(msg tea.KeyMsg) (walletModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyBack) {
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }
	}

	if m.busy != "" {
		return m, nil
	}

	switch msg.String() {
	case "c":
		if m.connected {
			return m, nil
		}
		m.busy = "connecting"
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg { return walletConnectMsg{} })
	case "d":
		if !m.connected {
			return m, nil
		}
		return m, func() tea.Msg { return walletDisconnectMsg{} }
	case "m":
		m.busy = "minting"
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg { return walletMintMsg{} })
	}

	return m, nil
}

func (m walletModel) View() string {
	s := "\n"

	if m.connected {
		s += m.fieldLine("status", zstyle.StatusOK.Render("connected"))
		s += m.fieldLine("address", m.account.Address)
		s += m.fieldLine("moca id", m.account.MocaID)
		if m.balance != "" {
			s += m.fieldLine("balance", m.balance+" MOCA")
		}
	} else {
		s += m.fieldLine("status", zstyle.MutedText.Render("not connected"))
	}
	s += m.fieldLine("score", fmt.Sprintf("%d", m.score))

	if len(m.mints) > 0 {
		s += "\n  " + zstyle.Subtitle.Render("minted") + "\n"
		for _, mint := range m.mints {
			s += fmt.Sprintf("  #%d  score %d  %s\n", mint.TokenID, mint.Score, zstyle.MutedText.Render(truncate(mint.TxHash, 24)))
		}
	}

	s += "\n"
	switch {
	case m.busy != "":
		s += "  " + m.spinner.View() + " " + zstyle.MutedText.Render(m.busy+"...") + "\n"
	case m.errMsg != "":
		s += "  " + zstyle.StatusErr.Render(m.errMsg) + "\n"
	default:
		s += "\n"
	}

	return s
}

func (m walletModel) fieldLine(label, value string) string {
	l := zstyle.MutedText.Render(fmt.Sprintf("  %-10s", label))
	return fmt.Sprintf("  %s %s\n", l, value)
}
