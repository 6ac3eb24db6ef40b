package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/verify"
)

const requestTick = 250 * time.Millisecond

// requestModel answers a dApp's verification request.
type requestModel struct {
	ctx    context.Context
	req    *verify.Request
	status verify.Status
	bar    progress.Model
	now    time.Time
	flash  string
}

// requestChangedMsg is sent after the request changes state.
type requestChangedMsg struct {
	req *verify.Request
}

// requestTickMsg refreshes the countdown and proof progress.
type requestTickMsg struct {
	req *verify.Request
	at  time.Time
}

func newRequestModel(ctx context.Context, r *verify.Request) requestModel {
	return requestModel{
		ctx:    ctx,
		req:    r,
		status: r.Status(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(gaugeWidth)),
		now:    time.Now(),
	}
}

func (m requestModel) Init() tea.Cmd {
	return m.watch()
}

// watch waits for the next transition and schedules a refresh. Settled
// requests only move on user input, so nothing is armed for them.
func (m requestModel) watch() tea.Cmd {
	if m.status.State.Settled() {
		return nil
	}
	r := m.req
	ch := r.Changed()
	return tea.Batch(
		func() tea.Msg {
			<-ch
			return requestChangedMsg{req: r}
		},
		tea.Tick(requestTick, func(t time.Time) tea.Msg {
			return requestTickMsg{req: r, at: t}
		}),
	)
}

func (m requestModel) Update(msg tea.Msg) (requestModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case requestChangedMsg:
		if msg.req != m.req {
			return m, nil
		}
		m.status = m.req.Status()
		if m.status.State.Settled() {
			return m, nil
		}
		r := m.req
		ch := r.Changed()
		return m, func() tea.Msg {
			<-ch
			return requestChangedMsg{req: r}
		}

	case requestTickMsg:
		if msg.req != m.req || m.status.State.Settled() {
			return m, nil
		}
		m.now = msg.at
		r := m.req
		return m, tea.Tick(requestTick, func(t time.Time) tea.Msg {
			return requestTickMsg{req: r, at: t}
		})

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	return m, nil
}

func (m requestModel) handleKey(msg tea.KeyMsg) (requestModel, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		_ = m.req.Deny()
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyBack) {
		if !m.status.State.Settled() {
			_ = m.req.Deny()
		}
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }
	}

	switch m.status.State {
	case verify.RequestRequesting:
		switch msg.String() {
		case "y":
			return m.apply(m.req.Approve(m.ctx))
		case "n":
			return m.apply(m.req.Deny())
		}

	case verify.RequestApproved, verify.RequestProofPending:
		if msg.String() == "n" {
			return m.apply(m.req.Deny())
		}

	case verify.RequestEligible:
		if msg.String() == "c" {
			if _, err := m.req.Claim(); err != nil {
				return m.apply(err)
			}
			m.status = m.req.Status()
			m.flash = "claimed"
			return m, clearFlashAfter()
		}

	case verify.RequestDenied:
		if msg.String() == "r" {
			if err := m.req.Reset(); err != nil {
				return m.apply(err)
			}
			next, _ := m.apply(m.req.Open())
			next.now = time.Now()
			return next, next.watch()
		}
	}

	return m, nil
}

// apply refreshes the status after a user action.
func (m requestModel) apply(err error) (requestModel, tea.Cmd) {
	m.status = m.req.Status()
	if err != nil {
		m.flash = err.Error()
		return m, clearFlashAfter()
	}
	return m, nil
}

func (m requestModel) help() []zstyle.HelpPair {
	switch m.status.State {
	case verify.RequestRequesting:
		return []zstyle.HelpPair{
			{Key: "y", Desc: "approve"},
			{Key: "n", Desc: "deny"},
			{Key: "esc", Desc: "back"},
		}
	case verify.RequestApproved, verify.RequestProofPending:
		return []zstyle.HelpPair{
			{Key: "n", Desc: "deny"},
			{Key: "esc", Desc: "back"},
		}
	case verify.RequestEligible:
		return []zstyle.HelpPair{
			{Key: "c", Desc: "claim"},
			{Key: "esc", Desc: "back"},
		}
	case verify.RequestDenied:
		return []zstyle.HelpPair{
			{Key: "r", Desc: "retry"},
			{Key: "esc", Desc: "back"},
		}
	}
	return []zstyle.HelpPair{{Key: "esc", Desc: "back"}}
}

func (m requestModel) View() string {
	st := m.status

	s := "\n  " + zstyle.Subtitle.Render(st.Requester) + " " +
		zstyle.MutedText.Render("requests proof of") + "\n"
	s += "  " + zstyle.Highlight.Render(st.Credential) + "\n\n"

	switch st.State {
	case verify.RequestRequesting:
		s += "  approve this request? (y/n)\n"
		if !st.ExpiresAt.IsZero() {
			left := max(st.ExpiresAt.Sub(m.now), 0).Round(time.Second)
			s += "  " + zstyle.MutedText.Render(fmt.Sprintf("expires in %s", left)) + "\n"
		}

	case verify.RequestApproved, verify.RequestProofPending:
		s += "  " + zstyle.MutedText.Render("generating proof...") + "\n"
		s += "  " + m.bar.ViewAs(m.proofFraction()) + "\n"

	case verify.RequestEligible:
		s += "  " + zstyle.StatusOK.Render("eligible") + "\n"
		s += "  " + zstyle.MutedText.Render("proof "+st.ProofHash) + "\n"
		s += "  press c to claim\n"

	case verify.RequestClaimed:
		s += "  " + zstyle.StatusOK.Render("claimed") + "\n"
		s += "  " + zstyle.MutedText.Render("tx "+st.TxHash) + "\n"

	case verify.RequestDenied:
		s += "  " + zstyle.StatusErr.Render("denied: "+st.Reason) + "\n"
	}

	s += "\n"
	if m.flash != "" {
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	} else {
		s += "\n"
	}
	return s
}

func (m requestModel) proofFraction() float64 {
	a := m.req.Attempt()
	if a == nil {
		return 0
	}
	stage, total := a.Progress()
	if total == 0 {
		return 0
	}
	return float64(stage+1) / float64(total+1)
}
