// Package tui implements the root Bubble Tea model for mocaport.
package tui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/config"
	"github.com/zarlcorp/mocaport/internal/portal"
	"github.com/zarlcorp/mocaport/internal/storage"
	"github.com/zarlcorp/mocaport/internal/verify"
)

type viewID int

const (
	viewPassword viewID = iota
	viewLogin
	viewDashboard
	viewDetail
	viewCatalog
	viewVerify
	viewRequest
	viewWallet
	viewLogout
)

// defaultRequester is the dApp that sends verification requests.
const defaultRequester = "MocaAirdrop"

// accent is the highlight colour shared by every view.
var accent = zstyle.ZburnAccent

// StoreOpener opens the store in dir with password.
type StoreOpener func(dir, password string) (*storage.Store, error)

// Option configures the root model.
type Option func(*Model)

// WithStoreOpener replaces the encrypted store.
func WithStoreOpener(fn StoreOpener) Option {
	return func(m *Model) { m.open = fn }
}

// WithProvider replaces the seeded outcome provider.
func WithProvider(p verify.Provider) Option {
	return func(m *Model) { m.provider = p }
}

// WithLogger sets the logger handed to the portal.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithContext sets the context that bounds background work.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// Model is the root TUI model.
type Model struct {
	version  string
	dataDir  string
	cfg      config.Config
	firstRun bool
	ctx      context.Context
	log      *slog.Logger
	open     StoreOpener
	provider verify.Provider
	portal   *portal.Portal

	active    viewID
	password  passwordModel
	login     loginModel
	dashboard dashboardModel
	detail    detailModel
	catalog   catalogModel
	verify    verifyModel
	request   requestModel
	wallet    walletModel
	logout    logoutModel

	// terminal dimensions
	width  int
	height int
}

// New creates the root TUI model.
func New(version, dataDir string, cfg config.Config, firstRun bool, opts ...Option) Model {
	m := Model{
		version:  version,
		dataDir:  dataDir,
		cfg:      cfg,
		firstRun: firstRun,
		ctx:      context.Background(),
		log:      slog.Default(),
		open:     storage.Open,
		active:   viewPassword,
		password: newPasswordModel(firstRun, dataDir),
		login:    newLoginModel(version),
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.password.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case passwordSubmitMsg:
		return m.openStore(msg.password)

	case navigateMsg:
		return m.navigate(msg.view)

	case loginMsg:
		return m, m.loginCmd(msg.provider)

	case loginResultMsg:
		if msg.err != nil {
			m.login, _ = m.login.Update(msg)
			return m, nil
		}
		return m.navigate(viewDashboard)

	case claimMsg:
		return m.startClaim(msg.stamp)

	case verifyEventMsg, verifyDoneMsg:
		var cmd tea.Cmd
		m.verify, cmd = m.verify.Update(msg)
		return m, cmd

	case requestMsg:
		return m.startRequest(msg.title)

	case requestChangedMsg, requestTickMsg:
		var cmd tea.Cmd
		m.request, cmd = m.request.Update(msg)
		return m, cmd

	case forgetMsg:
		return m.handleForget(msg.id)

	case dismissTourMsg:
		if err := m.portal.DismissTour(); err != nil {
			m.log.Warn("dismiss tour", "err", err)
		}
		return m.navigate(viewDashboard)

	case anchorMsg:
		return m, m.anchorCmd(msg.id)

	case anchorResultMsg:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case viewCredentialMsg:
		m.detail = newDetailModel(msg.credential)
		m.active = viewDetail
		return m, nil

	case logoutStartMsg:
		id, _ := m.portal.Identity()
		m.logout = newLogoutModel(id, m.portal.LogoutPlan())
		m.active = viewLogout
		return m, nil

	case logoutConfirmMsg:
		p, ctx := m.portal, m.ctx
		return m, func() tea.Msg {
			return logoutResultMsg{result: p.Logout(ctx)}
		}

	case logoutResultMsg:
		var cmd tea.Cmd
		m.logout, cmd = m.logout.Update(msg)
		return m, cmd

	case walletConnectMsg:
		return m, m.walletConnectCmd()

	case walletDisconnectMsg:
		m.portal.Wallet().Disconnect()
		m.wallet, _ = m.wallet.Update(walletStatusMsg{})
		return m, nil

	case walletMintMsg:
		return m, m.walletMintCmd()

	case walletStatusMsg, walletMintedMsg:
		var cmd tea.Cmd
		m.wallet, cmd = m.wallet.Update(msg)
		return m, cmd
	}

	return m.updateActive(msg)
}

func (m Model) View() string {
	// password and login include the logo, render directly
	switch m.active {
	case viewPassword:
		return m.password.View()
	case viewLogin:
		return m.login.View()
	}

	// all other views: header + separator + content + footer
	var content string
	switch m.active {
	case viewDashboard:
		content = m.dashboard.View()
	case viewDetail:
		content = m.detail.View()
	case viewCatalog:
		content = m.catalog.View()
	case viewVerify:
		content = m.verify.View()
	case viewRequest:
		content = m.request.View()
	case viewWallet:
		content = m.wallet.View()
	case viewLogout:
		content = m.logout.View()
	}

	header := zstyle.RenderHeader("mocaport", viewTitle(m.active), accent)
	sep := zstyle.RenderSeparator(m.width)
	footer := zstyle.RenderFooter(m.helpFor(m.active))

	return "\n" + header + "\n" + sep + "\n" + content + "\n" + footer + "\n"
}

// viewTitle returns the display title for each view.
func viewTitle(id viewID) string {
	switch id {
	case viewDashboard:
		return "Dashboard"
	case viewDetail:
		return "Credential"
	case viewCatalog:
		return "Claim Stamps"
	case viewVerify:
		return "Verification"
	case viewRequest:
		return "Verification Request"
	case viewWallet:
		return "Wallet"
	case viewLogout:
		return "Sign Out"
	}
	return ""
}

// helpFor returns keybinding pairs for each view's footer.
func (m Model) helpFor(id viewID) []zstyle.HelpPair {
	switch id {
	case viewDashboard:
		return []zstyle.HelpPair{
			{Key: "j/k", Desc: "navigate"},
			{Key: "enter", Desc: "view"},
			{Key: "c", Desc: "claim"},
			{Key: "r", Desc: "request"},
			{Key: "w", Desc: "wallet"},
			{Key: "x", Desc: "sign out"},
			{Key: "q", Desc: "quit"},
		}
	case viewDetail:
		return []zstyle.HelpPair{
			{Key: "p", Desc: "copy proof"},
			{Key: "o", Desc: "verify on chain"},
			{Key: "r", Desc: "request"},
			{Key: "d", Desc: "forget"},
			{Key: "esc", Desc: "back"},
			{Key: "q", Desc: "quit"},
		}
	case viewCatalog:
		return []zstyle.HelpPair{
			{Key: "/", Desc: "search"},
			{Key: "tab", Desc: "category"},
			{Key: "enter", Desc: "claim"},
			{Key: "esc", Desc: "back"},
		}
	case viewVerify:
		if m.verify.finished() {
			return []zstyle.HelpPair{{Key: "any key", Desc: "continue"}}
		}
		return []zstyle.HelpPair{{Key: "esc", Desc: "cancel"}}
	case viewRequest:
		return m.request.help()
	case viewWallet:
		return []zstyle.HelpPair{
			{Key: "c", Desc: "connect"},
			{Key: "d", Desc: "disconnect"},
			{Key: "m", Desc: "mint"},
			{Key: "esc", Desc: "back"},
			{Key: "q", Desc: "quit"},
		}
	case viewLogout:
		return []zstyle.HelpPair{
			{Key: "y", Desc: "confirm"},
			{Key: "n", Desc: "cancel"},
			{Key: "q", Desc: "quit"},
		}
	}
	return nil
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.active {
	case viewPassword:
		m.password, cmd = m.password.Update(msg)
	case viewLogin:
		m.login, cmd = m.login.Update(msg)
	case viewDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case viewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case viewCatalog:
		m.catalog, cmd = m.catalog.Update(msg)
	case viewVerify:
		m.verify, cmd = m.verify.Update(msg)
	case viewRequest:
		m.request, cmd = m.request.Update(msg)
	case viewWallet:
		m.wallet, cmd = m.wallet.Update(msg)
	case viewLogout:
		m.logout, cmd = m.logout.Update(msg)
	}

	return m, cmd
}

func (m Model) openStore(password string) (tea.Model, tea.Cmd) {
	s, err := m.open(m.dataDir, password)
	if err != nil {
		m.password, _ = m.password.Update(passwordErrMsg{err: err})
		return m, nil
	}

	opts := []portal.Option{portal.WithLogger(m.log)}
	if m.provider != nil {
		opts = append(opts, portal.WithProvider(m.provider))
	}
	m.portal = portal.Open(s, m.cfg, opts...)

	if _, ok := m.portal.Restore(m.ctx); ok {
		return m.navigate(viewDashboard)
	}
	return m.navigate(viewLogin)
}

func (m Model) navigate(view viewID) (tea.Model, tea.Cmd) {
	switch view {
	case viewLogin:
		m.login = newLoginModel(m.version)
		m.active = viewLogin
		return m, tea.ClearScreen

	case viewDashboard:
		id, ok := m.portal.Identity()
		if !ok {
			return m.navigate(viewLogin)
		}
		flash := m.dashboard.flash
		m.dashboard = newDashboardModel(id, m.portal.Reputation(), m.portal.Credentials(""))
		m.dashboard.flash = flash
		m.active = viewDashboard
		return m, tea.ClearScreen

	case viewDetail:
		m.active = viewDetail
		return m, tea.ClearScreen

	case viewCatalog:
		m.catalog = newCatalogModel(m.portal.Available)
		m.active = viewCatalog
		return m, tea.ClearScreen

	case viewWallet:
		m.wallet = newWalletModel(m.portal.Wallet(), m.portal.Reputation().Score)
		m.active = viewWallet
		return m, tea.ClearScreen
	}

	return m, nil
}

func (m Model) loginCmd(provider string) tea.Cmd {
	p, ctx := m.portal, m.ctx
	return func() tea.Msg {
		id, err := p.Login(ctx, provider)
		return loginResultMsg{identity: id, err: err}
	}
}

func (m Model) startClaim(stamp catalog.Stamp) (tea.Model, tea.Cmd) {
	a, err := m.portal.Claim(m.ctx, stamp.ID)
	if err != nil {
		m.catalog.flash = "claim: " + err.Error()
		return m, clearFlashAfter()
	}

	m.verify = newVerifyModel(stamp, a)
	m.active = viewVerify
	return m, tea.Batch(tea.ClearScreen, m.verify.Init())
}

func (m Model) startRequest(title string) (tea.Model, tea.Cmd) {
	r, err := m.portal.Request(defaultRequester, title)
	if err != nil {
		m.dashboard.flash = "request: " + err.Error()
		return m, clearFlashAfter()
	}

	m.request = newRequestModel(m.ctx, r)
	m.active = viewRequest
	return m, tea.Batch(tea.ClearScreen, m.request.Init())
}

func (m Model) handleForget(id string) (tea.Model, tea.Cmd) {
	if err := m.portal.Forget(id); err != nil {
		m.dashboard.flash = "forget: " + err.Error()
	} else {
		m.dashboard.flash = "credential removed"
	}
	next, _ := m.navigate(viewDashboard)
	return next, clearFlashAfter()
}

func (m Model) walletConnectCmd() tea.Cmd {
	w, ctx := m.portal.Wallet(), m.ctx
	return func() tea.Msg {
		acct, err := w.Connect(ctx)
		if err != nil {
			return walletStatusMsg{err: err}
		}
		bal, err := w.Balance(ctx)
		return walletStatusMsg{account: acct, connected: true, balance: bal, err: err}
	}
}

func (m Model) anchorCmd(id string) tea.Cmd {
	p, ctx := m.portal, m.ctx
	return func() tea.Msg {
		out, err := p.AnchorCredential(ctx, id)
		res := anchorResultMsg{verified: out.Verified, err: err}
		for _, c := range p.Credentials("") {
			if c.ID == id {
				res.credential = c
			}
		}
		return res
	}
}

func (m Model) walletMintCmd() tea.Cmd {
	p, ctx := m.portal, m.ctx
	return func() tea.Msg {
		mint, err := p.MintReputation(ctx)
		return walletMintedMsg{mint: mint, err: err}
	}
}

// Close cleans up resources. Call after the program exits.
func (m Model) Close() {
	if m.portal == nil {
		return
	}
	if a := m.verify.attempt; a != nil {
		a.Cancel()
	}
	if err := m.portal.Close(); err != nil {
		m.log.Warn("close store", "err", err)
	}
}
