package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/mocaport/internal/config"
	"github.com/zarlcorp/mocaport/internal/logger"
	"github.com/zarlcorp/mocaport/internal/storage"
	"github.com/zarlcorp/mocaport/internal/verify"
)

// helpers

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func specialKey(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func enterKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func escKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEsc}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Verification.TimeScale = 0
	return cfg
}

// newTestModel builds a root model over store with instant delays.
func newTestModel(t *testing.T, store *storage.Store, p verify.Provider) Model {
	t.Helper()
	return newTestModelWith(t, testConfig(), store, p)
}

func newTestModelWith(t *testing.T, cfg config.Config, store *storage.Store, p verify.Provider) Model {
	t.Helper()
	return New("1.0", t.TempDir(), cfg, false,
		WithStoreOpener(func(string, string) (*storage.Store, error) { return store, nil }),
		WithProvider(p),
		WithLogger(logger.Discard()),
	)
}

// update feeds msg to m and returns the root model.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	result, cmd := m.Update(msg)
	rm, ok := result.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", result)
	}
	return rm, cmd
}

// run executes cmd and feeds its message back into m.
func run(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return update(t, m, cmd())
}

// signedIn unlocks the store and signs in with google.
func signedIn(t *testing.T, store *storage.Store, p verify.Provider) Model {
	t.Helper()
	m := newTestModel(t, store, p)
	m, _ = update(t, m, passwordSubmitMsg{password: "pw"})
	if m.active != viewLogin {
		t.Fatalf("active = %d, want viewLogin", m.active)
	}

	m, cmd := update(t, m, loginMsg{provider: "google"})
	m, _ = run(t, m, cmd)
	if m.active != viewDashboard {
		t.Fatalf("active = %d, want viewDashboard", m.active)
	}
	return m
}

// finishClaim drives the verify view until the attempt reports its outcome.
func finishClaim(t *testing.T, m Model) Model {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := waitForEvent(m.verify.attempt)()
		m, _ = update(t, m, msg)
		if _, ok := msg.(verifyDoneMsg); ok {
			return m
		}
	}
	t.Fatal("attempt did not finish")
	return m
}

// root model tests

func TestRootStartsAtPassword(t *testing.T) {
	m := New("1.0", t.TempDir(), testConfig(), true)
	if m.active != viewPassword {
		t.Errorf("active = %d, want viewPassword", m.active)
	}
}

func TestRootUnlockWithoutSessionShowsLogin(t *testing.T) {
	m := newTestModel(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	m, _ = update(t, m, passwordSubmitMsg{password: "pw"})

	if m.active != viewLogin {
		t.Fatalf("active = %d, want viewLogin", m.active)
	}
	if !strings.Contains(m.View(), "Continue with Google") {
		t.Error("login view should list providers")
	}
}

func TestRootUnlockError(t *testing.T) {
	m := New("1.0", t.TempDir(), testConfig(), false,
		WithStoreOpener(func(string, string) (*storage.Store, error) {
			return nil, errors.New("wrong password")
		}),
	)

	m, _ = update(t, m, passwordSubmitMsg{password: "bad"})
	if m.active != viewPassword {
		t.Errorf("active = %d, want viewPassword", m.active)
	}
	if !strings.Contains(m.View(), "wrong password") {
		t.Error("password view should show the open error")
	}
}

func TestRootLoginShowsDashboard(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	view := m.View()
	for _, want := range []string{"Dashboard", "John Doe", "welcome to mocaport", "Newcomer", "no credentials yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard should contain %q", want)
		}
	}
}

func TestRootRestoresSession(t *testing.T) {
	store := storage.NewMemory()
	first := signedIn(t, store, verify.FixedProvider{Success: true})

	m := newTestModel(t, store, verify.FixedProvider{Success: true})
	m, _ = update(t, m, passwordSubmitMsg{password: "pw"})

	if m.active != viewDashboard {
		t.Fatalf("active = %d, want viewDashboard", m.active)
	}
	if m.dashboard.identity.MocaID != first.dashboard.identity.MocaID {
		t.Errorf("moca id = %q, want %q", m.dashboard.identity.MocaID, first.dashboard.identity.MocaID)
	}
}

func TestRootDismissTour(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	m, cmd := update(t, m, keyMsg('h'))
	m, _ = run(t, m, cmd)

	if m.dashboard.identity.IsFirstTime {
		t.Error("tour should be dismissed")
	}
	if strings.Contains(m.View(), "welcome to mocaport") {
		t.Error("dashboard should hide the tour")
	}
}

func TestRootClaimFlow(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	m, cmd := update(t, m, keyMsg('c'))
	m, _ = run(t, m, cmd)
	if m.active != viewCatalog {
		t.Fatalf("active = %d, want viewCatalog", m.active)
	}

	// search narrows to the github stamp
	m, _ = update(t, m, keyMsg('/'))
	for _, r := range "github" {
		m, _ = update(t, m, keyMsg(r))
	}
	m, _ = update(t, m, enterKey()) // leaves the search box
	if len(m.catalog.stamps) != 1 {
		t.Fatalf("stamps = %d, want 1", len(m.catalog.stamps))
	}

	m, cmd = update(t, m, enterKey())
	m, _ = run(t, m, cmd)
	if m.active != viewVerify {
		t.Fatalf("active = %d, want viewVerify", m.active)
	}

	m = finishClaim(t, m)
	if !strings.Contains(m.View(), "claimed GitHub Contributor (+40 points)") {
		t.Error("verify view should show the claim")
	}

	m, cmd = update(t, m, keyMsg('x'))
	m, _ = run(t, m, cmd)
	if m.active != viewDashboard {
		t.Fatalf("active = %d, want viewDashboard", m.active)
	}
	if len(m.dashboard.credentials) != 1 {
		t.Fatalf("credentials = %d, want 1", len(m.dashboard.credentials))
	}
	if m.dashboard.rep.Score != 40 {
		t.Errorf("score = %d, want 40", m.dashboard.rep.Score)
	}

	// a held stamp drops out of the catalog
	m, _ = update(t, m, navigateMsg{view: viewCatalog})
	for _, s := range m.catalog.stamps {
		if s.ID == "github-contributor" {
			t.Error("claimed stamp should not be offered again")
		}
	}
}

func TestRootClaimDenied(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: false, Reason: "no qualifying tokens"})
	m, _ = update(t, m, navigateMsg{view: viewCatalog})

	stamp, _ := m.portal.Catalog().Find("nft-holder")
	m, _ = update(t, m, claimMsg{stamp: stamp})
	m = finishClaim(t, m)

	if !strings.Contains(m.View(), "denied: no qualifying tokens") {
		t.Error("verify view should show the denial")
	}
	if n := len(m.portal.Credentials("")); n != 0 {
		t.Errorf("credentials = %d, want 0", n)
	}
}

func TestRootClaimCancel(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true, Delay: time.Hour})
	m, _ = update(t, m, navigateMsg{view: viewCatalog})

	stamp, _ := m.portal.Catalog().Find("github-contributor")
	m, _ = update(t, m, claimMsg{stamp: stamp})

	m, _ = update(t, m, escKey())
	m = finishClaim(t, m)

	if !strings.Contains(m.View(), "verification cancelled") {
		t.Error("verify view should show the cancellation")
	}
	if n := len(m.portal.Credentials("")); n != 0 {
		t.Errorf("credentials = %d, want 0", n)
	}
}

func TestRootClaimTwiceFlashes(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	stamp, _ := m.portal.Catalog().Find("github-contributor")

	m, _ = update(t, m, navigateMsg{view: viewCatalog})
	m, _ = update(t, m, claimMsg{stamp: stamp})
	m = finishClaim(t, m)

	m, _ = update(t, m, navigateMsg{view: viewCatalog})
	m, cmd := update(t, m, claimMsg{stamp: stamp})
	if m.active != viewCatalog {
		t.Errorf("active = %d, want viewCatalog", m.active)
	}
	if cmd == nil {
		t.Error("should schedule the flash to clear")
	}
	if !strings.Contains(m.catalog.flash, "already claimed") {
		t.Errorf("flash = %q, want already claimed", m.catalog.flash)
	}
}

func TestRootForget(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	stamp, _ := m.portal.Catalog().Find("github-contributor")
	m, _ = update(t, m, claimMsg{stamp: stamp})
	m = finishClaim(t, m)
	m, _ = update(t, m, navigateMsg{view: viewDashboard})

	m, _ = update(t, m, keyMsg('d'))
	m, cmd := update(t, m, keyMsg('y'))
	m, _ = run(t, m, cmd)

	if m.dashboard.flash != "credential removed" {
		t.Errorf("flash = %q, want credential removed", m.dashboard.flash)
	}
	if len(m.dashboard.credentials) != 0 {
		t.Errorf("credentials = %d, want 0", len(m.dashboard.credentials))
	}
}

func TestRootRequestFlow(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	stamp, _ := m.portal.Catalog().Find("github-contributor")
	m, _ = update(t, m, claimMsg{stamp: stamp})
	m = finishClaim(t, m)
	m, _ = update(t, m, navigateMsg{view: viewDashboard})

	m, cmd := update(t, m, keyMsg('r'))
	m, _ = run(t, m, cmd)
	if m.active != viewRequest {
		t.Fatalf("active = %d, want viewRequest", m.active)
	}
	if !strings.Contains(m.View(), defaultRequester) {
		t.Error("request view should name the requester")
	}

	m, _ = update(t, m, keyMsg('y'))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.request.req.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	m, _ = update(t, m, requestChangedMsg{req: m.request.req})
	if m.request.status.State != verify.RequestEligible {
		t.Fatalf("state = %s, want eligible", m.request.status.State)
	}

	m, _ = update(t, m, keyMsg('c'))
	if m.request.status.State != verify.RequestClaimed {
		t.Errorf("state = %s, want claimed", m.request.status.State)
	}
	if !strings.Contains(m.View(), "tx 0x") {
		t.Error("request view should show the transaction")
	}
}

func TestRootRequestBackDenies(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	m, _ = update(t, m, requestMsg{title: "GitHub Contributor"})
	r := m.request.req

	m, cmd := update(t, m, escKey())
	m, _ = run(t, m, cmd)

	if m.active != viewDashboard {
		t.Errorf("active = %d, want viewDashboard", m.active)
	}
	if st := r.Status(); st.State != verify.RequestDenied || st.Reason != verify.ReasonDenied {
		t.Errorf("status = %s %q, want denied by user", st.State, st.Reason)
	}
}

func TestRootWallet(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	m, cmd := update(t, m, keyMsg('w'))
	m, _ = run(t, m, cmd)
	if m.active != viewWallet {
		t.Fatalf("active = %d, want viewWallet", m.active)
	}

	// minting needs a connection
	m, _ = run(t, m, m.walletMintCmd())
	if !strings.Contains(m.View(), "connect the wallet first") {
		t.Error("wallet view should ask for a connection")
	}

	m, _ = update(t, m, walletConnectMsg{})
	m, _ = run(t, m, m.walletConnectCmd())
	if !m.wallet.connected {
		t.Fatal("wallet should be connected")
	}
	if !strings.Contains(m.View(), "0x") {
		t.Error("wallet view should show the address")
	}

	m, _ = run(t, m, m.walletMintCmd())
	if len(m.wallet.mints) != 1 {
		t.Fatalf("mints = %d, want 1", len(m.wallet.mints))
	}

	m, _ = update(t, m, walletDisconnectMsg{})
	if m.wallet.connected {
		t.Error("wallet should be disconnected")
	}
	if m.portal.Wallet().Connected() {
		t.Error("portal wallet should be disconnected")
	}
}

func TestRootAnchorCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.OnChainRate = 1
	m := newTestModelWith(t, cfg, storage.NewMemory(), verify.FixedProvider{Success: true})
	m, _ = update(t, m, passwordSubmitMsg{password: "pw"})
	m, cmd := update(t, m, loginMsg{provider: "google"})
	m, _ = run(t, m, cmd)

	a, err := m.portal.Claim(context.Background(), "github-contributor")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := a.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	cred := m.portal.Credentials("")[0]

	m, _ = update(t, m, viewCredentialMsg{credential: cred})
	if m.active != viewDetail {
		t.Fatalf("active = %d, want viewDetail", m.active)
	}

	// without a wallet the check is refused
	m, cmd = update(t, m, keyMsg('o'))
	m, cmd = run(t, m, cmd) // anchorMsg
	m, _ = run(t, m, cmd)   // anchorResultMsg
	if m.detail.flash != "connect the wallet first" {
		t.Errorf("flash = %q", m.detail.flash)
	}

	if _, err := m.portal.Wallet().Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	m, cmd = update(t, m, keyMsg('o'))
	m, cmd = run(t, m, cmd)
	m, _ = run(t, m, cmd)

	if m.detail.flash != "proof confirmed on chain" {
		t.Errorf("flash = %q", m.detail.flash)
	}
	if got := m.detail.credential.Metadata["on_chain_verified"]; got != "true" {
		t.Errorf("on_chain_verified = %q, want true", got)
	}
	if !strings.Contains(m.View(), "anchor_tx") {
		t.Error("detail view should show the anchor transaction")
	}
}

func TestRootLogout(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	m, cmd := update(t, m, keyMsg('x'))
	m, _ = run(t, m, cmd)
	if m.active != viewLogout {
		t.Fatalf("active = %d, want viewLogout", m.active)
	}
	if !strings.Contains(m.View(), "sign out John Doe?") {
		t.Error("logout view should ask for confirmation")
	}

	m, cmd = update(t, m, keyMsg('y'))
	m, cmd = run(t, m, cmd) // logoutConfirmMsg
	m, _ = run(t, m, cmd)   // logoutResultMsg

	if !strings.Contains(m.View(), "signed out") {
		t.Error("logout view should show the summary")
	}
	if _, ok := m.portal.Identity(); ok {
		t.Error("identity should be cleared")
	}

	m, cmd = update(t, m, keyMsg('x'))
	m, _ = run(t, m, cmd)
	if m.active != viewLogin {
		t.Errorf("active = %d, want viewLogin", m.active)
	}
}

func TestRootLogoutCancel(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})
	m, _ = update(t, m, logoutStartMsg{})

	m, cmd := update(t, m, keyMsg('n'))
	m, _ = run(t, m, cmd)

	if m.active != viewDashboard {
		t.Errorf("active = %d, want viewDashboard", m.active)
	}
	if _, ok := m.portal.Identity(); !ok {
		t.Error("identity should be kept")
	}
}

func TestRootQuitFromPassword(t *testing.T) {
	m := New("1.0", t.TempDir(), testConfig(), false)
	_, cmd := m.Update(specialKey(tea.KeyCtrlC))
	if cmd == nil {
		t.Fatal("ctrl+c should quit from password view")
	}
}

func TestRootQuitFromDashboard(t *testing.T) {
	m := signedIn(t, storage.NewMemory(), verify.FixedProvider{Success: true})

	_, cmd := m.Update(keyMsg('q'))
	if cmd == nil {
		t.Fatal("q should quit from dashboard")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce QuitMsg")
	}
}

func TestViewTitles(t *testing.T) {
	for _, id := range []viewID{viewDashboard, viewDetail, viewCatalog, viewVerify, viewRequest, viewWallet, viewLogout} {
		if viewTitle(id) == "" {
			t.Errorf("view %d has no title", id)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is t…"},
	}

	for _, tt := range tests {
		got := truncate(tt.input, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}
