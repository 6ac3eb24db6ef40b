package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/credential"
)

// categoryTabs is the tab cycle for the category filter.
var categoryTabs = []string{
	catalog.AllCategories,
	string(credential.CategoryWeb3),
	string(credential.CategoryWeb2),
	string(credential.CategoryPlatform),
}

// catalogModel lists the stamps that can still be claimed.
type catalogModel struct {
	query    func(catalog.Filter) []catalog.Stamp
	search   textinput.Model
	category int // index into categoryTabs
	stamps   []catalog.Stamp
	cursor   int
	flash    string
}

// claimMsg asks the root to start verifying a stamp.
type claimMsg struct {
	stamp catalog.Stamp
}

func newCatalogModel(query func(catalog.Filter) []catalog.Stamp) catalogModel {
	ti := textinput.New()
	ti.Placeholder = "search stamps"
	ti.Prompt = "/ "
	ti.CharLimit = 64
	ti.Width = 30

	m := catalogModel{query: query, search: ti}
	m.refresh()
	return m
}

func (m *catalogModel) refresh() {
	m.stamps = m.query(catalog.Filter{
		Search:   m.search.Value(),
		Category: categoryTabs[m.category],
	})
	if m.cursor >= len(m.stamps) {
		m.cursor = max(len(m.stamps)-1, 0)
	}
}

func (m catalogModel) Init() tea.Cmd {
	return nil
}

func (m catalogModel) Update(msg tea.Msg) (catalogModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.search.Focused() {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	if m.search.Focused() {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m catalogModel) handleSearchKey(msg tea.KeyMsg) (catalogModel, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc, tea.KeyEnter:
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refresh()
	return m, cmd
}

func (m catalogModel) handleKey(msg tea.KeyMsg) (catalogModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyBack) {
		return m, func() tea.Msg { return navigateMsg{view: viewDashboard} }
	}

	if key.Matches(msg, zstyle.KeyTab) {
		m.category = (m.category + 1) % len(categoryTabs)
		m.refresh()
		return m, nil
	}

	if msg.String() == "/" {
		m.search.Focus()
		return m, textinput.Blink
	}

	if len(m.stamps) == 0 {
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyUp) {
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyDown) {
		if m.cursor < len(m.stamps)-1 {
			m.cursor++
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyEnter) {
		s := m.stamps[m.cursor]
		return m, func() tea.Msg { return claimMsg{stamp: s} }
	}

	return m, nil
}

func (m catalogModel) View() string {
	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)

	s := "\n  " + m.search.View() + "\n\n  "
	for i, label := range categoryTabs {
		if i == m.category {
			s += zstyle.Highlight.Render("["+label+"]") + " "
		} else {
			s += zstyle.MutedText.Render(" "+label+" ") + " "
		}
	}
	s += "\n\n"

	if len(m.stamps) == 0 {
		s += "  " + zstyle.MutedText.Render("no stamps match") + "\n"
	}

	for i, st := range m.stamps {
		line := fmt.Sprintf("%s %-28s %-9s %4d pts", st.Icon, truncate(st.Title, 28), st.Category, st.Points)
		if i == m.cursor {
			s += "  " + accentStyle.Render("▸") + " " + line + "\n"
			s += "      " + zstyle.MutedText.Render(st.Requirements) + "\n"
		} else {
			s += "    " + line + "\n"
		}
	}

	s += "\n"
	if m.flash != "" {
		s += "  " + zstyle.StatusErr.Render(m.flash) + "\n"
	} else {
		s += "\n"
	}

	return s
}
