// Package tui is the interactive terminal browser: a query line, the
// matching intrinsics and the documentation of the selected one.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/filter"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/query"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/host"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/render"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/session"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	techColumn    = 16
	chromeLines   = 5
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	detailStyle   = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("8"))
)

// Options configures the browser.
type Options struct {
	// Host enables the "runs here" toggle. Nil disables it.
	Host *host.Host
	// HostOnly starts with the toggle on.
	HostOnly bool
}

// Model is the bubbletea model of the browser.
type Model struct {
	res     *intrinsics.ParseResult
	palette render.Palette
	text    *render.Style
	input   textinput.Model
	sess    *session.Session
	host    *host.Host

	sel        filter.Selection
	results    []*intrinsics.Intrinsic
	queryErr   error
	hostOnly   bool
	cursor     int
	offset     int
	showDetail bool
	width      int
	height     int
}

// New builds a browser over res, restoring the query and selection from
// sess. sess is updated in place as the user browses.
func New(res *intrinsics.ParseResult, sess *session.Session, opts Options) *Model {
	if sess == nil {
		sess = &session.Session{}
	}
	in := textinput.New()
	in.Prompt = "/ "
	in.Placeholder = `search, or tech:AVX2 cat:Arithmetic ret:__m256i`
	in.CharLimit = 256
	in.Focus()

	m := &Model{
		res:      res,
		palette:  render.PaletteFor(res),
		text:     render.Plain(),
		input:    in,
		sess:     sess,
		host:     opts.Host,
		hostOnly: opts.HostOnly && opts.Host != nil,
		width:    defaultWidth,
		height:   defaultHeight,
	}

	q := sess.Query
	if q == "" && !sess.Selection.IsZero() {
		q = query.Format(sess.Selection)
	}
	m.input.SetValue(q)
	m.refilter()
	m.restoreCursor(sess.Current)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		if msg.Height > 0 {
			m.height = msg.Height
		}
		m.input.Width = m.width - 4
		m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.showDetail {
				m.showDetail = false
				return m, nil
			}
			return m, tea.Quit
		case "up", "ctrl+p":
			m.move(-1)
			return m, nil
		case "down", "ctrl+n":
			m.move(1)
			return m, nil
		case "pgup":
			m.move(-m.listHeight())
			return m, nil
		case "pgdown":
			m.move(m.listHeight())
			return m, nil
		case "enter":
			m.toggleDetail()
			return m, nil
		case "tab":
			if m.host != nil {
				m.hostOnly = !m.hostOnly
				m.refilter()
			}
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.refilter()
	}
	return m, cmd
}

// refilter reparses the query line. An invalid query keeps the previous
// results and shows the error.
func (m *Model) refilter() {
	value := m.input.Value()
	sel, err := query.Parse(value)
	if err != nil {
		m.queryErr = err
		return
	}
	m.queryErr = nil
	m.sel = sel

	list := filter.Apply(m.res, sel)
	if m.hostOnly {
		list = m.host.Filter(list)
	}
	m.results = list
	m.cursor = 0
	m.offset = 0

	m.sess.Query = value
	m.sess.Selection = sel
}

func (m *Model) restoreCursor(id string) {
	if id == "" {
		return
	}
	for n, in := range m.results {
		if in.ID() == id {
			m.cursor = n
			m.clampOffset()
			return
		}
	}
}

func (m *Model) move(delta int) {
	if len(m.results) == 0 {
		return
	}
	m.cursor = max(0, min(len(m.results)-1, m.cursor+delta))
	m.clampOffset()
	if m.showDetail {
		m.sess.Current = m.results[m.cursor].ID()
	}
}

func (m *Model) toggleDetail() {
	sel := m.Selected()
	if sel == nil {
		return
	}
	m.showDetail = !m.showDetail
	if m.showDetail {
		m.sess.Open(sel.ID())
	}
}

// listHeight is the number of result rows that fit on screen.
func (m *Model) listHeight() int {
	h := m.height - chromeLines
	if m.showDetail {
		h /= 2
	}
	return max(1, h)
}

func (m *Model) clampOffset() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

// Selected returns the intrinsic under the cursor.
func (m *Model) Selected() *intrinsics.Intrinsic {
	if m.cursor < 0 || m.cursor >= len(m.results) {
		return nil
	}
	return m.results[m.cursor]
}

// Results returns the intrinsics currently listed.
func (m *Model) Results() []*intrinsics.Intrinsic {
	return m.results
}

// Session returns the session being updated.
func (m *Model) Session() *session.Session {
	return m.sess
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("Intrinsics Guide %s (%s)", m.res.Version, m.res.Date)
	count := fmt.Sprintf("%s of %s", render.Count(len(m.results)), render.Count(m.res.Len()))
	if m.hostOnly {
		count += " on this CPU"
	}
	b.WriteString(titleStyle.Render(header) + "  " + dimStyle.Render(count))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.queryErr != nil {
		b.WriteString(errorStyle.Render(m.queryErr.Error()))
	}
	b.WriteString("\n")

	nameWidth := max(20, m.width-techColumn-3)
	end := min(len(m.results), m.offset+m.listHeight())
	for n := m.offset; n < end; n++ {
		in := m.results[n]
		badge := lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.palette.Color(in.Tech))).
			Render(render.Pad(render.Truncate(in.Tech, techColumn), techColumn))
		name := render.Pad(render.Truncate(in.ID(), nameWidth), nameWidth)
		if n == m.cursor {
			name = selectedStyle.Render(name)
		}
		b.WriteString(" " + badge + " " + name + "\n")
	}
	if len(m.results) == 0 {
		b.WriteString(dimStyle.Render(" no matching intrinsics") + "\n")
	}

	if m.showDetail {
		if sel := m.Selected(); sel != nil {
			b.WriteString(detailStyle.Width(m.width).Render(m.text.Detail(sel)))
			b.WriteString("\n")
		}
	}

	help := "↑/↓ move · enter details · esc close/quit"
	if m.host != nil {
		help += " · tab runs-here"
	}
	b.WriteString(dimStyle.Render(help))
	return b.String()
}
