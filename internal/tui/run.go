package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/session"
)

// Run shows the browser until the user quits and returns the updated
// session.
func Run(res *intrinsics.ParseResult, sess *session.Session, opts Options) (*session.Session, error) {
	if res == nil {
		return sess, fmt.Errorf("no intrinsics database loaded")
	}
	m := New(res, sess, opts)
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return m.Session(), err
	}
	return m.Session(), nil
}
