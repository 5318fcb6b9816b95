package output

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewMarkdownRenderer returns a glamour renderer when fd is a terminal and
// nil otherwise.
func NewMarkdownRenderer(fd int) Renderer {
	if !term.IsTerminal(fd) {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return nil
	}
	return r
}
