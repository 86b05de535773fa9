package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrapWidth = 80

// renderMarkdown renders markdown content, using glamour for terminal output or plain text otherwise
func renderMarkdown(markdown, theme string, out io.Writer) (string, error) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		// For non-terminal output (pipes, redirects), return plain markdown
		return markdown, nil
	}

	width := defaultWrapWidth
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && w < width {
		width = w
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Fall back to plain markdown if the theme is unknown
		return markdown, nil
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown, nil
	}
	return rendered, nil
}

// printMarkdown renders and prints markdown using the selected context's theme
func (c *CliContext) printMarkdown(markdown string) error {
	rendered, err := renderMarkdown(markdown, c.Config.Theme(c.ContextName), c.Out)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(c.Out, rendered)
	return err
}
