// Package interaction is the input-provider capability used by commands to
// ask for values that were not given as flags.
package interaction

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ErrNonInteractive is returned when a value is missing and prompting is not
// possible.
var ErrNonInteractive = errors.New("input required but prompting is disabled")

// SelectOption is a single entry in a selection menu.
type SelectOption struct {
	Label string
	Value string
}

// Prompter asks the user for input. Commands never read stdin directly.
type Prompter interface {
	Input(title string, suggestions []string) (string, error)
	Secret(title string) (string, error)
	Select(title string, options []string) (string, error)
	SelectValue(title string, options []SelectOption) (string, error)
	Confirm(title string) (bool, error)
}

// IsTerminal reports whether the file refers to a terminal device.
var IsTerminal = func(file *os.File) bool {
	if file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Default returns a HuhPrompter when stdin and stdout are terminals and
// prompting is allowed, otherwise NonInteractive.
func Default(allowPrompt bool) Prompter {
	if allowPrompt && IsTerminal(os.Stdin) && IsTerminal(os.Stdout) {
		return HuhPrompter{}
	}
	return NonInteractive{}
}

// NonInteractive fails every prompt with ErrNonInteractive naming the value.
type NonInteractive struct{}

func (NonInteractive) Input(title string, _ []string) (string, error) {
	return "", missing(title)
}

func (NonInteractive) Secret(title string) (string, error) {
	return "", missing(title)
}

func (NonInteractive) Select(title string, _ []string) (string, error) {
	return "", missing(title)
}

func (NonInteractive) SelectValue(title string, _ []SelectOption) (string, error) {
	return "", missing(title)
}

func (NonInteractive) Confirm(title string) (bool, error) {
	return false, fmt.Errorf("%w: %s (pass --yes to skip confirmation)", ErrNonInteractive, title)
}

func missing(title string) error {
	return fmt.Errorf("%w: %s", ErrNonInteractive, title)
}
