package cli

import (
	"errors"
	"strings"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/interaction"
	"github.com/devilmonastery/tessera/internal/wallet"
)

const loginHint = "Please run 'tessera auth login' to authenticate"

// FormatError renders an error for the terminal, adding a hint for the
// failures a user can fix themselves.
func FormatError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return "authentication failed: " + msg + "\n\n" + loginHint
		}
		if strings.Contains(msg, "tessera auth login") {
			return msg
		}
		return msg + "\n\n" + loginHint
	case errors.Is(err, interaction.ErrNonInteractive):
		return msg + "\n\nPass the value as a flag, or run in a terminal without --no-input"
	case errors.Is(err, client.ErrNotFound):
		return msg + "\n\nCheck the name or ID; the list-* commands show what exists"
	case errors.Is(err, wallet.ErrInvalidAddress):
		return msg + "\n\nAddresses look like 0x followed by 40 hex digits"
	}
	return msg
}
