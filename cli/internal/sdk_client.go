package cli

import (
	"errors"
	"fmt"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/credentials"
)

// authMode says whether a command needs a signed-in session
type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// Client returns an SDK client for the resolved API URI. With authRequired
// the cached credential is checked up front so a missing session fails
// before any network call.
func (c *CliContext) Client(mode authMode) (*client.Client, error) {
	var tm client.TokenManager
	switch mode {
	case authRequired:
		if _, err := c.Store.Load(); err != nil {
			if errors.Is(err, credentials.ErrCorrupt) {
				return nil, fmt.Errorf("%w (%v)", client.ErrUnauthenticated, err)
			}
			return nil, client.ErrUnauthenticated
		}
		tm = NewStoreTokenManager(c.Store)
	case authOptional:
		if _, err := c.Store.Load(); err == nil {
			tm = NewStoreTokenManager(c.Store)
		}
	}

	opts := []client.Option{
		client.WithTimeout(c.Timeout),
		client.WithUserAgent("tessera-cli"),
	}
	if c.httpClient != nil {
		opts = append(opts, client.WithHTTPClient(c.httpClient))
	}

	sdk, err := client.NewClient(c.APIURI, tm, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	c.clients = append(c.clients, sdk)
	return sdk, nil
}

func (c *CliContext) closeClients() {
	for _, sdk := range c.clients {
		_ = sdk.Close()
	}
	c.clients = nil
}
