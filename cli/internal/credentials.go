package cli

import (
	"log/slog"
	"time"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/credentials"
	"github.com/devilmonastery/tessera/internal/pkg/logger"
)

// StoreTokenManager implements client.TokenManager on top of the credential
// cache. Every call re-reads the store so an expired token is never sent.
type StoreTokenManager struct {
	store credentials.Store
}

// NewStoreTokenManager creates a token manager backed by store
func NewStoreTokenManager(store credentials.Store) client.TokenManager {
	return &StoreTokenManager{store: store}
}

// GetToken returns the cached access token
func (s *StoreTokenManager) GetToken() (string, time.Time, error) {
	tok, err := s.store.Load()
	if err != nil {
		slog.Debug("failed to load credentials",
			slog.String("component", "cli-token"),
			slog.String("path", s.store.Path()),
			slog.String("error", err.Error()))
		return "", time.Time{}, err
	}
	slog.Debug("GetToken returning",
		slog.String("component", "cli-token"),
		slog.String("preview", logger.Preview(tok.Token)),
		slog.Time("expires_at", tok.Expiry()))
	return tok.Token, tok.Expiry(), nil
}
