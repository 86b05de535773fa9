// Package credentials caches the session bearer token between invocations.
//
// The on-disk format is a single JSON object:
//
//	{"token": "<bearer>", "expiresAt": <epoch milliseconds>}
//
// A stored token is only handed out while expiresAt is strictly in the
// future. Absent, expired and unreadable files all look the same to callers
// (ErrNoCredential); unreadable files additionally match ErrCorrupt so that
// status reporting can tell the difference.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devilmonastery/tessera/internal/pkg/timeutil"
)

// SessionTTL is the validity window applied to tokens obtained by signing in.
const SessionTTL = 30 * 24 * time.Hour

var (
	// ErrNoCredential means no valid cached token is available.
	ErrNoCredential = errors.New("not logged in")

	// ErrCorrupt means the credential file exists but could not be parsed.
	ErrCorrupt = errors.New("credential file is malformed")
)

// Token is the cached session credential.
type Token struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
}

// Expiry returns ExpiresAt as a time.Time.
func (t *Token) Expiry() time.Time {
	return timeutil.FromEpochMillis(t.ExpiresAt)
}

// ValidAt reports whether the token is still valid at now.
func (t *Token) ValidAt(now time.Time) bool {
	return t.Token != "" && t.ExpiresAt > timeutil.EpochMillis(now)
}

// Store loads and saves the cached session token.
type Store interface {
	// Load returns the cached token if it is still valid.
	Load() (*Token, error)

	// Save stores token with an expiry of now+ttl, replacing any prior token.
	Save(token string, ttl time.Duration) (*Token, error)

	// Path describes where the token lives, for display.
	Path() string
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// DefaultPath returns the credential file location. TESSERA_CREDENTIALS_FILE
// wins, then $XDG_CONFIG_HOME/tessera, then ~/.config/tessera.
func DefaultPath() (string, error) {
	if envPath := os.Getenv("TESSERA_CREDENTIALS_FILE"); envPath != "" {
		return envPath, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "tessera", "credentials.json"), nil
}

func newToken(token string, ttl time.Duration, now time.Time) *Token {
	return &Token{
		Token:     token,
		ExpiresAt: timeutil.EpochMillis(now) + ttl.Milliseconds(),
	}
}
