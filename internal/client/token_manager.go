package client

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// TokenManager supplies the bearer token attached to authenticated calls.
// Different implementations can read tokens from files, memory, env, etc.
type TokenManager interface {
	// GetToken returns the current access token and its expiry.
	GetToken() (token string, expiresAt time.Time, err error)
}

// StaticTokenManager returns the same token on every call. Useful for tests
// and for callers that already hold a token.
type StaticTokenManager struct {
	token string
}

// NewStaticTokenManager creates a token manager for a fixed token.
func NewStaticTokenManager(token string) *StaticTokenManager {
	return &StaticTokenManager{token: token}
}

// GetToken returns the static token with no expiry.
func (s *StaticTokenManager) GetToken() (string, time.Time, error) {
	if s.token == "" {
		return "", time.Time{}, errors.New("no token configured")
	}
	return s.token, time.Time{}, nil
}

// tokenSource adapts a TokenManager to oauth2.TokenSource so the standard
// oauth2.Transport can stamp the Authorization header.
type tokenSource struct {
	manager TokenManager
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	token, expiresAt, err := s.manager.GetToken()
	if err != nil {
		return nil, &authError{err: err}
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiresAt,
	}, nil
}
