package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/devilmonastery/tessera/internal/pkg/logger"
)

// FileStore keeps the token in a JSON file.
type FileStore struct {
	path string
	now  Clock
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the time source used for expiry checks.
func WithClock(now Clock) Option {
	return func(f *FileStore) { f.now = now }
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	f := &FileStore{path: path, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewDefaultFileStore returns a store at DefaultPath.
func NewDefaultFileStore(opts ...Option) (*FileStore, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewFileStore(path, opts...), nil
}

func (f *FileStore) Path() string {
	return f.path
}

// Load reads the credential file.
func (f *FileStore) Load() (*Token, error) {
	log := slog.Default().With("component", "credentials")
	log.Debug("loading credentials from file", slog.String("path", f.path))

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		log.Warn("credential file unreadable, treating as logged out",
			slog.String("path", f.path),
			slog.String("error", err.Error()))
		return nil, &corruptError{path: f.path, err: err}
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		log.Warn("credential file malformed, treating as logged out",
			slog.String("path", f.path),
			slog.String("error", err.Error()))
		return nil, &corruptError{path: f.path, err: err}
	}

	if !tok.ValidAt(f.now()) {
		log.Debug("cached token expired or empty",
			slog.Time("expires_at", tok.Expiry()))
		return nil, ErrNoCredential
	}

	log.Debug("loaded cached token", slog.String("preview", logger.Preview(tok.Token)))
	return &tok, nil
}

// Save writes the token. The write is not atomic.
func (f *FileStore) Save(token string, ttl time.Duration) (*Token, error) {
	tok := newToken(token, ttl, f.now())

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	data = append(data, '\n')

	// Owner read/write only: the file holds a bearer token.
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write credentials: %w", err)
	}

	slog.Debug("credentials saved",
		slog.String("component", "credentials"),
		slog.String("path", f.path),
		slog.Time("expires_at", tok.Expiry()))
	return tok, nil
}

// corruptError matches both ErrNoCredential and ErrCorrupt.
type corruptError struct {
	path string
	err  error
}

func (e *corruptError) Error() string {
	return fmt.Sprintf("not logged in (credential file %s is malformed: %v)", e.path, e.err)
}

func (e *corruptError) Is(target error) bool {
	return target == ErrNoCredential || target == ErrCorrupt
}

func (e *corruptError) Unwrap() error { return e.err }
