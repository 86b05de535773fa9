package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvPaths returns the .env files consulted for dir: dir/.env, then the
// parent's .env.
func DotEnvPaths(dir string) []string {
	paths := []string{filepath.Join(dir, ".env")}
	if parent := filepath.Dir(dir); parent != dir {
		paths = append(paths, filepath.Join(parent, ".env"))
	}
	return paths
}

// LoadDotEnv applies the .env files for dir. Variables already present in
// the process are never overridden, and dir's file wins over the parent's.
func LoadDotEnv(dir string) error {
	for _, path := range DotEnvPaths(dir) {
		if !fileExists(path) {
			continue
		}
		slog.Debug("loading env file", slog.String("component", "config"), slog.String("path", path))
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load applies .env files from the working directory and reads Env.
func Load() (*Env, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := LoadDotEnv(wd); err != nil {
		return nil, err
	}
	return FromEnviron()
}

// FromEnviron reads Env from the process environment only.
func FromEnviron() (*Env, error) {
	chainID, err := parseChainID(os.Getenv(EnvChainID))
	if err != nil {
		return nil, err
	}
	return &Env{
		APIKey:     os.Getenv(EnvAPIKey),
		PrivateKey: os.Getenv(EnvPrivateKey),
		APIURI:     os.Getenv(EnvAPIURI),
		ChainID:    chainID,
	}, nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
