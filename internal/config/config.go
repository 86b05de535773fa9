package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvAPIKey     = "API_KEY"
	EnvPrivateKey = "PRIVATE_KEY"
	EnvAPIURI     = "API_URI"
	EnvChainID    = "CHAIN_ID"
)

const (
	DefaultAPIURI  = "http://localhost:8080"
	DefaultChainID = 1
)

// Env is the process configuration after .env files have been applied.
type Env struct {
	APIKey     string
	PrivateKey string
	APIURI     string // empty when API_URI is unset
	ChainID    int64  // zero when CHAIN_ID is unset
}

// HasAPIKey reports whether API_KEY is set.
func (e *Env) HasAPIKey() bool {
	return e.APIKey != ""
}

// HasPrivateKey reports whether PRIVATE_KEY is set.
func (e *Env) HasPrivateKey() bool {
	return e.PrivateKey != ""
}

func parseChainID(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", EnvChainID, v)
	}
	return id, nil
}
