package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
)

// Enforcer covers sign-in, account, API key, terms and authorization calls.
type Enforcer struct {
	c *Client
}

// Nonce requests a one-time sign-in nonce for address.
func (e *Enforcer) Nonce(ctx context.Context, address string) (string, error) {
	var resp NonceResponse
	err := e.c.do(ctx, request{
		method: http.MethodGet,
		route:  "/auth/nonce",
		query:  url.Values{"address": {address}},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("request nonce: %w", err)
	}
	if resp.Nonce == "" {
		return "", fmt.Errorf("request nonce: service returned an empty nonce")
	}
	return resp.Nonce, nil
}

// LoginWithSignature exchanges a signed sign-in message for a bearer token.
func (e *Enforcer) LoginWithSignature(ctx context.Context, message, signature string) (string, error) {
	var resp LoginResponse
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/login",
		body:   SignatureLoginRequest{Message: message, Signature: signature},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: service returned an empty token")
	}
	return resp.Token, nil
}

// LoginWithAPIKey exchanges an API key for a bearer token.
func (e *Enforcer) LoginWithAPIKey(ctx context.Context, apiKey string) (string, error) {
	var resp LoginResponse
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/api-key/login",
		body:   APIKeyLoginRequest{APIKey: apiKey},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("api key login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("api key login: service returned an empty token")
	}
	return resp.Token, nil
}

// Account returns the signed-in account.
func (e *Enforcer) Account(ctx context.Context) (*Account, error) {
	var account Account
	if err := e.c.do(ctx, request{method: http.MethodGet, route: "/auth/account"}, &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// AccountExists reports whether an account is registered for address.
// Address validation is the caller's job.
func (e *Enforcer) AccountExists(ctx context.Context, address string) (bool, error) {
	var resp AccountExistsResponse
	err := e.c.do(ctx, request{
		method: http.MethodGet,
		route:  "/auth/account/exists",
		query:  url.Values{"address": {address}},
	}, &resp)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return resp.Exists, nil
}

func (e *Enforcer) CreateAPIKey(ctx context.Context, name string) (*CreatedAPIKey, error) {
	var key CreatedAPIKey
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/api-keys",
		body:   CreateAPIKeyRequest{Name: name},
	}, &key)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &key, nil
}

func (e *Enforcer) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var resp struct {
		APIKeys []APIKey `json:"apiKeys"`
	}
	if err := e.c.do(ctx, request{method: http.MethodGet, route: "/auth/api-keys"}, &resp); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return resp.APIKeys, nil
}

func (e *Enforcer) ActivateAPIKey(ctx context.Context, id string) error {
	return e.apiKeyAction(ctx, id, "activate")
}

func (e *Enforcer) DeactivateAPIKey(ctx context.Context, id string) error {
	return e.apiKeyAction(ctx, id, "deactivate")
}

func (e *Enforcer) apiKeyAction(ctx context.Context, id, action string) error {
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/api-keys/" + urlutil.EscapeSegment(id) + "/" + action,
	}, nil)
	if err != nil {
		return fmt.Errorf("%s api key %s: %w", action, id, err)
	}
	return nil
}

func (e *Enforcer) DeleteAPIKey(ctx context.Context, id string) error {
	err := e.c.do(ctx, request{
		method: http.MethodDelete,
		route:  "/auth/api-keys/" + urlutil.EscapeSegment(id),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete api key %s: %w", id, err)
	}
	return nil
}

// Terms returns the current terms of service.
func (e *Enforcer) Terms(ctx context.Context) (*Terms, error) {
	var terms Terms
	if err := e.c.do(ctx, request{method: http.MethodGet, route: "/auth/terms"}, &terms); err != nil {
		return nil, fmt.Errorf("get terms: %w", err)
	}
	return &terms, nil
}

// AcceptTerms records acceptance of the given terms version (empty means
// the current version).
func (e *Enforcer) AcceptTerms(ctx context.Context, version string) (*Terms, error) {
	var terms Terms
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/auth/terms/accept",
		body:   AcceptTermsRequest{Version: version},
	}, &terms)
	if err != nil {
		return nil, fmt.Errorf("accept terms: %w", err)
	}
	return &terms, nil
}

// Authorize evaluates one authorization request. The request and decision
// documents are passed through unchanged.
func (e *Enforcer) Authorize(ctx context.Context, req json.RawMessage) (json.RawMessage, error) {
	var decision json.RawMessage
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/enforcer/authorize",
		body:   req,
	}, &decision)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	return decision, nil
}

// AuthorizeBatch evaluates several requests in one round trip. batch must be
// a {"requests": [...]} document.
func (e *Enforcer) AuthorizeBatch(ctx context.Context, batch json.RawMessage) (json.RawMessage, error) {
	var decisions json.RawMessage
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/enforcer/authorize/batch",
		body:   batch,
	}, &decisions)
	if err != nil {
		return nil, fmt.Errorf("authorize batch: %w", err)
	}
	return decisions, nil
}

// RegisterAccount creates an account for a wallet that proved ownership by
// signing a sign-in message.
func (e *Enforcer) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*Account, error) {
	var account Account
	err := e.c.do(ctx, request{
		method: http.MethodPost,
		route:  "/register/account",
		body:   req,
	}, &account)
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	return &account, nil
}
