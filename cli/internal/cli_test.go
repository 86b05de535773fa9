package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/config"
	"github.com/devilmonastery/tessera/internal/credentials"
	"github.com/devilmonastery/tessera/internal/interaction"
	"github.com/devilmonastery/tessera/internal/siwe"
	"github.com/devilmonastery/tessera/internal/wallet"
)

var testNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

const (
	testPrivateKey = "0x0000000000000000000000000000000000000000000000000000000000000001"
	testAddress    = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	sessionToken   = "session-token"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// harness runs the command tree against a fake service with an in-memory
// credential store, a scripted prompter and a fixed clock.
type harness struct {
	t          *testing.T
	mux        *http.ServeMux
	srv        *httptest.Server
	store      credentials.Store
	prompter   interaction.Prompter
	env        config.Env
	stdin      string
	configPath string
	httpClient *http.Client

	mu       sync.Mutex
	requests []recordedRequest

	out    bytes.Buffer
	errOut bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		mux:        http.NewServeMux(),
		store:      credentials.NewMemoryStore(testClock),
		prompter:   interaction.NonInteractive{},
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
	}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.mu.Lock()
		h.requests = append(h.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		h.mu.Unlock()
		h.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(h.srv.Close)
	h.env.APIURI = h.srv.URL
	return h
}

func (h *harness) handle(pattern string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, fn)
}

func (h *harness) login() {
	h.t.Helper()
	_, err := h.store.Save(sessionToken, credentials.SessionTTL)
	require.NoError(h.t, err)
}

func (h *harness) run(args ...string) error {
	h.out.Reset()
	h.errOut.Reset()
	env := h.env
	return Execute(context.Background(), Deps{
		In:         strings.NewReader(h.stdin),
		Out:        &h.out,
		Err:        &h.errOut,
		Store:      h.store,
		Prompter:   h.prompter,
		ConfigPath: h.configPath,
		Now:        testClock,
		LoadEnv:    func() (*config.Env, error) { return &env, nil },
		HTTPClient: h.httpClient,
	}, args)
}

// calls lists the requests the fake service saw as "METHOD /path".
func (h *harness) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.requests))
	for i, r := range h.requests {
		out[i] = r.Method + " " + r.Path
	}
	return out
}

func (h *harness) lastRequest() recordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.requests)
	return h.requests[len(h.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "Bearer "+sessionToken, r.Header.Get("Authorization"))
}

func TestAccountExistsRejectsMalformedAddressOffline(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{"missing 0x", "7E5F4552091A69125d5DfCb7b8C2659029395Bdf"},
		{"too short", "0x7E5F4552"},
		{"not hex", "0xZZ5F4552091A69125d5DfCb7b8C2659029395Bdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			err := h.run("auth", "account-exists", "--address", tt.address)
			require.ErrorIs(t, err, wallet.ErrInvalidAddress)
			require.Empty(t, h.calls(), "no request may be sent for a malformed address")
		})
	}
}

func TestAccountExists(t *testing.T) {
	h := newHarness(t)
	h.handle("GET /auth/account/exists", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Equal(t, testAddress, r.URL.Query().Get("address"))
		writeJSON(w, http.StatusOK, client.AccountExistsResponse{Address: testAddress, Exists: true})
	})

	require.NoError(t, h.run("auth", "account-exists", "--address", testAddress))
	require.Contains(t, h.out.String(), "Account exists for "+testAddress)
}

func TestLoginWithAPIKeyCachesToken(t *testing.T) {
	h := newHarness(t)
	h.handle("POST /auth/api-key/login", func(w http.ResponseWriter, r *http.Request) {
		var req client.APIKeyLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "tk_test", req.APIKey)
		writeJSON(w, http.StatusOK, client.LoginResponse{Token: "bearer-from-key"})
	})

	require.NoError(t, h.run("auth", "login", "--api-key", "tk_test"))
	require.Contains(t, h.out.String(), "Successfully logged in")

	tok, err := h.store.Load()
	require.NoError(t, err)
	require.Equal(t, "bearer-from-key", tok.Token)
	require.Equal(t, testNow.UnixMilli()+2592000000, tok.ExpiresAt)
}

func TestLoginUsesAPIKeyFromEnvironment(t *testing.T) {
	h := newHarness(t)
	h.env.APIKey = "tk_env"
	h.env.PrivateKey = testPrivateKey
	h.handle("POST /auth/api-key/login", func(w http.ResponseWriter, r *http.Request) {
		var req client.APIKeyLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "tk_env", req.APIKey)
		writeJSON(w, http.StatusOK, client.LoginResponse{Token: "bearer-env"})
	})

	require.NoError(t, h.run("auth", "login"))
	require.Equal(t, []string{"POST /auth/api-key/login"}, h.calls())
}

func TestLoginWithPrivateKeySignsIn(t *testing.T) {
	h := newHarness(t)
	h.handle("GET /auth/nonce", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testAddress, r.URL.Query().Get("address"))
		writeJSON(w, http.StatusOK, client.NonceResponse{Nonce: "n0nce1234abcd"})
	})
	h.handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req client.SignatureLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		signer, err := wallet.RecoverPersonal(req.Message, req.Signature)
		require.NoError(t, err)
		require.Equal(t, testAddress, signer)

		msg, err := siwe.Parse(req.Message)
		require.NoError(t, err)
		require.Equal(t, strings.TrimPrefix(h.srv.URL, "http://"), msg.Domain)
		require.Equal(t, "n0nce1234abcd", msg.Nonce)
		require.Equal(t, int64(5), msg.ChainID)
		writeJSON(w, http.StatusOK, client.LoginResponse{Token: "bearer-from-siwe"})
	})

	require.NoError(t, h.run("auth", "login", "--private-key", testPrivateKey, "--chain-id", "5"))
	require.Contains(t, h.out.String(), "Successfully logged in as "+testAddress)

	tok, err := h.store.Load()
	require.NoError(t, err)
	require.Equal(t, "bearer-from-siwe", tok.Token)
	require.Equal(t, testNow.UnixMilli()+credentials.SessionTTL.Milliseconds(), tok.ExpiresAt)
}

func TestRegisterAccountSignsWithoutCaching(t *testing.T) {
	h := newHarness(t)
	h.handle("GET /auth/nonce", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.NonceResponse{Nonce: "n0nce1234abcd"})
	})
	h.handle("POST /register/account", func(w http.ResponseWriter, r *http.Request) {
		var req client.RegisterAccountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, testAddress, req.Address)
		require.Equal(t, "ada@example.com", req.Email)
		require.Equal(t, "Ada", req.Name)

		signer, err := wallet.RecoverPersonal(req.Message, req.Signature)
		require.NoError(t, err)
		require.Equal(t, testAddress, signer)

		writeJSON(w, http.StatusOK, client.Account{ID: "acc-1", Address: req.Address, Email: req.Email, Name: req.Name})
	})

	require.NoError(t, h.run("register", "account", "--private-key", testPrivateKey, "--email", "ada@example.com", "--name", "Ada"))
	require.Contains(t, h.out.String(), "Registered account acc-1")
	require.Equal(t, []string{"GET /auth/nonce", "POST /register/account"}, h.calls())

	_, err := h.store.Load()
	require.ErrorIs(t, err, credentials.ErrNoCredential)
}

func TestLoginPromptsForMethodAndKey(t *testing.T) {
	h := newHarness(t)
	prompter := interaction.NewScripted(loginMethodAPIKey, "tk_prompted")
	h.prompter = prompter
	h.handle("POST /auth/api-key/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.LoginResponse{Token: "bearer-prompted"})
	})

	require.NoError(t, h.run("auth", "login"))
	require.Equal(t, []string{"Sign in with", "API key"}, prompter.Asked)

	tok, err := h.store.Load()
	require.NoError(t, err)
	require.Equal(t, "bearer-prompted", tok.Token)
}

func TestLoginWithoutKeysFailsNonInteractively(t *testing.T) {
	h := newHarness(t)
	err := h.run("auth", "login")
	require.ErrorIs(t, err, interaction.ErrNonInteractive)
	require.Empty(t, h.calls())
}

func TestLoginFailureKeepsPreviousSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /auth/api-key/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
	})

	err := h.run("auth", "login", "--api-key", "tk_bad")
	require.ErrorIs(t, err, client.ErrUnauthenticated)

	tok, err := h.store.Load()
	require.NoError(t, err)
	require.Equal(t, sessionToken, tok.Token)
}

func TestCommandsRequireSession(t *testing.T) {
	tests := [][]string{
		{"auth", "account"},
		{"auth", "list-api-keys"},
		{"admin", "list-tenants"},
		{"os", "list-buckets"},
		{"os", "get-account-size"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			h := newHarness(t)
			err := h.run(args...)
			require.ErrorIs(t, err, client.ErrUnauthenticated)
			require.Contains(t, FormatError(err), "tessera auth login")
			require.Empty(t, h.calls())
		})
	}
}

func TestExpiredSessionIsNotUsed(t *testing.T) {
	h := newHarness(t)
	now := testNow.Add(-time.Hour)
	store := credentials.NewMemoryStore(func() time.Time { return now })
	_, err := store.Save(sessionToken, time.Hour)
	require.NoError(t, err)
	h.store = store

	// expiresAt == now is already expired.
	now = testNow
	err = h.run("auth", "account")
	require.ErrorIs(t, err, client.ErrUnauthenticated)
	require.Empty(t, h.calls())
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("auth", "status"))
	require.Contains(t, h.out.String(), "Not logged in")

	claims := jwt.MapClaims{"sub": testAddress, "iss": "tessera"}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = h.store.Save(signed, credentials.SessionTTL)
	require.NoError(t, err)

	require.NoError(t, h.run("auth", "status"))
	out := h.out.String()
	require.Contains(t, out, testAddress)
	require.Contains(t, out, "tessera")
	require.Contains(t, out, "Valid for")
	require.Contains(t, out, "30 days")
}

func TestStatusReportsMalformedCredentialFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	h.store = credentials.NewFileStore(path, credentials.WithClock(testClock))

	require.NoError(t, h.run("auth", "status", "-o", "json"))
	var status authStatus
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &status))
	require.False(t, status.LoggedIn)
	require.True(t, status.Malformed)

	err := h.run("auth", "account")
	require.ErrorIs(t, err, client.ErrUnauthenticated)
	require.Empty(t, h.calls())
}

func TestTokenPrintsCachedToken(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.run("auth", "token"), credentials.ErrNoCredential)

	h.login()
	require.NoError(t, h.run("auth", "token"))
	require.Equal(t, sessionToken+"\n", h.out.String())
}

func authorizeHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "reason": "policy:readers"})
	}
}

func TestAuthorizeFileAndInlineSendIdenticalPayloads(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /enforcer/authorize", authorizeHandler(t))

	path := filepath.Join(t.TempDir(), "request.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // who wants what
  "action": "read",
  "resource": {"type": "document", "id": "doc-1"},
}`), 0o644))

	require.NoError(t, h.run("auth", "authorize", "--file", path))
	fromFile := h.lastRequest().Body
	require.Contains(t, h.out.String(), `"allowed": true`)

	require.NoError(t, h.run("auth", "authorize", "--json", `{"resource":{"id":"doc-1","type":"document"},"action":"read"}`))
	inline := h.lastRequest().Body

	require.Equal(t, string(fromFile), string(inline))
}

func TestAuthorizeReadsStdin(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /enforcer/authorize", authorizeHandler(t))
	h.stdin = `{"action":"write","resource":"bucket:photos"}`

	require.NoError(t, h.run("auth", "authorize", "--file", "-"))
	require.JSONEq(t, `{"action":"write","resource":"bucket:photos"}`, string(h.lastRequest().Body))
}

func TestAuthorizeRejectsInvalidRequestsOffline(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing resource", []string{"--json", `{"action":"read"}`}, nil},
		{"not json", []string{"--json", `read doc-1`}, nil},
		{"no input", nil, interaction.ErrNonInteractive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.login()
			err := h.run(append([]string{"auth", "authorize"}, tt.args...)...)
			require.Error(t, err)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			require.Empty(t, h.calls())
		})
	}
}

func TestAuthorizeBothInputsConflict(t *testing.T) {
	h := newHarness(t)
	h.login()
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"read","resource":"x"}`), 0o644))

	err := h.run("auth", "authorize", "--file", path, "--json", `{"action":"read","resource":"x"}`)
	require.Error(t, err)
	require.Empty(t, h.calls())
}

func TestAuthorizeBatchNormalizesAndWritesOutfile(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /enforcer/authorize/batch", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"decisions": []map[string]any{{"allowed": true}, {"allowed": false}}})
	})

	outfile := filepath.Join(t.TempDir(), "decisions.json")
	require.NoError(t, h.run("auth", "authorize-batch",
		"--json", `[{"action":"read","resource":"a"},{"action":"delete","resource":"b"}]`,
		"--outfile", outfile))

	require.JSONEq(t,
		`{"requests":[{"action":"read","resource":"a"},{"action":"delete","resource":"b"}]}`,
		string(h.lastRequest().Body))
	require.Contains(t, h.out.String(), "Response written to "+outfile)

	written, err := os.ReadFile(outfile)
	require.NoError(t, err)
	require.Contains(t, string(written), `"decisions"`)
}

func TestAPIKeyCommands(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /auth/api-keys", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeJSON(w, http.StatusCreated, client.CreatedAPIKey{
			APIKey: client.APIKey{ID: "key-1", Name: "ci", Active: true},
			Key:    "tk_secret",
		})
	})
	h.handle("POST /auth/api-keys/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.handle("DELETE /auth/api-keys/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, h.run("auth", "create-api-key", "--name", "ci"))
	require.Contains(t, h.out.String(), "tk_secret")
	require.Contains(t, h.errOut.String(), "will not be shown again")

	require.NoError(t, h.run("auth", "deactivate-api-key", "--id", "key-1"))
	require.NoError(t, h.run("auth", "activate-api-key", "--id", "key-1"))

	// Declining the confirmation sends nothing.
	h.prompter = interaction.NewScripted("n")
	require.ErrorIs(t, h.run("auth", "delete-api-key", "--id", "key-1"), errAborted)

	require.NoError(t, h.run("auth", "delete-api-key", "--id", "key-1", "--yes"))
	require.Equal(t, []string{
		"POST /auth/api-keys",
		"POST /auth/api-keys/key-1/deactivate",
		"POST /auth/api-keys/key-1/activate",
		"DELETE /auth/api-keys/key-1",
	}, h.calls())
}

func TestDeleteWithoutConfirmationFailsNonInteractively(t *testing.T) {
	h := newHarness(t)
	h.login()
	err := h.run("auth", "delete-api-key", "--id", "key-1")
	require.ErrorIs(t, err, interaction.ErrNonInteractive)
	require.Empty(t, h.calls())
}

func TestTermsWorksWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.handle("GET /auth/terms", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, client.Terms{Version: "2026-01", Content: "# Terms\n\nBe kind."})
	})

	require.NoError(t, h.run("auth", "terms"))
	out := h.out.String()
	require.Contains(t, out, "version 2026-01")
	require.Contains(t, out, "Be kind.")
}

func TestAccountOutputFormats(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /auth/account", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeJSON(w, http.StatusOK, client.Account{ID: "acc-1", Address: testAddress, Roles: []string{"admin"}})
	})

	require.NoError(t, h.run("auth", "account"))
	require.Contains(t, h.out.String(), "acc-1")
	require.Contains(t, h.out.String(), "admin")

	require.NoError(t, h.run("auth", "account", "-o", "json"))
	var account client.Account
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &account))
	require.Equal(t, testAddress, account.Address)

	require.NoError(t, h.run("auth", "account", "-o", "yaml"))
	require.Contains(t, h.out.String(), "address: "+testAddress)

	err := h.run("auth", "account", "-o", "xml")
	require.Error(t, err)
}

func TestAPIErrorsReachTheUser(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /auth/account", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database unavailable"})
	})

	err := h.run("auth", "account")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Contains(t, FormatError(err), "database unavailable")
}

func TestNotFoundErrorsCarryAHint(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /admin/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
	})

	err := h.run("admin", "get-tenant", "--id", "missing")
	require.ErrorIs(t, err, client.ErrNotFound)
	msg := FormatError(err)
	require.Contains(t, msg, "tenant not found")
	require.Contains(t, msg, "list-* commands")
}

type closeRecorder struct {
	http.RoundTripper
	closed atomic.Int32
}

func (r *closeRecorder) CloseIdleConnections() { r.closed.Add(1) }

func TestFailedCommandReleasesClients(t *testing.T) {
	h := newHarness(t)
	h.login()
	rec := &closeRecorder{RoundTripper: http.DefaultTransport}
	h.httpClient = &http.Client{Transport: rec}
	h.handle("GET /auth/account", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	})

	require.Error(t, h.run("auth", "account"))
	require.Positive(t, rec.closed.Load())
}

func TestAlsoLogToStderrDefaultsLogFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil))) })

	h := newHarness(t)
	require.Error(t, h.run("--alsologtostderr", "--log-level", "debug", "auth", "token"))
	require.Contains(t, h.errOut.String(), "CLI started")

	data, err := os.ReadFile(filepath.Join(dir, "tessera", "cli.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "CLI started")
}
