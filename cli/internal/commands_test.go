package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/interaction"
)

func TestCreateTenantDefaultsSlug(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /admin/tenants", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		var req client.CreateTenantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusCreated, client.Tenant{ID: "t-1", Name: req.Name, Slug: req.Slug, Domain: req.Domain})
	})

	require.NoError(t, h.run("admin", "create-tenant", "--name", "Acme Research Lab", "--domain", "acme.example"))
	require.JSONEq(t, `{"name":"Acme Research Lab","slug":"acme-research-lab","domain":"acme.example"}`,
		string(h.lastRequest().Body))
	require.Contains(t, h.out.String(), "Tenant created")

	err := h.run("admin", "create-tenant", "--name", "Acme", "--slug", "Not A Slug")
	require.Error(t, err)
	require.Len(t, h.calls(), 1)
}

func TestUpdateTenantSendsOnlyChangedFields(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("PATCH /admin/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.Tenant{ID: r.PathValue("id"), Name: "Acme"})
	})

	require.NoError(t, h.run("admin", "update-tenant", "--id", "t-1", "--description", ""))
	require.JSONEq(t, `{"description":""}`, string(h.lastRequest().Body))
	require.Equal(t, "PATCH /admin/tenants/t-1", h.calls()[0])

	err := h.run("admin", "update-tenant", "--id", "t-1")
	require.ErrorContains(t, err, "nothing to update")
	require.Len(t, h.calls(), 1)
}

func TestListTenantsPaging(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /admin/tenants", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "10", r.URL.Query().Get("offset"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, client.TenantList{
			Tenants: []client.Tenant{{ID: "t-11", Name: "Eleven"}, {ID: "t-12", Name: "Twelve"}},
			Total:   40,
		})
	})

	require.NoError(t, h.run("admin", "list-tenants", "--offset", "10", "--limit", "2"))
	out := h.out.String()
	require.Contains(t, out, "Eleven")
	require.Contains(t, out, "Showing 2 of 40 tenants")
}

func TestListRolesAndGroupsByTenant(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /admin/roles", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "t-1", r.URL.Query().Get("tenantId"))
		writeJSON(w, http.StatusOK, map[string]any{"roles": []client.Role{{ID: "r-1", Name: "reader", Permissions: []string{"read", "list"}}}})
	})
	h.handle("GET /admin/groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"groups": []client.Group{{ID: "g-1", Name: "staff", Members: []string{"a", "b"}}}})
	})

	require.NoError(t, h.run("admin", "list-roles", "--tenant", "t-1"))
	require.Contains(t, h.out.String(), "read,list")

	require.NoError(t, h.run("admin", "list-groups", "-o", "yaml"))
	var groups []client.Group
	require.NoError(t, yaml.Unmarshal(h.out.Bytes(), &groups))
	require.Len(t, groups, 1)
	require.Equal(t, []string{"a", "b"}, groups[0].Members)
}

// objectStore is a fake bucket store behind the harness.
type objectStore struct {
	mu        sync.Mutex
	bodies    map[string][]byte
	encrypted map[string]string
}

func newObjectStore(h *harness) *objectStore {
	s := &objectStore{bodies: map[string][]byte{}, encrypted: map[string]string{}}
	h.handle("GET /os/buckets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"buckets": []client.Bucket{{Name: "photos"}, {Name: "vault"}}})
	})
	h.handle("PUT /os/buckets/{bucket}/files/{key...}", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(h.t, err)
		name := r.PathValue("bucket") + "/" + r.PathValue("key")
		s.mu.Lock()
		s.bodies[name] = body
		s.encrypted[name] = r.Header.Get(client.EncryptionHeader)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, client.FileInfo{
			Key:         r.PathValue("key"),
			Size:        int64(len(body)),
			ContentType: r.Header.Get("Content-Type"),
			Encrypted:   r.Header.Get(client.EncryptionHeader) != "",
		})
	})
	h.handle("GET /os/buckets/{bucket}/files/{key...}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("bucket") + "/" + r.PathValue("key")
		s.mu.Lock()
		body, ok := s.bodies[name]
		enc := s.encrypted[name]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such file"})
			return
		}
		if enc != "" {
			w.Header().Set(client.EncryptionHeader, enc)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	})
	h.handle("DELETE /os/buckets/{bucket}/files/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		delete(s.bodies, r.PathValue("bucket")+"/"+r.PathValue("key"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return s
}

func (s *objectStore) get(name string) ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[name], s.encrypted[name]
}

func TestUploadAndDownloadPlain(t *testing.T) {
	h := newHarness(t)
	h.login()
	store := newObjectStore(h)

	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello storage"), 0o644))

	require.NoError(t, h.run("os", "upload-file", "--bucket", "photos", "--file", src))
	body, enc := store.get("photos/notes.txt")
	require.Equal(t, "hello storage", string(body))
	require.Empty(t, enc)
	require.True(t, strings.HasPrefix(h.lastRequest().Header.Get("Content-Type"), "text/plain"))

	require.NoError(t, h.run("os", "download-file", "--bucket", "photos", "--key", "notes.txt", "--out", "-"))
	require.Equal(t, "hello storage", h.out.String())
}

func TestUploadAndDownloadSealed(t *testing.T) {
	h := newHarness(t)
	h.login()
	store := newObjectStore(h)

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	dir := t.TempDir()
	identityFile := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(identityFile, []byte(identity.String()+"\n"), 0o600))

	plaintext := bytes.Repeat([]byte("sealed payload "), 1000)
	src := filepath.Join(dir, "report.bin")
	require.NoError(t, os.WriteFile(src, plaintext, 0o644))

	require.NoError(t, h.run("os", "upload-file",
		"--bucket", "vault", "--file", src, "--key", "2026/report.bin",
		"--recipient", identity.Recipient().String()))

	body, enc := store.get("vault/2026/report.bin")
	require.Equal(t, "age", enc)
	require.NotContains(t, string(body), "sealed payload")

	// Without an identity the ciphertext is written and a warning printed.
	raw := filepath.Join(dir, "raw.age")
	require.NoError(t, h.run("os", "download-file", "--bucket", "vault", "--key", "2026/report.bin", "--out", raw))
	require.Contains(t, h.errOut.String(), "is encrypted")

	out := filepath.Join(dir, "report.out")
	require.NoError(t, h.run("os", "download-file",
		"--bucket", "vault", "--key", "2026/report.bin", "--out", out, "--identity", identityFile))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestFailedDownloadKeepsExistingFile(t *testing.T) {
	h := newHarness(t)
	h.login()

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	dir := t.TempDir()
	identityFile := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(identityFile, []byte(identity.String()+"\n"), 0o600))

	// Several age chunks, with the last one corrupted, so decryption fails
	// after output has started.
	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, identity.Recipient())
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("chunk"), 50_000))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	corrupt := ciphertext.Bytes()
	corrupt[len(corrupt)-5] ^= 0xff

	h.handle("GET /os/buckets/vault/files/big.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(client.EncryptionHeader, "age")
		_, _ = w.Write(corrupt)
	})

	out := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(out, []byte("previous contents"), 0o644))

	err = h.run("os", "download-file", "--bucket", "vault", "--key", "big.bin", "--out", out, "--identity", identityFile)
	require.Error(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "previous contents", string(got))
	leftovers, err := filepath.Glob(filepath.Join(dir, ".big.bin.*.part"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestUploadWithPassphrasePrompts(t *testing.T) {
	h := newHarness(t)
	h.login()
	store := newObjectStore(h)
	h.prompter = interaction.NewScripted("correct horse battery staple")

	src := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(src, []byte("top secret"), 0o644))

	require.NoError(t, h.run("os", "upload-file", "--bucket", "vault", "--file", src, "--passphrase"))
	body, enc := store.get("vault/secret.txt")
	require.Equal(t, "age", enc)
	require.True(t, bytes.HasPrefix(body, []byte("age-encryption.org/v1")))
}

func TestFailedSealedUploadLeavesNoEncryptor(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("x"), 1<<16), 0o644))

	tests := []struct {
		name    string
		login   bool
		args    []string
		wantErr error
	}{
		{"no session", false, []string{"--bucket", "vault"}, client.ErrUnauthenticated},
		{"no bucket non-interactive", true, nil, interaction.ErrNonInteractive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.login {
				h.login()
			}
			newObjectStore(h)
			before := runtime.NumGoroutine()

			args := append([]string{"os", "upload-file", "--file", src, "--recipient", identity.Recipient().String()}, tt.args...)
			require.ErrorIs(t, h.run(args...), tt.wantErr)
			require.Empty(t, h.calls())
			require.Eventually(t, func() bool {
				return runtime.NumGoroutine() <= before
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestBucketIsSelectedWhenMissing(t *testing.T) {
	h := newHarness(t)
	h.login()
	store := newObjectStore(h)
	prompter := interaction.NewScripted("vault")
	h.prompter = prompter

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	require.NoError(t, h.run("os", "upload-file", "--file", src))
	require.Equal(t, []string{"Bucket"}, prompter.Asked)
	body, _ := store.get("vault/a.txt")
	require.Equal(t, "a", string(body))
}

func TestBucketSelectionFailsNonInteractively(t *testing.T) {
	h := newHarness(t)
	h.login()
	newObjectStore(h)

	err := h.run("os", "list-files")
	require.ErrorIs(t, err, interaction.ErrNonInteractive)
	require.Empty(t, h.calls())
}

func TestDeleteFileConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login()
	newObjectStore(h)

	h.prompter = interaction.NewScripted("no")
	require.ErrorIs(t, h.run("os", "delete-file", "--bucket", "photos", "--key", "a.txt"), errAborted)
	require.Empty(t, h.calls())

	h.prompter = interaction.NewScripted("yes")
	require.NoError(t, h.run("os", "delete-file", "--bucket", "photos", "--key", "a.txt"))
	require.Equal(t, []string{"DELETE /os/buckets/photos/files/a.txt"}, h.calls())
}

func TestCopyAndMoveFile(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /os/buckets/{bucket}/files:copy", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.FileInfo{Key: "b.txt"})
	})
	h.handle("POST /os/buckets/{bucket}/files:move", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.FileInfo{Key: "c.txt"})
	})

	require.NoError(t, h.run("os", "copy-file", "--bucket", "photos", "--from", "a.txt", "--to", "b.txt"))
	require.JSONEq(t, `{"source":"a.txt","destination":"b.txt"}`, string(h.lastRequest().Body))
	require.Contains(t, h.out.String(), "Copied photos/a.txt to photos/b.txt")

	require.NoError(t, h.run("os", "move-file", "--bucket", "photos", "--from", "b.txt", "--to", "c.txt", "--to-bucket", "vault"))
	require.JSONEq(t, `{"source":"b.txt","destination":"c.txt","destinationBucket":"vault"}`, string(h.lastRequest().Body))
	require.Contains(t, h.out.String(), "Moved photos/b.txt to vault/c.txt")
}

func TestCreateAccessGrant(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("POST /os/access-grants", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.AccessGrant{AccessGrant: "grant-xyz"})
	})

	require.NoError(t, h.run("os", "create-access-grant", "--bucket", "photos",
		"--path", "2026/", "--permission", "read", "--permission", "list", "--ttl", "24h"))
	require.JSONEq(t,
		`{"bucket":"photos","paths":["2026/"],"permissions":["read","list"],"expiresIn":86400}`,
		string(h.lastRequest().Body))
	require.Contains(t, h.out.String(), "grant-xyz")

	err := h.run("os", "create-access-grant", "--bucket", "photos", "--permission", "admin")
	require.ErrorContains(t, err, "unknown permission")
	require.Len(t, h.calls(), 1)
}

func TestAccountSize(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.handle("GET /os/account/size", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.AccountSize{Bytes: 3 << 20, Files: 12, Buckets: 2})
	})

	require.NoError(t, h.run("os", "get-account-size"))
	require.Contains(t, h.out.String(), "3.0 MiB")
}

func TestShellContinuesAfterError(t *testing.T) {
	h := newHarness(t)
	h.stdin = strings.Join([]string{
		"auth account",
		"",
		`auth account-exists --address "not an address"`,
		"config current-context",
		"exit",
		"config show",
	}, "\n")

	require.NoError(t, h.run("shell"))
	errOut := h.errOut.String()
	require.Contains(t, errOut, "Error: authentication required")
	require.Contains(t, errOut, "invalid address")
	require.Equal(t, "local\n", h.out.String())
	require.Empty(t, h.calls())
}

func TestShellRejectsStdinInput(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.stdin = strings.Join([]string{
		"auth authorize --file -",
		`{"action":"read","resource":"doc:1","subject":{"id":"u1"}}`,
		"config current-context",
	}, "\n")

	require.NoError(t, h.run("shell"))
	require.Contains(t, h.errOut.String(), "standard input is read by the shell")
	require.Equal(t, "local\n", h.out.String())
	require.Empty(t, h.calls())
}

func TestShellInheritsGlobalFlags(t *testing.T) {
	h := newHarness(t)
	h.stdin = "config show\n"

	require.NoError(t, h.run("--output", "json", "--api-uri", "https://api.example.com", "shell"))
	var view map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &view))
	require.Equal(t, "https://api.example.com", view["apiUri"])
}

func TestInheritedFlagsSkipsLogging(t *testing.T) {
	root, _ := newRootCommand(Deps{})
	pf := root.PersistentFlags()
	require.NoError(t, pf.Set("log-level", "debug"))
	require.NoError(t, pf.Set("context", "staging"))
	require.Equal(t, []string{"--context=staging"}, inheritedFlags(pf))
}

func TestConfigContextsAndPrecedence(t *testing.T) {
	h := newHarness(t)
	h.env.APIURI = ""

	require.NoError(t, h.run("config", "add-context", "staging", "--url", "https://staging.example", "--chain", "5"))
	require.NoError(t, h.run("config", "use-context", "staging"))
	require.NoError(t, h.run("config", "current-context"))
	require.Equal(t, "staging\n", h.out.String())

	show := func(args ...string) map[string]any {
		t.Helper()
		require.NoError(t, h.run(append([]string{"config", "show", "-o", "json"}, args...)...))
		var view map[string]any
		require.NoError(t, json.Unmarshal(h.out.Bytes(), &view))
		return view
	}

	view := show()
	require.Equal(t, "https://staging.example", view["apiUri"])
	require.EqualValues(t, 5, view["chainId"])

	h.env.APIURI = "https://env.example"
	require.Equal(t, "https://env.example", show()["apiUri"])
	require.Equal(t, "https://flag.example", show("--api-uri", "https://flag.example")["apiUri"])
	require.Equal(t, "http://localhost:8080", show("--context", "local", "--api-uri", "http://localhost:8080")["apiUri"])

	require.Error(t, h.run("config", "show", "--context", "missing"))

	require.NoError(t, h.run("config", "list-contexts"))
	require.Contains(t, h.out.String(), "* ")
	require.Contains(t, h.out.String(), "staging")

	require.NoError(t, h.run("config", "use-context", "local"))
	require.NoError(t, h.run("config", "delete-context", "staging"))
	require.Error(t, h.run("config", "use-context", "staging"))
}
