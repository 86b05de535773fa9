package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/authz"
	"github.com/devilmonastery/tessera/internal/credentials"
	"github.com/devilmonastery/tessera/internal/interaction"
	"github.com/devilmonastery/tessera/internal/pkg/logger"
	"github.com/devilmonastery/tessera/internal/pkg/timeutil"
	"github.com/devilmonastery/tessera/internal/siwe"
	"github.com/devilmonastery/tessera/internal/wallet"
)

const (
	loginMethodAPIKey     = "api-key"
	loginMethodPrivateKey = "private-key"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication, account and authorization commands",
		Long:  `Sign in, inspect the account, manage API keys and terms, and run authorization checks.`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthTokenCommand())
	cmd.AddCommand(newAuthAccountCommand())
	cmd.AddCommand(newAuthAccountExistsCommand())
	cmd.AddCommand(newCreateAPIKeyCommand())
	cmd.AddCommand(newListAPIKeysCommand())
	cmd.AddCommand(newAPIKeyToggleCommand("activate-api-key", "Activate an API key", true))
	cmd.AddCommand(newAPIKeyToggleCommand("deactivate-api-key", "Deactivate an API key", false))
	cmd.AddCommand(newDeleteAPIKeyCommand())
	cmd.AddCommand(newTermsCommand())
	cmd.AddCommand(newAcceptTermsCommand())
	cmd.AddCommand(newAuthorizeCommand(false))
	cmd.AddCommand(newAuthorizeCommand(true))

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		apiKey     string
		privateKey string
		chainID    int64
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache a session token",
		Long: `Sign in to the platform and cache the session token for 30 days.

With --private-key (or PRIVATE_KEY) the CLI signs a Sign-In With Ethereum
message with the wallet key. With --api-key (or API_KEY) the key is exchanged
for a session token. Without either, you are asked which to use.

Examples:
  # Sign in with a wallet key from the environment
  PRIVATE_KEY=0x... tessera auth login

  # Sign in with an API key against another deployment
  tessera auth login --api-key tk_... --api-uri https://api.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			log := logger.WithCommand(slog.Default(), "login")

			if cmd.Flags().Changed("chain-id") {
				if chainID <= 0 {
					return fmt.Errorf("--chain-id must be positive")
				}
				cc.ChainID = chainID
			}

			method, secret, err := resolveLoginMethod(cc, apiKey, privateKey)
			if err != nil {
				return err
			}
			log.Info("Starting login process", "method", method, "api_uri", cc.APIURI)

			sdk, err := cc.Client(authNone)
			if err != nil {
				return err
			}

			var (
				saved *credentials.Token
				who   string
			)
			switch method {
			case loginMethodAPIKey:
				bearer, err := sdk.Enforcer().LoginWithAPIKey(cmd.Context(), secret)
				if err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				if saved, err = cc.Store.Save(bearer, credentials.SessionTTL); err != nil {
					return fmt.Errorf("failed to save credentials: %w", err)
				}
				who = "API key"
			default:
				w, err := wallet.FromHex(secret)
				if err != nil {
					return err
				}
				flow := siwe.NewFlow(sdk.Enforcer(), cc.Store, w, siwe.Config{
					APIURI:  cc.APIURI,
					ChainID: cc.ChainID,
					Clock:   cc.Now,
				})
				if saved, err = flow.Run(cmd.Context()); err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				who = w.Address()
			}

			fmt.Fprintf(cc.Out, "✓ Successfully logged in as %s\n", who)
			fmt.Fprintf(cc.Out, "  Token expires: %s\n", formatTime(ptr(saved.Expiry())))
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to exchange for a session (default: $API_KEY)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Hex wallet private key to sign in with (default: $PRIVATE_KEY)")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "Chain ID for the sign-in message (default: $CHAIN_ID, the context, then 1)")
	cmd.MarkFlagsMutuallyExclusive("api-key", "private-key")

	return cmd
}

// resolveLoginMethod picks the sign-in method: flags first, then API_KEY,
// then PRIVATE_KEY, then a prompt.
func resolveLoginMethod(cc *CliContext, apiKey, privateKey string) (string, string, error) {
	switch {
	case apiKey != "":
		return loginMethodAPIKey, apiKey, nil
	case privateKey != "":
		return loginMethodPrivateKey, privateKey, nil
	case cc.Env.HasAPIKey():
		return loginMethodAPIKey, cc.Env.APIKey, nil
	case cc.Env.HasPrivateKey():
		return loginMethodPrivateKey, cc.Env.PrivateKey, nil
	}

	method, err := cc.Prompter.SelectValue("Sign in with", []interaction.SelectOption{
		{Label: "Wallet private key", Value: loginMethodPrivateKey},
		{Label: "API key", Value: loginMethodAPIKey},
	})
	if err != nil {
		return "", "", err
	}

	title := "Private key"
	if method == loginMethodAPIKey {
		title = "API key"
	} else {
		method = loginMethodPrivateKey
	}
	secret, err := cc.requireSecret("", title)
	if err != nil {
		return "", "", err
	}
	return method, secret, nil
}

type authStatus struct {
	LoggedIn        bool       `json:"loggedIn" yaml:"loggedIn"`
	Malformed       bool       `json:"malformed,omitempty" yaml:"malformed,omitempty"`
	CredentialsFile string     `json:"credentialsFile" yaml:"credentialsFile"`
	APIURI          string     `json:"apiUri" yaml:"apiUri"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	ValidFor        string     `json:"validFor,omitempty" yaml:"validFor,omitempty"`

	Claims *credentials.Claims `json:"claims,omitempty" yaml:"claims,omitempty"`
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			status := authStatus{CredentialsFile: cc.Store.Path(), APIURI: cc.APIURI}
			tok, err := cc.Store.Load()
			switch {
			case errors.Is(err, credentials.ErrCorrupt):
				status.Malformed = true
			case errors.Is(err, credentials.ErrNoCredential):
			case err != nil:
				return err
			default:
				status.LoggedIn = true
				expiry := tok.Expiry()
				status.ExpiresAt = &expiry
				status.ValidFor = timeutil.HumanDuration(expiry.Sub(cc.Now()))
				if claims, err := credentials.ParseClaims(tok.Token); err == nil {
					status.Claims = claims
				}
			}

			return cc.render(status, func(w *tabwriter.Writer) {
				switch {
				case status.Malformed:
					fmt.Fprintf(w, "Not logged in (credential file %s is malformed)\n", status.CredentialsFile)
					return
				case !status.LoggedIn:
					fmt.Fprintln(w, "Not logged in")
					return
				}
				if c := status.Claims; c != nil {
					fmt.Fprintf(w, "Logged in as:\t%s\n", orDash(c.Identity()))
					if c.Issuer != "" {
						fmt.Fprintf(w, "Issuer:\t%s\n", c.Issuer)
					}
					if c.Role != "" {
						fmt.Fprintf(w, "Role:\t%s\n", c.Role)
					}
					if c.ExpiredAt(cc.Now()) {
						fmt.Fprintf(w, "⚠  Token claims expired at\t%s\n", formatTime(c.ExpiresAt))
					}
				}
				fmt.Fprintf(w, "API URI:\t%s\n", status.APIURI)
				fmt.Fprintf(w, "Token expires:\t%s\n", formatTime(status.ExpiresAt))
				fmt.Fprintf(w, "✓  Valid for\t%s\n", status.ValidFor)
			})
		},
	}
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Display the cached session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			tok, err := cc.Store.Load()
			if err != nil {
				return fmt.Errorf("not logged in: %w", err)
			}

			fmt.Fprintln(cc.Out, tok.Token)
			return nil
		},
	}
}

func newAuthAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			account, err := sdk.Enforcer().Account(cmd.Context())
			if err != nil {
				return err
			}

			return cc.render(account, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "ID:\t%s\n", account.ID)
				fmt.Fprintf(w, "Address:\t%s\n", account.Address)
				fmt.Fprintf(w, "Email:\t%s\n", orDash(account.Email))
				fmt.Fprintf(w, "Name:\t%s\n", orDash(account.Name))
				fmt.Fprintf(w, "Tenant:\t%s\n", orDash(account.TenantID))
				fmt.Fprintf(w, "Roles:\t%s\n", joinOrDash(account.Roles))
				fmt.Fprintf(w, "Terms accepted:\t%t\n", account.TermsAccepted)
				fmt.Fprintf(w, "Created:\t%s\n", formatTime(account.CreatedAt))
			})
		},
	}
}

func newAuthAccountExistsCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "account-exists",
		Short: "Check whether an account exists for a wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			address, err := cc.require(address, "Address")
			if err != nil {
				return err
			}
			// Reject malformed addresses before touching the network.
			if err := wallet.ValidateAddress(address); err != nil {
				return err
			}

			sdk, err := cc.Client(authNone)
			if err != nil {
				return err
			}
			exists, err := sdk.Enforcer().AccountExists(cmd.Context(), address)
			if err != nil {
				return err
			}

			result := struct {
				Address string `json:"address" yaml:"address"`
				Exists  bool   `json:"exists" yaml:"exists"`
			}{address, exists}
			return cc.render(result, func(w *tabwriter.Writer) {
				if exists {
					fmt.Fprintf(w, "✓ Account exists for %s\n", address)
				} else {
					fmt.Fprintf(w, "No account for %s\n", address)
				}
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Wallet address (0x followed by 40 hex digits)")
	return cmd
}

func newCreateAPIKeyCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-api-key",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			key, err := sdk.Enforcer().CreateAPIKey(cmd.Context(), name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cc.Err, "Store this key now; it will not be shown again.")
			return cc.render(key, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "ID:\t%s\n", key.ID)
				fmt.Fprintf(w, "Name:\t%s\n", orDash(key.Name))
				fmt.Fprintf(w, "Key:\t%s\n", key.Key)
				fmt.Fprintf(w, "Active:\t%t\n", key.Active)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name to identify the key")
	return cmd
}

func newListAPIKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-api-keys",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			keys, err := sdk.Enforcer().ListAPIKeys(cmd.Context())
			if err != nil {
				return err
			}

			return cc.render(keys, func(w *tabwriter.Writer) {
				if len(keys) == 0 {
					fmt.Fprintln(w, "No API keys")
					return
				}
				fmt.Fprintln(w, "ID\tNAME\tPREFIX\tACTIVE\tCREATED\tLAST USED")
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
						k.ID, orDash(k.Name), orDash(k.Prefix), k.Active,
						formatTime(k.CreatedAt), formatTime(k.LastUsedAt))
				}
			})
		},
	}
}

func newAPIKeyToggleCommand(use, short string, activate bool) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			id, err := cc.require(id, "API key ID")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			verb := "activated"
			if activate {
				err = sdk.Enforcer().ActivateAPIKey(cmd.Context(), id)
			} else {
				verb = "deactivated"
				err = sdk.Enforcer().DeactivateAPIKey(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cc.Out, "✓ API key %s %s\n", id, verb)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "API key ID")
	return cmd
}

func newDeleteAPIKeyCommand() *cobra.Command {
	var (
		id  string
		yes bool
	)

	cmd := &cobra.Command{
		Use:   "delete-api-key",
		Short: "Delete an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			id, err := cc.require(id, "API key ID")
			if err != nil {
				return err
			}
			if err := cc.confirm(yes, fmt.Sprintf("Delete API key %s?", id)); err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			if err := sdk.Enforcer().DeleteAPIKey(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cc.Out, "✓ API key %s deleted\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "API key ID")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func newTermsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "terms",
		Short: "Show the terms of service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authOptional)
			if err != nil {
				return err
			}

			terms, err := sdk.Enforcer().Terms(cmd.Context())
			if err != nil {
				return err
			}

			if cc.Output != outputTable {
				return cc.render(terms, nil)
			}
			header := fmt.Sprintf("Terms of service, version %s", orDash(terms.Version))
			if terms.AcceptedAt != nil {
				header += fmt.Sprintf(" (accepted %s)", formatTime(terms.AcceptedAt))
			}
			fmt.Fprintln(cc.Out, header)
			return cc.printMarkdown(terms.Content)
		},
	}
}

func newAcceptTermsCommand() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "accept-terms",
		Short: "Accept the terms of service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			terms, err := sdk.Enforcer().AcceptTerms(cmd.Context(), version)
			if err != nil {
				return err
			}
			return cc.render(terms, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ Accepted terms version %s\n", orDash(terms.Version))
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Terms version to accept (default: current)")
	return cmd
}

func newAuthorizeCommand(batch bool) *cobra.Command {
	var (
		file    string
		inline  string
		outfile string
	)

	use, short := "authorize", "Evaluate an authorization request"
	if batch {
		use, short = "authorize-batch", "Evaluate several authorization requests in one call"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The request is read from --file (JSON or JSON with comments, "-" for stdin) or
--json. A request needs at least "action" and "resource". A batch is either an
array of requests or {"requests": [...]}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			src := authz.Source{File: file, Inline: inline, Stdin: cc.In}
			if src.Empty() {
				answer, err := cc.require("", "Authorization request (JSON)")
				if err != nil {
					return err
				}
				src.Inline = answer
			}

			load := authz.Load
			if batch {
				load = authz.LoadBatch
			}
			request, err := load(src)
			if err != nil {
				return err
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			enforcer := sdk.Enforcer()
			call := enforcer.Authorize
			if batch {
				call = enforcer.AuthorizeBatch
			}
			decision, err := call(cmd.Context(), request)
			if err != nil {
				return err
			}

			if outfile != "" {
				if err := writeDocument(outfile, decision); err != nil {
					return err
				}
				fmt.Fprintf(cc.Out, "✓ Response written to %s\n", outfile)
				return nil
			}
			return cc.renderDocument(decision)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the request from a file (\"-\" for stdin)")
	cmd.Flags().StringVar(&inline, "json", "", "Request as an inline JSON string")
	cmd.Flags().StringVar(&outfile, "outfile", "", "Write the response to a file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("file", "json")
	return cmd
}

func ptr[T any](v T) *T {
	return &v
}
