package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/siwe"
	"github.com/devilmonastery/tessera/internal/wallet"
)

func newRegisterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Account registration",
	}

	cmd.AddCommand(newRegisterAccountCommand())
	return cmd
}

func newRegisterAccountCommand() *cobra.Command {
	var (
		privateKey string
		email      string
		name       string
		chainID    int64
	)

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register an account for a wallet",
		Long: `Register an account for a wallet. Ownership is proven by signing a
Sign-In With Ethereum message with the wallet key (--private-key or PRIVATE_KEY).

Example:
  tessera register account --email ada@example.com --name "Ada"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			if cmd.Flags().Changed("chain-id") {
				if chainID <= 0 {
					return fmt.Errorf("--chain-id must be positive")
				}
				cc.ChainID = chainID
			}
			if privateKey == "" {
				privateKey = cc.Env.PrivateKey
			}
			privateKey, err := cc.requireSecret(privateKey, "Private key")
			if err != nil {
				return err
			}
			w, err := wallet.FromHex(privateKey)
			if err != nil {
				return err
			}

			sdk, err := cc.Client(authNone)
			if err != nil {
				return err
			}
			enforcer := sdk.Enforcer()

			flow := siwe.NewFlow(enforcer, nil, w, siwe.Config{
				APIURI:  cc.APIURI,
				ChainID: cc.ChainID,
				Clock:   cc.Now,
			})
			if err := flow.RequestNonce(cmd.Context()); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			if err := flow.Sign(); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}

			account, err := enforcer.RegisterAccount(cmd.Context(), client.RegisterAccountRequest{
				Address:   w.Address(),
				Message:   flow.Message(),
				Signature: flow.Signature(),
				Email:     email,
				Name:      name,
			})
			if err != nil {
				return err
			}

			return cc.render(account, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "✓ Registered account %s\n", orDash(account.ID))
				fmt.Fprintf(tw, "Address:\t%s\n", account.Address)
				fmt.Fprintf(tw, "Email:\t%s\n", orDash(account.Email))
				fmt.Fprintf(tw, "Name:\t%s\n", orDash(account.Name))
				fmt.Fprintln(tw, "\nRun 'tessera auth login' to start a session.")
			})
		},
	}

	cmd.Flags().StringVar(&privateKey, "private-key", "", "Hex wallet private key (default: $PRIVATE_KEY)")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "Chain ID for the signed message (default: $CHAIN_ID, the context, then 1)")
	return cmd
}
