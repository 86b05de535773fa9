package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/config"
	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration and contexts",
		Long:  `Manage CLI configuration including API contexts, similar to kubectl contexts.`,
	}

	cmd.AddCommand(newCurrentContextCommand())
	cmd.AddCommand(newUseContextCommand())
	cmd.AddCommand(newListContextsCommand())
	cmd.AddCommand(newAddContextCommand())
	cmd.AddCommand(newDeleteContextCommand())
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

// current-context command
func newCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Display the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			fmt.Fprintln(cc.Out, cc.Config.CurrentContext)
			return nil
		},
	}
}

// use-context command
func newUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context CONTEXT_NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			contextName := args[0]

			if err := cc.Config.SetCurrentContext(contextName); err != nil {
				return err
			}
			if err := SaveConfig(cc.ConfigPath, cc.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cc.Out, "Switched to context %q\n", contextName)
			return nil
		},
	}
}

// list-contexts command
func newListContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list-contexts",
		Aliases: []string{"get-contexts"},
		Short:   "List all available contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			if len(cc.Config.Contexts) == 0 {
				fmt.Fprintln(cc.Out, "No contexts configured")
				return nil
			}

			return cc.render(cc.Config, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CURRENT\tNAME\tAPI URI\tCHAIN\tTHEME")
				for _, name := range cc.Config.ContextNames() {
					ctx := cc.Config.Contexts[name]
					current := " "
					if name == cc.Config.CurrentContext {
						current = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						current,
						name,
						ctx.APIURI,
						ctx.ChainID,
						ctx.Rendering.Theme,
					)
				}
			})
		},
	}
}

// add-context command
func newAddContextCommand() *cobra.Command {
	var (
		apiURI  string
		chainID int64
		theme   string
	)

	cmd := &cobra.Command{
		Use:   "add-context CONTEXT_NAME",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			contextName := args[0]

			if _, err := urlutil.Host(apiURI); err != nil {
				return fmt.Errorf("invalid --api-uri: %w", err)
			}
			if chainID <= 0 {
				return fmt.Errorf("--chain-id must be positive")
			}

			ctx := &Context{APIURI: apiURI, ChainID: chainID}
			ctx.Rendering.Theme = theme
			cc.Config.AddContext(contextName, ctx)

			// If this is the first context, make it current
			if len(cc.Config.Contexts) == 1 {
				cc.Config.CurrentContext = contextName
			}

			if err := SaveConfig(cc.ConfigPath, cc.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cc.Out, "Context %q added/updated\n", contextName)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURI, "url", config.DefaultAPIURI, "API URI for this context")
	cmd.Flags().Int64Var(&chainID, "chain", config.DefaultChainID, "Chain ID used when signing in")
	cmd.Flags().StringVar(&theme, "theme", "auto", "Markdown rendering theme")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

// delete-context command
func newDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context CONTEXT_NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			contextName := args[0]

			if err := cc.Config.DeleteContext(contextName); err != nil {
				return err
			}
			if err := SaveConfig(cc.ConfigPath, cc.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cc.Out, "Context %q deleted\n", contextName)
			return nil
		},
	}
}

// show command: the effective settings for this invocation
func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			view := struct {
				Context         string `json:"context" yaml:"context"`
				APIURI          string `json:"apiUri" yaml:"apiUri"`
				ChainID         int64  `json:"chainId" yaml:"chainId"`
				Theme           string `json:"theme" yaml:"theme"`
				ConfigFile      string `json:"configFile" yaml:"configFile"`
				CredentialsFile string `json:"credentialsFile" yaml:"credentialsFile"`
				APIKeySet       bool   `json:"apiKeySet" yaml:"apiKeySet"`
				PrivateKeySet   bool   `json:"privateKeySet" yaml:"privateKeySet"`
			}{
				Context:         cc.ContextName,
				APIURI:          cc.APIURI,
				ChainID:         cc.ChainID,
				Theme:           cc.Config.Theme(cc.ContextName),
				ConfigFile:      cc.ConfigPath,
				CredentialsFile: cc.Store.Path(),
				APIKeySet:       cc.Env.HasAPIKey(),
				PrivateKeySet:   cc.Env.HasPrivateKey(),
			}

			return cc.render(view, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Context:\t%s\n", view.Context)
				fmt.Fprintf(w, "API URI:\t%s\n", view.APIURI)
				fmt.Fprintf(w, "Chain ID:\t%d\n", view.ChainID)
				fmt.Fprintf(w, "Glamour Theme:\t%s\n", view.Theme)
				fmt.Fprintf(w, "Config File:\t%s\n", view.ConfigFile)
				fmt.Fprintf(w, "Credentials File:\t%s\n", view.CredentialsFile)
				fmt.Fprintf(w, "%s set:\t%t\n", config.EnvAPIKey, view.APIKeySet)
				fmt.Fprintf(w, "%s set:\t%t\n", config.EnvPrivateKey, view.PrivateKeySet)
			})
		},
	}
}
