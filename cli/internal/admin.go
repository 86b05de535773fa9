package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/gosimple/slug"
	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/client"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Tenant administration",
		Long:  `Manage tenants and inspect their roles and groups. Requires an admin account.`,
	}

	cmd.AddCommand(newListTenantsCommand())
	cmd.AddCommand(newGetTenantCommand())
	cmd.AddCommand(newCreateTenantCommand())
	cmd.AddCommand(newUpdateTenantCommand())
	cmd.AddCommand(newDeleteTenantCommand())
	cmd.AddCommand(newListRolesCommand())
	cmd.AddCommand(newListGroupsCommand())

	return cmd
}

func printTenant(w *tabwriter.Writer, t *client.Tenant) {
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Name:\t%s\n", t.Name)
	fmt.Fprintf(w, "Slug:\t%s\n", orDash(t.Slug))
	fmt.Fprintf(w, "Domain:\t%s\n", orDash(t.Domain))
	fmt.Fprintf(w, "Description:\t%s\n", orDash(t.Description))
	fmt.Fprintf(w, "Created:\t%s\n", formatTime(t.CreatedAt))
	fmt.Fprintf(w, "Updated:\t%s\n", formatTime(t.UpdatedAt))
}

func newListTenantsCommand() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list-tenants",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			if opts.Offset < 0 || opts.Limit < 0 {
				return errors.New("--offset and --limit must not be negative")
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			list, err := sdk.Admin().ListTenants(cmd.Context(), opts)
			if err != nil {
				return err
			}

			return cc.render(list, func(w *tabwriter.Writer) {
				if len(list.Tenants) == 0 {
					fmt.Fprintln(w, "No tenants")
					return
				}
				fmt.Fprintln(w, "ID\tNAME\tSLUG\tDOMAIN\tCREATED")
				for _, t := range list.Tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.Name, orDash(t.Slug), orDash(t.Domain), formatTime(t.CreatedAt))
				}
				if list.Total > len(list.Tenants) {
					fmt.Fprintf(w, "\nShowing %d of %d tenants\n", len(list.Tenants), list.Total)
				}
			})
		},
	}

	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of tenants to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of tenants to return (0 for the service default)")
	return cmd
}

func newGetTenantCommand() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get-tenant",
		Short: "Show a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			id, err := cc.require(id, "Tenant ID")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			tenant, err := sdk.Admin().GetTenant(cmd.Context(), id)
			if err != nil {
				return err
			}
			return cc.render(tenant, func(w *tabwriter.Writer) { printTenant(w, tenant) })
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Tenant ID")
	return cmd
}

func newCreateTenantCommand() *cobra.Command {
	var req client.CreateTenantRequest

	cmd := &cobra.Command{
		Use:   "create-tenant",
		Short: "Create a tenant",
		Long: `Create a tenant. The slug defaults to a URL-safe form of the name.

Example:
  tessera admin create-tenant --name "Acme Research" --domain acme.example`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			name, err := cc.require(req.Name, "Tenant name")
			if err != nil {
				return err
			}
			req.Name = name
			if req.Slug == "" {
				req.Slug = slug.Make(req.Name)
			} else if !slug.IsSlug(req.Slug) {
				return fmt.Errorf("invalid --slug %q: use lowercase letters, digits and dashes", req.Slug)
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			tenant, err := sdk.Admin().CreateTenant(cmd.Context(), req)
			if err != nil {
				return err
			}
			return cc.render(tenant, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ Tenant created\n\n")
				printTenant(w, tenant)
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Tenant name")
	cmd.Flags().StringVar(&req.Slug, "slug", "", "URL-safe identifier (default: derived from --name)")
	cmd.Flags().StringVar(&req.Domain, "domain", "", "Tenant domain")
	cmd.Flags().StringVar(&req.Description, "description", "", "Tenant description")
	return cmd
}

func newUpdateTenantCommand() *cobra.Command {
	var id, name, domain, description string

	cmd := &cobra.Command{
		Use:   "update-tenant",
		Short: "Update a tenant",
		Long:  `Update a tenant. Only the flags that are given are changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			id, err := cc.require(id, "Tenant ID")
			if err != nil {
				return err
			}

			var req client.UpdateTenantRequest
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("domain") {
				req.Domain = &domain
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if req.Empty() {
				return errors.New("nothing to update: pass --name, --domain or --description")
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			tenant, err := sdk.Admin().UpdateTenant(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return cc.render(tenant, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ Tenant updated\n\n")
				printTenant(w, tenant)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Tenant ID")
	cmd.Flags().StringVar(&name, "name", "", "New tenant name")
	cmd.Flags().StringVar(&domain, "domain", "", "New tenant domain")
	cmd.Flags().StringVar(&description, "description", "", "New tenant description")
	return cmd
}

func newDeleteTenantCommand() *cobra.Command {
	var (
		id  string
		yes bool
	)

	cmd := &cobra.Command{
		Use:   "delete-tenant",
		Short: "Delete a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			id, err := cc.require(id, "Tenant ID")
			if err != nil {
				return err
			}
			if err := cc.confirm(yes, fmt.Sprintf("Delete tenant %s?", id)); err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			if err := sdk.Admin().DeleteTenant(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cc.Out, "✓ Tenant %s deleted\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Tenant ID")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func newListRolesCommand() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list-roles",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			roles, err := sdk.Admin().ListRoles(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			return cc.render(roles, func(w *tabwriter.Writer) {
				if len(roles) == 0 {
					fmt.Fprintln(w, "No roles")
					return
				}
				fmt.Fprintln(w, "ID\tNAME\tPERMISSIONS\tDESCRIPTION")
				for _, r := range roles {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						r.ID, r.Name, joinOrDash(r.Permissions), orDash(r.Description))
				}
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Only list roles of this tenant")
	return cmd
}

func newListGroupsCommand() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list-groups",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			groups, err := sdk.Admin().ListGroups(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			return cc.render(groups, func(w *tabwriter.Writer) {
				if len(groups) == 0 {
					fmt.Fprintln(w, "No groups")
					return
				}
				fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tDESCRIPTION")
				for _, g := range groups {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
						g.ID, g.Name, len(g.Members), orDash(g.Description))
				}
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Only list groups of this tenant")
	return cmd
}
