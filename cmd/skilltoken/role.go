package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func newRoleCmd(r *registryCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant and inspect TEACHER and ISSUER roles",
	}
	cmd.AddCommand(newRoleGrantCmd(r), newRoleHasCmd(r), newRoleListCmd(r))
	return cmd
}

func newRoleGrantCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <account> <role>",
		Short: "Grant a role (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[0], "account")
			if err != nil {
				return err
			}
			role, err := credential.ParseRole(args[1])
			if err != nil {
				return err
			}
			return r.run(cmd, "role grant", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				if err := c.GrantRole(ctx, account, role); err != nil {
					return err
				}
				return out.Result("role-granted", "role granted").
					With("account", account).
					With("role", role).
					Render()
			})
		},
	}
}

func newRoleHasCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "has <account> <role>",
		Short: "Check whether an account holds a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[0], "account")
			if err != nil {
				return err
			}
			role, err := credential.ParseRole(args[1])
			if err != nil {
				return err
			}
			return r.run(cmd, "role has", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				ok, err := c.HasRole(ctx, account, role)
				if err != nil {
					return err
				}
				return out.KV("has-role").
					Set("Account", account).
					Set("Role", role).
					Set("Granted", yesNo(ok)).
					Render()
			})
		},
	}
}

func newRoleListCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "list [account]",
		Short: "List the roles of an account (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "role list", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				var arg string
				if len(args) == 1 {
					arg = args[0]
				}
				account, err := accountOrSelf(arg, c, "account")
				if err != nil {
					return err
				}
				roles, err := c.Roles(ctx, account)
				if err != nil {
					return err
				}
				l := out.StringList("roles")
				for _, role := range roles {
					l.Add(string(role))
				}
				return l.Render()
			})
		},
	}
}
