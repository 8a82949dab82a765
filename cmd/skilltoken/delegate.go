package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func newDelegateCmd(r *registryCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delegate",
		Aliases: []string{"delegation"},
		Short:   "Delegate issuing rights for your courses",
	}
	cmd.AddCommand(
		newDelegateGrantCmd(r),
		newDelegateRevokeCmd(r),
		newDelegateCheckCmd(r),
		newDelegateListCmd(r),
	)
	return cmd
}

type scopeFlags struct {
	course uint64
	all    bool
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&f.course, "course", 0, "limit the grant to one course id")
	cmd.Flags().BoolVar(&f.all, "all", false, "cover every current and future course")
	cmd.MarkFlagsMutuallyExclusive("course", "all")
}

func (f *scopeFlags) scope() (credential.Scope, error) {
	switch {
	case f.all:
		return credential.AllCourses(), nil
	case f.course != 0:
		return credential.ForCourse(f.course), nil
	}
	return credential.Scope{}, errors.New("one of --course or --all is required")
}

func newDelegateGrantCmd(r *registryCmd) *cobra.Command {
	var f scopeFlags
	cmd := &cobra.Command{
		Use:   "grant <grantee> (--course <id> | --all)",
		Short: "Let another account issue and validate for your courses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grantee, err := parseAccount(args[0], "grantee")
			if err != nil {
				return err
			}
			scope, err := f.scope()
			if err != nil {
				return err
			}
			return r.run(cmd, "delegate grant", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				g, err := c.DelegateIssuer(ctx, grantee, scope)
				if err != nil {
					return err
				}
				return renderGrant(out, "delegation-granted", "delegation granted", g)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newDelegateRevokeCmd(r *registryCmd) *cobra.Command {
	var f scopeFlags
	cmd := &cobra.Command{
		Use:   "revoke <grantee> (--course <id> | --all)",
		Short: "Revoke a delegation with exactly this scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grantee, err := parseAccount(args[0], "grantee")
			if err != nil {
				return err
			}
			scope, err := f.scope()
			if err != nil {
				return err
			}
			return r.run(cmd, "delegate revoke", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				g, err := c.RevokeDelegation(ctx, grantee, scope)
				if err != nil {
					return err
				}
				return renderGrant(out, "delegation-revoked", "delegation revoked", g)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newDelegateCheckCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "check <grantor> <grantee> <course-id>",
		Short: "Check whether grantee may issue for grantor's course",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			grantor, err := parseAccount(args[0], "grantor")
			if err != nil {
				return err
			}
			grantee, err := parseAccount(args[1], "grantee")
			if err != nil {
				return err
			}
			courseID, err := parseID(args[2], "course id")
			if err != nil {
				return err
			}
			return r.run(cmd, "delegate check", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				ok, err := c.IsAuthorized(ctx, grantor, grantee, courseID)
				if err != nil {
					return err
				}
				return out.KV("delegation-check").
					Set("Grantor", grantor).
					Set("Grantee", grantee).
					Set("Course ID", courseID).
					Set("Authorized", yesNo(ok)).
					Render()
			})
		},
	}
}

func newDelegateListCmd(r *registryCmd) *cobra.Command {
	var by, to string
	cmd := &cobra.Command{
		Use:   "list [--by <grantor> | --to <grantee>]",
		Short: "List grants made by or to an account (default: made by you)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "delegate list", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				var (
					grants []credential.Grant
					err    error
				)
				if to != "" {
					grantee, perr := parseAccount(to, "--to")
					if perr != nil {
						return perr
					}
					grants, err = c.GrantsTo(ctx, grantee)
				} else {
					grantor, perr := accountOrSelf(by, c, "--by")
					if perr != nil {
						return perr
					}
					grants, err = c.GrantsBy(ctx, grantor)
				}
				if err != nil {
					return err
				}
				return renderGrants(out, grants)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "grantor account")
	cmd.Flags().StringVar(&to, "to", "", "grantee account")
	cmd.MarkFlagsMutuallyExclusive("by", "to")
	return cmd
}
