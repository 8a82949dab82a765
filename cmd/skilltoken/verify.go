package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func newVerifyCmd(r *registryCmd) *cobra.Command {
	var issuer string
	cmd := &cobra.Command{
		Use:   "verify <token-id> [--issuer <account>]",
		Short: "Verify a certificate, optionally against an expected issuer",
		Long: `Verify checks that a certificate exists and has been validated. With
--issuer it also requires that the account is the course owner or the
account that issued the certificate.

Verification failures are reported in the result, not as errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := parseID(args[0], "token id")
			if err != nil {
				return err
			}
			var expected credential.Account
			if issuer != "" {
				if expected, err = parseAccount(issuer, "--issuer"); err != nil {
					return err
				}
			}
			return r.run(cmd, "verify", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				res, err := c.Verify(ctx, tokenID, expected)
				if err != nil {
					return err
				}
				kv := out.KV("verification").
					Set("Token ID", tokenID).
					Set("Valid", yesNo(res.Valid)).
					SetIf(res.Reason != "", "Reason", res.Reason)
				if cert := res.Certificate; cert != nil {
					kv.Set("Student", cert.Student).
						Set("Course ID", cert.CourseID).
						Set("Content Hash", cert.ContentHash).
						Set("Issuer", cert.Issuer).
						Set("Issued At", cert.IssuedAt).
						SetIf(cert.Validated, "Validated By", cert.ValidatedBy)
				}
				if course := res.Course; course != nil {
					kv.Set("Course", course.Name).
						Set("Course Owner", course.Owner).
						Set("Course Active", course.Active)
				}
				return kv.Render()
			})
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "expected course owner or issuer")
	return cmd
}
