package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

func newCertCmd(r *registryCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cert",
		Aliases: []string{"certificate"},
		Short:   "Issue, validate and inspect certificates",
	}
	cmd.AddCommand(
		newCertIssueCmd(r),
		newCertValidateCmd(r),
		newCertGetCmd(r),
		newCertListCmd(r),
		newCertCountCmd(r),
		newCertCompletedCmd(r),
		newCertQueryCmd(r),
	)
	return cmd
}

type issueFlags struct {
	student string
	course  uint64
	hash    string
	file    string
	uri     string
}

// contentHash returns --hash, or the sha256 digest of --file computed
// locally. The file never leaves this machine.
func (f *issueFlags) contentHash() (string, error) {
	switch {
	case f.hash != "" && f.file != "":
		return "", errors.New("--hash and --file are mutually exclusive")
	case f.hash != "":
		return f.hash, nil
	case f.file != "":
		fh, err := os.Open(filepath.Clean(f.file))
		if err != nil {
			return "", fmt.Errorf("open --file: %w", err)
		}
		defer fh.Close()
		return credential.DigestContent(fh)
	}
	return "", errors.New("one of --hash or --file is required")
}

func newCertIssueCmd(r *registryCmd) *cobra.Command {
	var f issueFlags
	cmd := &cobra.Command{
		Use:   "issue --student <account> --course <id> (--hash <digest> | --file <path>)",
		Short: "Issue a certificate as course owner or delegated issuer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			student, err := parseAccount(f.student, "--student")
			if err != nil {
				return err
			}
			if f.course == 0 {
				return errors.New("--course is required")
			}
			hash, err := f.contentHash()
			if err != nil {
				return err
			}
			req := &transport.IssueCertificateRequest{
				Student:     student,
				CourseID:    f.course,
				ContentHash: hash,
				TokenURI:    f.uri,
			}
			return r.run(cmd, "cert issue", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				cert, err := c.IssueCertificate(ctx, req)
				if err != nil {
					return err
				}
				return out.Result("certificate-issued", "certificate issued").
					With("token id", cert.TokenID).
					With("student", cert.Student).
					With("course id", cert.CourseID).
					With("content hash", cert.ContentHash).
					Render()
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.student, "student", "", "student account")
	fl.Uint64Var(&f.course, "course", 0, "course id")
	fl.StringVar(&f.hash, "hash", "", "content digest of the evidence")
	fl.StringVar(&f.file, "file", "", "compute the content digest from this file")
	fl.StringVar(&f.uri, "uri", "", "token metadata URI")
	return cmd
}

func newCertValidateCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token-id>",
		Short: "Validate a certificate as course owner or delegated issuer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "token id")
			if err != nil {
				return err
			}
			return r.run(cmd, "cert validate", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				cert, err := c.Validate(ctx, id)
				if err != nil {
					return err
				}
				return out.Result("certificate-validated", "certificate validated").
					With("token id", cert.TokenID).
					With("validated by", cert.ValidatedBy).
					Render()
			})
		},
	}
}

func newCertGetCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "get <token-id>",
		Short: "Show a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "token id")
			if err != nil {
				return err
			}
			return r.run(cmd, "cert get", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				cert, err := c.GetCertificate(ctx, id)
				if err != nil {
					return err
				}
				return certificateKV(out, "certificate", cert).Render()
			})
		},
	}
}

func newCertListCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "list [student]",
		Short: "List the token ids held by a student (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "cert list", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				var arg string
				if len(args) == 1 {
					arg = args[0]
				}
				student, err := accountOrSelf(arg, c, "student")
				if err != nil {
					return err
				}
				ids, err := c.GetStudentCertificates(ctx, student)
				if err != nil {
					return err
				}
				l := out.StringList("student-certificates")
				for _, id := range ids {
					l.Add(fmtID(id))
				}
				return l.Render()
			})
		},
	}
}

func newCertCountCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of issued certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "cert count", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				n, err := c.TotalCertificates(ctx)
				if err != nil {
					return err
				}
				return out.KV("certificate-count").Set("Certificates", n).Render()
			})
		},
	}
}

func newCertCompletedCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "completed <student> <course-id>",
		Short: "Check whether a student holds a validated certificate for a course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			student, err := parseAccount(args[0], "student")
			if err != nil {
				return err
			}
			courseID, err := parseID(args[1], "course id")
			if err != nil {
				return err
			}
			return r.run(cmd, "cert completed", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				ok, err := c.HasCompletedCourse(ctx, student, courseID)
				if err != nil {
					return err
				}
				return out.KV("course-completion").
					Set("Student", student).
					Set("Course ID", courseID).
					Set("Completed", yesNo(ok)).
					Render()
			})
		},
	}
}

func newCertQueryCmd(r *registryCmd) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query [expression]",
		Short: "Filter certificates with a CEL expression over cert.*",
		Example: `  skilltoken cert query 'cert.validated && cert.course_id == 3'
  skilltoken cert query 'cert.issuer != cert.validated_by' --limit 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expr string
			if len(args) == 1 {
				expr = args[0]
			}
			return r.run(cmd, "cert query", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				certs, err := c.QueryCertificates(ctx, expr, limit)
				if err != nil {
					return err
				}
				return renderCertificates(out, certs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default 100)")
	return cmd
}
