package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
)

func newCourseCmd(r *registryCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Register and inspect courses",
	}
	cmd.AddCommand(
		newCourseRegisterCmd(r),
		newCourseDeactivateCmd(r),
		newCourseGetCmd(r),
		newCourseListCmd(r),
		newCourseCountCmd(r),
	)
	return cmd
}

func newCourseRegisterCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "register <name>...",
		Short: "Register a course owned by your account (TEACHER only)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return r.run(cmd, "course register", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				course, err := c.RegisterCourse(ctx, name)
				if err != nil {
					return err
				}
				return out.Result("course-registered", "course registered").
					With("id", course.ID).
					With("name", course.Name).
					With("owner", course.Owner).
					Render()
			})
		},
	}
}

func newCourseDeactivateCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <course-id>",
		Short: "Stop issuance for a course you own; cannot be undone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "course id")
			if err != nil {
				return err
			}
			return r.run(cmd, "course deactivate", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				course, err := c.DeactivateCourse(ctx, id)
				if err != nil {
					return err
				}
				return out.Result("course-deactivated", "course deactivated").
					With("id", course.ID).
					With("name", course.Name).
					Render()
			})
		},
	}
}

func newCourseGetCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "get <course-id>",
		Short: "Show a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "course id")
			if err != nil {
				return err
			}
			return r.run(cmd, "course get", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				course, err := c.GetCourse(ctx, id)
				if err != nil {
					return err
				}
				return renderCourse(out, course)
			})
		},
	}
}

func newCourseListCmd(r *registryCmd) *cobra.Command {
	var teacher string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the courses of a teacher (default: your own)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "course list", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				owner, err := accountOrSelf(teacher, c, "--teacher")
				if err != nil {
					return err
				}
				courses, err := c.GetTeacherCourses(ctx, owner)
				if err != nil {
					return err
				}
				return renderCourses(out, courses)
			})
		},
	}
	cmd.Flags().StringVar(&teacher, "teacher", "", "teacher account")
	return cmd
}

func newCourseCountCmd(r *registryCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of registered courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "course count", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				n, err := c.TotalCourses(ctx)
				if err != nil {
					return err
				}
				return out.KV("course-count").Set("Courses", n).Render()
			})
		},
	}
}
