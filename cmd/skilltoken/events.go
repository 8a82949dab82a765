package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func newEventsCmd(r *registryCmd) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and follow the registry event log",
	}
	cmd.AddCommand(newEventsListCmd(r), newEventsWatchCmd(r))
	return cmd
}

func newEventsListCmd(r *registryCmd) *cobra.Command {
	var (
		after uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events after a sequence number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, "events list", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				events, err := c.Events(ctx, after, limit)
				if err != nil {
					return err
				}
				t := out.Table("events", "Seq", "Type", "At", "Actor", "Summary")
				for i := range events {
					e := &events[i]
					t.AddRow(fmtID(e.Seq), string(e.Type), fmtTime(e.At), e.Actor.Short(), eventSummary(e))
				}
				if n := len(events); n > 0 && n == limit {
					t.WithPagination(fmtID(events[n-1].Seq), true)
				}
				return t.Render()
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a greater sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to return")
	return cmd
}

func newEventsWatchCmd(r *registryCmd) *cobra.Command {
	var (
		after  uint64
		filter string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Replay and then follow events until interrupted",
		Example: `  skilltoken events watch --after 120
  skilltoken events watch --filter 'event.type == "CertificateIssued" && event.course_id == 3'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return r.stream(cmd, "events watch", func(ctx context.Context, c RegistryClient, out *cli.Output) error {
				s, err := c.WatchEvents(ctx, after, filter)
				if err != nil {
					return err
				}
				defer s.Close()

				for {
					e, err := s.Recv()
					if err != nil {
						if errors.Is(err, io.EOF) || ctx.Err() != nil {
							return nil
						}
						return err
					}
					if err := writeEvent(out, e); err != nil {
						return err
					}
				}
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "replay events with a greater sequence number first")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression over event.*")
	return cmd
}

// writeEvent prints one event per line in text mode, one JSON object per
// line for json, and a YAML document per event otherwise.
func writeEvent(out *cli.Output, e *credential.Event) error {
	w := out.Writer()
	switch out.Format() {
	case cli.FormatJSON:
		return json.NewEncoder(w).Encode(e)
	case cli.FormatYAML, cli.FormatMarkdown:
		data, err := yaml.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "---\n%s", data)
		return err
	}
	_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Seq, fmtTime(e.At), e.Type, e.Actor.Short(), eventSummary(e))
	return err
}
