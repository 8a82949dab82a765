package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/client"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

type registryCmd struct {
	v *viper.Viper
	// client is injected by tests instead of dialing.
	client RegistryClient
}

type runFunc func(ctx context.Context, c RegistryClient, out *cli.Output) error

func (r *registryCmd) run(cmd *cobra.Command, name string, fn runFunc) error {
	return r.exec(cmd, name, false, fn)
}

func (r *registryCmd) stream(cmd *cobra.Command, name string, fn runFunc) error {
	return r.exec(cmd, name, true, fn)
}

func (r *registryCmd) exec(cmd *cobra.Command, name string, stream bool, fn runFunc) error {
	settings, err := cli.LoadClientSettings(r.v)
	if err != nil {
		return err
	}
	return cli.RunCommand(cmd.Context(), cli.CommandConfig[RegistryClient]{
		Name:     name,
		Settings: settings,
		Connect:  r.connect,
		Run:      fn,
		Stream:   stream,
		Writer:   cmd.OutOrStdout(),
	})
}

func (r *registryCmd) connect(_ context.Context, s cli.ClientSettings) (RegistryClient, error) {
	if r.client != nil {
		return r.client, nil
	}
	c, err := client.Dial(s.Addr, s.DialOptions()...)
	if err != nil {
		return nil, err
	}
	return grpcClient{c}, nil
}

func parseAccount(s, what string) (credential.Account, error) {
	a, err := credential.ParseAccount(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", what, err)
	}
	return a, nil
}

func parseID(s, what string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s %q: want a positive integer", what, s)
	}
	return id, nil
}

// accountOrSelf parses s, or falls back to the client's own account.
func accountOrSelf(s string, c RegistryClient, what string) (credential.Account, error) {
	if s != "" {
		return parseAccount(s, what)
	}
	if a := c.Account(); !a.IsZero() {
		return a, nil
	}
	return "", fmt.Errorf("%s required (or pass --account)", what)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func fmtID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
