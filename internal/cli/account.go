// Package cli holds the plumbing shared by skilltoken client commands:
// resolving who to act as, connecting, and rendering results.
package cli

import (
	"fmt"
	"time"

	"github.com/MasterChonk/SkillToken-V2/internal/config"
	"github.com/MasterChonk/SkillToken-V2/pkg/client"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// ClientSettings is the resolved connection setup of a client command.
type ClientSettings struct {
	Addr    string
	Account credential.Account
	Output  Format
	Timeout time.Duration
}

// LoadClientSettings merges flags (the viper keys addr, account, output and
// timeout) over the SKILLTOKEN_* environment. An empty account means the
// command runs anonymously.
func LoadClientSettings(v ViperGetter) (ClientSettings, error) {
	env, err := config.LoadClient()
	if err != nil {
		return ClientSettings{}, err
	}

	s := ClientSettings{
		Addr:    first(v.GetString("addr"), env.Addr),
		Output:  ParseFormat(first(v.GetString("output"), env.Output)),
		Timeout: env.Timeout,
	}

	if raw := v.GetString("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ClientSettings{}, fmt.Errorf("--timeout %q: %w", raw, err)
		}
		s.Timeout = d
	}

	if raw := first(v.GetString("account"), env.Account); raw != "" {
		a, err := credential.ParseAccount(raw)
		if err != nil {
			return ClientSettings{}, fmt.Errorf("account: %w", err)
		}
		s.Account = a
	}
	return s, nil
}

// DialOptions converts the settings into client options.
func (s ClientSettings) DialOptions() []client.Option {
	if s.Account.IsZero() {
		return nil
	}
	return []client.Option{client.WithAccount(s.Account)}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
