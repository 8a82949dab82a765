package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New(), nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A nil client dials the registry;
// tests pass a mock.
func newRootCmd(v *viper.Viper, c RegistryClient) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "skilltoken",
		Short:         "Soulbound skill credential registry",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("data-dir", "", "data directory (default ~/.skilltoken)")
	pf.String("addr", "", "registry gRPC address (env SKILLTOKEN_ADDR)")
	pf.StringP("account", "a", "", "account to act as (env SKILLTOKEN_ACCOUNT)")
	pf.StringP("output", "o", "", "output format: text, json, yaml, markdown")
	pf.String("timeout", "", "per-command timeout, e.g. 10s (env SKILLTOKEN_TIMEOUT)")
	_ = v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = v.BindPFlag("addr", pf.Lookup("addr"))
	_ = v.BindPFlag("account", pf.Lookup("account"))
	_ = v.BindPFlag("output", pf.Lookup("output"))
	_ = v.BindPFlag("timeout", pf.Lookup("timeout"))

	r := &registryCmd{v: v, client: c}
	rootCmd.AddCommand(
		newServeCmd(v),
		newVersionCmd(),
		newRoleCmd(r),
		newCourseCmd(r),
		newCertCmd(r),
		newDelegateCmd(r),
		newVerifyCmd(r),
		newEventsCmd(r),
		newExportCmd(r),
	)
	return rootCmd
}
