package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/kephascord/gateway"
)

type rootOptions struct {
	configFile string
	token      string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "kephascord-bot",
		Short: "Example bot running a kephascord gateway session",
		Long: `kephascord-bot connects to the gateway, logs incoming messages and
answers the /ping command in its logs. It is a reference for wiring a
session, its handlers, presence and metrics in an application.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (KEPHASCORD_* variables override it)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "bot token (overrides config and KEPHASCORD_TOKEN)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newRunCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the kephascord version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kephascord %s\n", gateway.Version)
			return nil
		},
	}
}
