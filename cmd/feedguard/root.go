package main

import (
	"github.com/spf13/cobra"

	"github.com/berabot/feedguard/config"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "feedguard",
		Short:         "Rate limiting, circuit breaking and price streaming for the bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (YAML); FEEDGUARD_* env vars override it")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Context(), o.configFile)
}
