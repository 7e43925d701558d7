package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berabot/feedguard/resilience"
	"github.com/berabot/feedguard/store"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Record one request for key and report whether it was admitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			rdb, err := store.OpenRedis(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			limiter := resilience.NewSlidingWindowLimiter(rdb, cfg.Limiter.Resilience())
			key := args[0]
			allowed, err := limiter.Check(cmd.Context(), key)
			if err != nil {
				return err
			}

			limit := limiter.LimitFor(key)
			verdict := "denied"
			if allowed {
				verdict = "allowed"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d per %s)\n", key, verdict, limit.Requests, limit.Window)
			return err
		},
	}
}
