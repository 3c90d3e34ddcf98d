package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit entries past retention and expired issuer state",
		Long: "Delete audit log entries older than --older-than. On the issuer, expired\n" +
			"escrowed credentials and rate-limit buckets are purged as well.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			cfg, err := opts.database()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			now := time.Now()
			out := cmd.OutOrStdout()

			if opts.service == serviceRecorder {
				stores, err := openRecorder(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = stores.close() }()

				n, err := stores.audit.Prune(ctx, now.Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "recorder: %d audit entries pruned\n", n)
				return nil
			}

			stores, err := openIssuer(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stores.close() }()

			audits, err := stores.audit.Prune(ctx, now.Add(-olderThan))
			if err != nil {
				return err
			}
			escrowed, err := stores.escrow.PurgeExpired(ctx, now)
			if err != nil {
				return err
			}
			buckets, err := stores.limiter.PurgeExpired(ctx, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "issuer: %d audit entries, %d escrowed credentials, %d rate-limit buckets pruned\n",
				audits, escrowed, buckets)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "audit retention")
	return cmd
}
