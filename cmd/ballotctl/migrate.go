package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.database()
			if err != nil {
				return err
			}

			// Opening a store applies its migrations.
			var closeFn func() error
			if opts.service == serviceIssuer {
				stores, err := openIssuer(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				closeFn = stores.close
			} else {
				stores, err := openRecorder(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				closeFn = stores.close
			}
			defer func() { _ = closeFn() }()

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date (%s)\n", opts.service, cfg.Driver)
			return nil
		},
	}
}
