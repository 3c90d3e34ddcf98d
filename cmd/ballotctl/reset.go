package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/ballotbox/internal/application"
)

func newResetCmd(opts *globalOptions) *cobra.Command {
	var (
		electionID string
		confirm    bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every ballot and credential hash of an election",
		Long: "Delete every ballot and credential hash recorded for an election.\n" +
			"Intended for clearing test runs before an election opens. The reset is audited.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.service != serviceRecorder {
				return fmt.Errorf("reset only applies to the recorder")
			}
			if !confirm {
				return errors.New("refusing to reset without --yes")
			}

			cfg, err := opts.database()
			if err != nil {
				return err
			}
			stores, err := openRecorder(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stores.close() }()

			svc := application.NewRecorderService(stores.ledger, stores.audit, slog.Default())
			res, err := svc.ResetElection(cmd.Context(), electionID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "election %s reset: %d ballots, %d credential hashes deleted\n",
				electionID, res.Ballots, res.Hashes)
			return nil
		},
	}

	cmd.Flags().StringVar(&electionID, "election", "", "election to reset")
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the irreversible reset")
	_ = cmd.MarkFlagRequired("election")
	return cmd
}
