package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

func newTallyCmd(opts *globalOptions) *cobra.Command {
	var (
		electionID string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Print the per-answer ballot counts of an election",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.service != serviceRecorder {
				return fmt.Errorf("tally only applies to the recorder")
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
			tally, err := svc.GetTally(cmd.Context(), electionID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				counts := make(map[string]int, len(model.Answers))
				for _, a := range model.Answers {
					counts[string(a)] = tally.Counts[a]
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"election_id":      tally.ElectionID,
					"total":            tally.Total,
					"counts_by_answer": counts,
				})
			}

			fmt.Fprintf(out, "election %s\n", tally.ElectionID)
			for _, a := range model.Answers {
				fmt.Fprintf(out, "  %-8s %d\n", a, tally.Counts[a])
			}
			fmt.Fprintf(out, "  %-8s %d\n", "total", tally.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&electionID, "election", "", "election to tally")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("election")
	return cmd
}
