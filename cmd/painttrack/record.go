package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/printer"
)

func newRecordCommand() *cobra.Command {
	var (
		possessionID string
		zone         string
		outcome      string
		quarter      int
		points       int64
		notes        string
		at           int64
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a paint touch into the local ledger",
		Long: "record appends one touch event to the durable local ledger. The event " +
			"is written before the command returns and syncs later via `painttrack sync`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			draft := ledger.TouchDraft{
				PossessionID: possessionID,
				PaintZone:    zone,
				Outcome:      outcome,
				Quarter:      quarter,
				Notes:        notes,
				Timestamp:    at,
			}
			if cmd.Flags().Changed("points") {
				draft.Points = &points
			}

			event, err := application.ledger.Append(cmd.Context(), draft)
			if err != nil {
				if errors.Is(err, ledger.ErrStorageFull) {
					return printer.Failure("record touch: local storage is full; free disk space and retry")
				}
				return printer.Failure("record touch: %v", err)
			}

			printer.Success("Recorded %s touch %s (%s) for possession %s",
				event.PaintZone, event.LocalID, event.Outcome, event.PossessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&possessionID, "possession", "", "Possession id (defaults to the active possession)")
	cmd.Flags().StringVar(&zone, "zone", "", "Paint zone label, e.g. left-block (required)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Outcome label, e.g. score (required)")
	cmd.Flags().IntVar(&quarter, "quarter", 0, "Quarter the touch happened in")
	cmd.Flags().Int64Var(&points, "points", 0, "Points produced by the touch")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form annotation")
	cmd.Flags().Int64Var(&at, "at", 0, "Touch timestamp as unix seconds (defaults to now)")
	_ = cmd.MarkFlagRequired("zone")
	_ = cmd.MarkFlagRequired("outcome")

	return cmd
}
