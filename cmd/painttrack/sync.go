package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/printer"
	"github.com/courtsidelabs/painttrack/internal/remote"
	"github.com/courtsidelabs/painttrack/internal/syncer"
)

func newSyncCommand() *cobra.Command {
	var retryFailed bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending touch events to the remote store",
		Long: "sync runs one reconciliation pass: every pending event is pushed in " +
			"recording order and acknowledged events are marked synced. The pass is " +
			"safe to repeat; the remote store deduplicates by local id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			client, err := application.remoteClient()
			if err != nil {
				return printer.Failure("%v", err)
			}

			if err := registerPossessions(cmd.Context(), application, client, retryFailed); err != nil {
				return printer.Failure("sync: %v", err)
			}

			engine, err := syncer.NewEngine(syncer.EngineConfig{
				Ledger: application.ledger,
				Remote: client,
				Logger: application.logger,
			})
			if err != nil {
				return printer.Failure("%v", err)
			}

			summary, runErr := engine.Run(cmd.Context(), syncer.Options{RetryFailed: retryFailed})
			reportSummary(summary)

			if runErr != nil {
				var incomplete *syncer.IncompleteError
				if errors.As(runErr, &incomplete) {
					return printer.Failure("sync incomplete: %v (%d events untried, rerun to resume)",
						incomplete.Cause, summary.Untried)
				}
				return printer.Failure("sync: %v", runErr)
			}

			if summary.Sent == 0 {
				printer.Info("Nothing to sync")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Re-push every failed event, not just ones flagged for retry")

	return cmd
}

// registerPossessions makes sure the remote store knows every possession the
// upcoming pass will push events for. Registration is idempotent, so repeating
// it on every sync is harmless.
func registerPossessions(ctx context.Context, application *app, client *remote.Client, retryFailed bool) error {
	pending, err := application.ledger.ListPending(ctx, retryFailed)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	possessions, err := application.ledger.ListPossessions(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]ledger.Possession, len(possessions))
	for _, possession := range possessions {
		byID[possession.PossessionID] = possession
	}

	seen := make(map[string]bool, len(pending))
	for _, event := range pending {
		if seen[event.PossessionID] {
			continue
		}
		seen[event.PossessionID] = true

		payload := remote.PossessionPayload{PossessionID: event.PossessionID, Name: event.PossessionID}
		if possession, ok := byID[event.PossessionID]; ok {
			payload.Name = possession.Name
			payload.Opponent = possession.Opponent
			payload.GameDate = possession.GameDate
		}
		if _, err := client.EnsurePossession(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

func reportSummary(summary syncer.Summary) {
	if summary.Synced > 0 {
		printer.Success("Synced %d of %d events", summary.Synced, summary.Sent)
	}
	if summary.Failed > 0 {
		printer.Warning("%d event(s) rejected by the remote store:", summary.Failed)
		for _, failure := range summary.Failures {
			printer.Warning("  %s: %s", failure.LocalID, failure.Reason)
		}
		printer.Info("Fix the underlying data, then `painttrack retry <localId>` or `painttrack sync --retry-failed`")
	}
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <localId>",
		Short: "Flag a failed touch event for the next sync pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			if err := application.ledger.RequestRetry(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, ledger.ErrNotFailed) {
					return printer.Failure("retry: event %s is not in the failed state", args[0])
				}
				return printer.Failure("retry: %v", err)
			}

			printer.Success("Event %s will be re-pushed on the next sync", args[0])
			return nil
		},
	}
}
