package main

import (
	"github.com/spf13/cobra"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/printer"
)

func newAuditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <possessionId>",
		Short: "Compare the local ledger against the remote store for a possession",
		Long: "audit fetches the possession's events from the remote store and reports " +
			"local events the store has not acknowledged and remote events missing locally.",
		Args: cobra.ExactArgs(1),
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

			possessionID := args[0]
			local, err := application.ledger.ListByPossession(cmd.Context(), possessionID)
			if err != nil {
				return printer.Failure("audit: %v", err)
			}
			stored, err := client.ListByPossession(cmd.Context(), possessionID)
			if err != nil {
				return printer.Failure("audit: remote store unreachable: %v", err)
			}

			remoteByLocalID := make(map[string]bool, len(stored))
			for _, event := range stored {
				remoteByLocalID[event.LocalID] = true
			}
			localByID := make(map[string]bool, len(local))
			for _, event := range local {
				localByID[event.LocalID] = true
			}

			var missingRemote, missingLocal int
			for _, event := range local {
				if !remoteByLocalID[event.LocalID] {
					missingRemote++
					printer.Warning("local only: %s (%s, %s)", event.LocalID, event.SyncState, event.PaintZone)
				} else if event.SyncState != ledger.SyncStateSynced {
					printer.Warning("stored remotely but marked %s locally: %s", event.SyncState, event.LocalID)
				}
			}
			for _, event := range stored {
				if !localByID[event.LocalID] {
					missingLocal++
					printer.Warning("remote only: %s (remoteId %s)", event.LocalID, event.RemoteID)
				}
			}

			if missingRemote == 0 && missingLocal == 0 {
				printer.Success("Ledger and remote store agree: %d local, %d remote", len(local), len(stored))
				return nil
			}
			printer.Info("%d local-only event(s), %d remote-only event(s); run `painttrack sync` to reconcile",
				missingRemote, missingLocal)
			return nil
		},
	}
}
