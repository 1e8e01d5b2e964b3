package main

import (
	"github.com/spf13/cobra"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/printer"
)

func newPossessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "possession",
		Short: "Manage possessions (games) in the local ledger",
	}

	cmd.AddCommand(
		newPossessionCreateCommand(),
		newPossessionListCommand(),
		newPossessionActivateCommand(),
		newPossessionCloseCommand(),
	)

	return cmd
}

func newPossessionCreateCommand() *cobra.Command {
	var (
		possessionID string
		name         string
		opponent     string
		gameDate     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a possession and make it the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			possession, err := application.ledger.CreatePossession(cmd.Context(), ledger.PossessionDraft{
				PossessionID: possessionID,
				Name:         name,
				Opponent:     opponent,
				GameDate:     gameDate,
			})
			if err != nil {
				return printer.Failure("create possession: %v", err)
			}

			printer.Success("Created possession %s (%s), now active", possession.PossessionID, possession.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&possessionID, "id", "", "Possession id (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Possession name (required)")
	cmd.Flags().StringVar(&opponent, "opponent", "", "Opponent name")
	cmd.Flags().StringVar(&gameDate, "date", "", "Game date, e.g. 2026-08-29")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newPossessionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List possessions in the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			possessions, err := application.ledger.ListPossessions(cmd.Context())
			if err != nil {
				return printer.Failure("list possessions: %v", err)
			}
			if len(possessions) == 0 {
				printer.Info("No possessions recorded yet")
				return nil
			}

			for _, possession := range possessions {
				marker := " "
				if possession.Active {
					marker = "*"
				}
				status := "open"
				if possession.Closed {
					status = "closed"
				}
				printer.Info("%s %s  %s  opponent=%s date=%s [%s]",
					marker, possession.PossessionID, possession.Name,
					possession.Opponent, possession.GameDate, status)
			}
			return nil
		},
	}
}

func newPossessionActivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <possessionId>",
		Short: "Make an existing possession the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			if err := application.ledger.ActivatePossession(cmd.Context(), args[0]); err != nil {
				return printer.Failure("activate possession: %v", err)
			}

			printer.Success("Possession %s is now active", args[0])
			return nil
		},
	}
}

func newPossessionCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <possessionId>",
		Short: "Close a possession so no further touches are recorded against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			if err := application.ledger.ClosePossession(cmd.Context(), args[0]); err != nil {
				return printer.Failure("close possession: %v", err)
			}

			printer.Success("Possession %s closed", args[0])
			return nil
		},
	}
}
