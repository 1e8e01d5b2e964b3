package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/courtsidelabs/painttrack/internal/export"
	"github.com/courtsidelabs/painttrack/internal/printer"
)

func newExportCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <possessionId>",
		Short: "Export a possession's touch events as CSV",
		Long: "export renders every locally recorded touch for the possession as CSV, " +
			"including pending and failed events with their sync state. The output is " +
			"deterministic: the same ledger state always yields the same bytes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return printer.Failure("%v", err)
			}
			defer application.Close()

			exportService, err := export.NewService(export.ServiceConfig{
				Ledger: application.ledger,
				Logger: application.logger,
			})
			if err != nil {
				return printer.Failure("%v", err)
			}

			data, err := exportService.ExportPossession(cmd.Context(), args[0])
			if err != nil {
				return printer.Failure("export: %v", err)
			}

			if outputPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return printer.Failure("export: write %s: %v", outputPath, err)
			}
			printer.Success("Wrote %s (%d bytes)", outputPath, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write CSV to a file instead of stdout")

	return cmd
}
