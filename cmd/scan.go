/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"os"

	"github.com/palaver-chat/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var scanArchive bool

// scanCmd runs the anomaly detector once and prints the findings.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the anomaly detector over all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()

		app, err := server.OpenApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		findings, err := app.Detector.Run(cmd.Context())
		if err != nil {
			return err
		}

		if scanArchive {
			key, err := app.Exporter.ArchiveFindings(cmd.Context(), findings)
			if err != nil {
				return err
			}
			logger.Info("findings archived", "location", app.Storage.Location(key), "findings", len(findings))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanArchive, "archive", false, "store the findings in the configured object storage")
}
