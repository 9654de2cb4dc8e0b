/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/palaver-chat/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var auditExportLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Moderation audit log tools",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the newest audit entries to object storage as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()

		app, err := server.OpenApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Audit.Entries(cmd.Context(), auditExportLimit)
		if err != nil {
			return err
		}
		key, err := app.Exporter.ExportAuditLog(cmd.Context(), entries)
		if err != nil {
			return err
		}
		logger.Info("audit log exported", "location", app.Storage.Location(key), "entries", len(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditExportCmd.Flags().IntVar(&auditExportLimit, "limit", 200, "number of newest entries to export")
}
