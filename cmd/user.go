/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/palaver-chat/apiserver/internal/server"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	promoteUsername string
	promoteRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User administration",
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Set the role of a user",
	Long: `Set the role of a user. This is how the first admin is created:

	palaver user promote --username alice --role admin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role := types.Role(strings.ToLower(strings.TrimSpace(promoteRole)))
		if !role.Valid() {
			return fmt.Errorf("invalid role %q", promoteRole)
		}
		cfg, logger := loadConfig()

		app, err := server.OpenApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		user, err := app.Users.Promote(cmd.Context(), strings.TrimSpace(promoteUsername), role)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %q not found", promoteUsername)
			}
			return err
		}
		logger.Info("user role updated", "user_id", user.ID, "username", user.Username, "role", user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPromoteCmd)
	userPromoteCmd.Flags().StringVar(&promoteUsername, "username", "", "username to promote")
	userPromoteCmd.Flags().StringVar(&promoteRole, "role", string(types.RoleAdmin), "role to assign (user, moderator, admin)")
	_ = userPromoteCmd.MarkFlagRequired("username")
}
