package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"billocr/models"
	"billocr/pkg/database"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username> <password>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		role := models.RoleUser
		if admin {
			role = models.RoleAdministrator
		}
		db, err := openDB(false)
		if err != nil {
			return err
		}
		u, err := database.CreateUser(db, args[0], args[1], role)
		if errors.Is(err, database.ErrUserExists) {
			fmt.Fprintf(cmd.OutOrStdout(), "user %s already exists\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s id=%d role=%s\n", u.Username, u.ID, role)
		return nil
	},
}

var userPasswordCmd = &cobra.Command{
	Use:   "password <username> <new-password>",
	Short: "Reset a user's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(false)
		if err != nil {
			return err
		}
		if err := database.ResetPassword(db, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password reset for user %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userPasswordCmd)
	userCreateCmd.Flags().Bool("admin", false, "grant the administrator role")
}
