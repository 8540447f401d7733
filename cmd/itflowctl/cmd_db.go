package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"itflow/internal/database"
)

// itflowctl migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := bootDB(cmd.Context())
		if err != nil {
			return err
		}
		defer database.CloseDB(db)

		if err := database.InitSchema(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}
