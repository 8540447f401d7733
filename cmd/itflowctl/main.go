package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"itflow/internal/config"
	"itflow/internal/database"
	"itflow/internal/logging"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "itflowctl",
	Short:         "ITFlow operator CLI",
	Long:          "itflowctl manages an ITFlow installation: schema, staff accounts and backups.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves config the same way the server does, minus server flags.
func loadConfig() (*config.Config, error) {
	var args []string
	if configPath != "" {
		args = []string{"-c", configPath}
	}
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}

// bootDB loads config and opens the database connection.
func bootDB(ctx context.Context) (*config.Config, *sql.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
