package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"itflow/internal/database"
	"itflow/internal/service"
	"itflow/internal/storage"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and prune database backups",
}

func bootBackups(cmd *cobra.Command) (*service.BackupService, func(), error) {
	cfg, db, err := bootDB(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	disk, err := storage.New(cmd.Context(), cfg)
	if err != nil {
		database.CloseDB(db)
		return nil, nil, err
	}
	return service.NewBackupService(db, disk), func() { database.CloseDB(db) }, nil
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, closeDB, err := bootBackups(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		b, err := backups.Create(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup %d written to %s (%d bytes)\n", b.ID, b.BackupPath, *b.FileSize)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, closeDB, err := bootBackups(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		list, err := backups.List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tSIZE\tPATH")
		for _, b := range list {
			size := "-"
			if b.FileSize != nil {
				size = fmt.Sprint(*b.FileSize)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", b.ID, b.Status, b.CreatedAt.Format("2006-01-02 15:04"), size, b.BackupPath)
		}
		return tw.Flush()
	},
}

var backupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backup totals and the last successful backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, closeDB, err := bootBackups(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		st, err := backups.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printBackupStats(cmd.OutOrStdout(), st)
		return nil
	},
}

func printBackupStats(w io.Writer, st *service.BackupStats) {
	fmt.Fprintf(w, "Total:      %d\n", st.Total)
	fmt.Fprintf(w, "Successful: %d\n", st.Successful)
	fmt.Fprintf(w, "Failed:     %d\n", st.Failed)
	fmt.Fprintf(w, "Total size: %s\n", st.TotalSize)
	if st.LastBackup == nil {
		fmt.Fprintln(w, "Last:       none")
		return
	}
	fmt.Fprintf(w, "Last:       #%d %s (%s)\n", st.LastBackup.ID, st.LastBackup.BackupFile, st.LastBackup.CreatedAt.Format("2006-01-02 15:04"))
}

var cleanupDays int

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove archives of backups older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, closeDB, err := bootBackups(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := backups.Cleanup(cmd.Context(), cleanupDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %d backup(s)\n", n)
		return nil
	},
}

func init() {
	backupCleanupCmd.Flags().IntVar(&cleanupDays, "days", 7, "keep backups newer than this many days")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCmd.AddCommand(backupStatsCmd)
}
