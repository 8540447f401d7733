package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/model"
	"itflow/internal/service"
)

func TestParseRoles(t *testing.T) {
	roles, err := parseRoles(nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleClient}, roles)

	roles, err = parseRoles([]string{"Manager", " programmer "})
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleManager, model.RoleProgrammer}, roles)

	_, err = parseRoles([]string{"admin"})
	assert.ErrorContains(t, err, `unknown role "admin"`)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "itflowctl")
}

func TestPrintBackupStats(t *testing.T) {
	var out bytes.Buffer
	printBackupStats(&out, &service.BackupStats{Total: 2, Successful: 1, Failed: 1, TotalSize: "1.50 KB"})
	assert.Contains(t, out.String(), "Successful: 1")
	assert.Contains(t, out.String(), "Total size: 1.50 KB")
	assert.Contains(t, out.String(), "Last:       none")

	out.Reset()
	printBackupStats(&out, &service.BackupStats{
		Total:      1,
		Successful: 1,
		LastBackup: &model.Backup{ID: 4, BackupFile: "itflow_backup_20260101_000000.zip", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	assert.Contains(t, out.String(), "#4 itflow_backup_20260101_000000.zip (2026-01-01 00:00)")
}
