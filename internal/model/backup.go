package model

import "time"

type BackupStatus string

const (
	BackupPending BackupStatus = "pending"
	BackupRunning BackupStatus = "running"
	BackupSuccess BackupStatus = "success"
	BackupFailed  BackupStatus = "failed"
	BackupCleaned BackupStatus = "cleaned"
)

type Backup struct {
	ID           int64        `json:"id"`
	BackupFile   string       `json:"backup_file"`
	FileSize     *int64       `json:"file_size"`
	Status       BackupStatus `json:"status"`
	BackupPath   string       `json:"backup_path"`
	ErrorMessage string       `json:"error_message"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at"`
}
