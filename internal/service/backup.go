package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"itflow/internal/database"
	"itflow/internal/metrics"
	"itflow/internal/model"
	"itflow/internal/storage"
)

const backupPrefix = "backups/"

// exportQueries overrides the per-table export; password hashes never leave
// the database.
var exportQueries = map[string]string{
	"users": `SELECT COALESCE(json_agg(row_to_json(t) ORDER BY t.id), '[]')
		FROM (SELECT id, username, first_name, last_name, email, company, created_at FROM users) t`,
}

func exportQuery(table string) string {
	if q, ok := exportQueries[table]; ok {
		return q
	}
	return fmt.Sprintf(`SELECT COALESCE(json_agg(row_to_json(t)), '[]') FROM %s t`, table)
}

const backupSelect = `
	SELECT id, backup_file, file_size, status, backup_path, error_message, created_at, completed_at
	FROM backups
`

func scanBackup(row rowScanner) (*model.Backup, error) {
	var (
		b         model.Backup
		size      sql.NullInt64
		completed sql.NullTime
	)
	err := row.Scan(&b.ID, &b.BackupFile, &size, &b.Status, &b.BackupPath, &b.ErrorMessage, &b.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	b.FileSize = nullInt(size)
	b.CompletedAt = nullTime(completed)
	return &b, nil
}

type BackupService struct {
	db     *sql.DB
	disk   storage.Disk
	tables []string
	now    func() time.Time
}

func NewBackupService(db *sql.DB, disk storage.Disk) *BackupService {
	return &BackupService{db: db, disk: disk, tables: database.Tables, now: time.Now}
}

// Create dumps every table into a zip archive and uploads it to the disk.
// A failed run is recorded on the backup row and returned as an error.
func (s *BackupService) Create(ctx context.Context) (*model.Backup, error) {
	name := fmt.Sprintf("itflow_backup_%s.zip", s.now().UTC().Format("20060102_150405"))

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO backups (backup_file, status) VALUES ($1, $2) RETURNING id`, name, model.BackupPending,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert backup: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE backups SET status = $1 WHERE id = $2`, model.BackupRunning, id); err != nil {
		return nil, fmt.Errorf("mark backup running: %w", err)
	}

	key := fmt.Sprintf("%s%d_%s", backupPrefix, id, name)
	size, runErr := s.run(ctx, key)
	if runErr != nil {
		slog.Error("backup failed", "id", id, "error", runErr)
		metrics.Backups.WithLabelValues(string(model.BackupFailed)).Inc()
		_, err = s.db.ExecContext(ctx,
			`UPDATE backups SET status = $1, error_message = $2, completed_at = NOW() WHERE id = $3`,
			model.BackupFailed, runErr.Error(), id)
		if err != nil {
			slog.Error("failed to record backup failure", "id", id, "error", err)
		}
		return nil, fmt.Errorf("backup %d: %w", id, runErr)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE backups SET status = $1, file_size = $2, backup_path = $3, completed_at = NOW()
		WHERE id = $4
		RETURNING id, backup_file, file_size, status, backup_path, error_message, created_at, completed_at`,
		model.BackupSuccess, size, key, id)
	b, err := scanBackup(row)
	if err != nil {
		return nil, fmt.Errorf("mark backup success: %w", err)
	}

	metrics.Backups.WithLabelValues(string(model.BackupSuccess)).Inc()
	slog.Info("backup created", "id", id, "path", key, "size", size)
	return b, nil
}

func (s *BackupService) run(ctx context.Context, key string) (int64, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, table := range s.tables {
		var doc []byte
		if err := s.db.QueryRowContext(ctx, exportQuery(table)).Scan(&doc); err != nil {
			return 0, fmt.Errorf("export %s: %w", table, err)
		}
		w, err := zw.Create(table + ".json")
		if err != nil {
			return 0, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := w.Write(doc); err != nil {
			return 0, fmt.Errorf("write %s: %w", table, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip: %w", err)
	}

	size := int64(buf.Len())
	if err := s.disk.Put(ctx, key, &buf, size, "application/zip"); err != nil {
		return 0, fmt.Errorf("upload archive: %w", err)
	}
	return size, nil
}

func (s *BackupService) List(ctx context.Context) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx, backupSelect+" ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	backups := []model.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return backups, nil
}

type BackupStats struct {
	Total      int           `json:"total_backups"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	TotalBytes int64         `json:"total_size_bytes"`
	TotalSize  string        `json:"total_size"`
	LastBackup *model.Backup `json:"last_backup"`
}

// Stats summarises the backup history. Sizes count successful backups only.
func (s *BackupService) Stats(ctx context.Context) (*BackupStats, error) {
	var st BackupStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COALESCE(SUM(file_size) FILTER (WHERE status = $1), 0)
		FROM backups`, model.BackupSuccess, model.BackupFailed,
	).Scan(&st.Total, &st.Successful, &st.Failed, &st.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("query backup stats: %w", err)
	}
	st.TotalSize = formatSize(st.TotalBytes)

	row := s.db.QueryRowContext(ctx, backupSelect+" WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT 1", model.BackupSuccess)
	b, err := scanBackup(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("last backup: %w", err)
	default:
		st.LastBackup = b
	}
	return &st, nil
}

func formatSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f TB", size)
}

// Cleanup removes the archives of successful backups older than days and
// marks them cleaned. It returns the number of cleaned backups.
func (s *BackupService) Cleanup(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, ValidationError{"days": {"Ensure this value is greater than or equal to 0."}}
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, backupSelect+" WHERE status = $1 AND created_at < $2", model.BackupSuccess, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query old backups: %w", err)
	}
	var old []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan backup: %w", err)
		}
		old = append(old, *b)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("rows iteration failed: %w", err)
	}

	cleaned := 0
	for _, b := range old {
		if b.BackupPath != "" {
			if err := s.disk.Delete(ctx, b.BackupPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
				slog.Error("failed to remove backup archive", "id", b.ID, "path", b.BackupPath, "error", err)
				continue
			}
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE backups SET status = $1 WHERE id = $2`, model.BackupCleaned, b.ID); err != nil {
			return cleaned, fmt.Errorf("mark backup cleaned: %w", err)
		}
		cleaned++
	}
	return cleaned, nil
}
