package handler

import (
	"context"
	"net/http"
	"strconv"

	"itflow/internal/model"
	"itflow/internal/service"
)

type BackupStore interface {
	Create(ctx context.Context) (*model.Backup, error)
	List(ctx context.Context) ([]model.Backup, error)
	Cleanup(ctx context.Context, days int) (int, error)
	Stats(ctx context.Context) (*service.BackupStats, error)
}

func BackupStatsHandler(backups BackupStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := backups.Stats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func ListBackupsHandler(backups BackupStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := backups.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateBackupHandler(backups BackupStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := backups.Create(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

type cleanupResponse struct {
	Message string `json:"message"`
	Cleaned int    `json:"cleaned"`
}

func CleanupBackupsHandler(backups BackupStore, defaultDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := defaultDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, service.ValidationError{"days": {"A valid integer is required."}})
				return
			}
			days = n
		}

		n, err := backups.Cleanup(r.Context(), days)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cleanupResponse{Message: "Old backups cleaned", Cleaned: n})
	}
}
