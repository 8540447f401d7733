package service

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"itflow/internal/database"
	"itflow/internal/model"
	"itflow/internal/report"
	"itflow/internal/storage"
)

const fileSelect = `
	SELECT id, order_id, name, description, file_type, size, visible_to_clients, storage_key, url, uploaded_by, created_at
	FROM order_files
`

func scanFile(row rowScanner) (*model.OrderFile, error) {
	var (
		f          model.OrderFile
		uploadedBy sql.NullInt64
	)
	err := row.Scan(&f.ID, &f.OrderID, &f.Name, &f.Description, &f.FileType, &f.Size, &f.VisibleToClients,
		&f.StorageKey, &f.URL, &uploadedBy, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.UploadedBy = nullInt(uploadedBy)
	if f.URL == "" {
		f.URL = fileContentPath(f.ID)
	}
	return &f, nil
}

// fileContentPath is the API route serving a file whose disk has no public
// address.
func fileContentPath(id int64) string {
	return fmt.Sprintf("/api/files/%d/content", id)
}

var fileExtensions = map[model.FileType]string{
	model.FileTypePDF:  ".pdf",
	model.FileTypeDOCX: ".docx",
	model.FileTypeZIP:  ".zip",
}

// FileTypeOf guesses the file type from the name's extension.
func FileTypeOf(name string) model.FileType {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return model.FileTypePDF
	case ".docx", ".doc":
		return model.FileTypeDOCX
	case ".zip":
		return model.FileTypeZIP
	default:
		return model.FileTypeOther
	}
}

func validFileType(t model.FileType) bool {
	switch t {
	case model.FileTypePDF, model.FileTypeDOCX, model.FileTypeZIP, model.FileTypeOther:
		return true
	}
	return false
}

// archiveName returns the name a file gets inside a zip archive.
func archiveName(f model.OrderFile) string {
	name := path.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	if name == "." || name == "/" {
		name = fmt.Sprintf("file_%d", f.ID)
	}
	if path.Ext(name) == "" {
		name += fileExtensions[f.FileType]
	}
	return name
}

type FileService struct {
	db       *sql.DB
	disk     storage.Disk
	maxBytes int64
	company  report.Company
}

func NewFileService(db *sql.DB, disk storage.Disk, maxBytes int64, company report.Company) *FileService {
	return &FileService{db: db, disk: disk, maxBytes: maxBytes, company: company}
}

type UploadInput struct {
	OrderID          int64
	Name             string
	Description      string
	FileType         string
	VisibleToClients bool
	Filename         string
	ContentType      string
	Size             int64
	Content          io.Reader
}

// Upload stores the content on the disk and registers it on the order.
func (s *FileService) Upload(ctx context.Context, actor model.Actor, in UploadInput) (*model.OrderFile, error) {
	if actor.Role != model.RoleProgrammer && actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}

	verr := ValidationError{}
	if in.OrderID == 0 {
		verr.add("order", requiredField)
	}
	if in.Content == nil || in.Filename == "" {
		verr.add("uploaded_file", requiredField)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = path.Base(in.Filename)
	}
	fileType := model.FileType(strings.ToLower(strings.TrimSpace(in.FileType)))
	if fileType == "" {
		fileType = FileTypeOf(in.Filename)
	} else if !validFileType(fileType) {
		verr.add("file_type", fmt.Sprintf("%q is not a valid choice.", in.FileType))
	}
	if err := verr.err(); err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	if _, err := orderFor(ctx, s.db, actor, in.OrderID, false); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("orders/%d/%s_%s", in.OrderID, uuid.NewString(), path.Base(in.Filename))
	if err := s.disk.Put(ctx, key, in.Content, in.Size, in.ContentType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	var file *model.OrderFile
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO order_files (order_id, name, description, file_type, size, visible_to_clients, storage_key, url, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, order_id, name, description, file_type, size, visible_to_clients, storage_key, url, uploaded_by, created_at`,
			in.OrderID, in.Name, strings.TrimSpace(in.Description), fileType, in.Size, in.VisibleToClients,
			key, s.disk.URL(key), actor.ID,
		)
		f, err := scanFile(row)
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		file = f

		return writeLog(ctx, tx, model.LogEntry{
			OrderID:     in.OrderID,
			EventType:   model.EventFileAdded,
			Description: fmt.Sprintf("File added: %s", f.Name),
			FileID:      &f.ID,
		}, actor)
	})
	if err != nil {
		if delErr := s.disk.Delete(ctx, key); delErr != nil {
			slog.Error("failed to remove orphaned upload", "key", key, "error", delErr)
		}
		return nil, err
	}
	return file, nil
}

func (s *FileService) ListByOrder(ctx context.Context, actor model.Actor, orderID int64) ([]model.OrderFile, error) {
	if _, err := orderFor(ctx, s.db, actor, orderID, false); err != nil {
		return nil, err
	}

	where := " WHERE order_id = $1"
	if actor.Role == model.RoleClient {
		where += " AND visible_to_clients"
	}
	rows, err := s.db.QueryContext(ctx, fileSelect+where+" ORDER BY created_at DESC, id DESC", orderID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := []model.OrderFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return files, nil
}

// Get returns the file's metadata. Files on orders outside the actor's scope
// are not found; hidden files are refused to clients.
func (s *FileService) Get(ctx context.Context, actor model.Actor, id int64) (*model.OrderFile, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, fileSelect+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}

	if _, err := orderFor(ctx, s.db, actor, f.OrderID, false); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if actor.Role == model.RoleClient && !f.VisibleToClients {
		return nil, ErrFileHidden
	}
	return f, nil
}

// Open returns the file's metadata and its content. The caller closes the
// reader.
func (s *FileService) Open(ctx context.Context, actor model.Actor, id int64) (*model.OrderFile, io.ReadCloser, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.disk.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return f, rc, nil
}

func (s *FileService) SetVisibility(ctx context.Context, actor model.Actor, id int64, visible bool) (*model.OrderFile, error) {
	if actor.Role != model.RoleManager {
		return nil, ErrForbidden
	}
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	state := "hidden from clients"
	if visible {
		state = "visible to clients"
	}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE order_files SET visible_to_clients = $1 WHERE id = $2`, visible, id); err != nil {
			return fmt.Errorf("update file visibility: %w", err)
		}
		return writeLog(ctx, tx, model.LogEntry{
			OrderID:     f.OrderID,
			EventType:   model.EventComment,
			Description: fmt.Sprintf("File %q is now %s", f.Name, state),
			FileID:      &f.ID,
		}, actor)
	})
	if err != nil {
		return nil, err
	}
	f.VisibleToClients = visible
	return f, nil
}

// Delete removes a file. Managers may delete any file, others only their own
// uploads.
func (s *FileService) Delete(ctx context.Context, actor model.Actor, id int64) error {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	uploader := f.UploadedBy != nil && *f.UploadedBy == actor.ID
	if actor.Role != model.RoleManager && !uploader {
		return ErrForbidden
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_files WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
		return writeLog(ctx, tx, model.LogEntry{
			OrderID:     f.OrderID,
			EventType:   model.EventComment,
			Description: fmt.Sprintf("File deleted: %s", f.Name),
		}, actor)
	})
	if err != nil {
		return err
	}

	if err := s.disk.Delete(ctx, f.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("failed to remove file object", "key", f.StorageKey, "error", err)
	}
	return nil
}

// SelectForArchive picks the requested files of an order the actor may
// download. An empty result is ErrFileNotFound.
func (s *FileService) SelectForArchive(ctx context.Context, actor model.Actor, orderID int64, ids []int64) ([]model.OrderFile, error) {
	files, err := s.ListByOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.OrderFile
	for _, f := range files {
		if wanted[f.ID] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, ErrFileNotFound
	}
	return out, nil
}

// WriteArchive zips the files into w. Objects missing from the disk are
// skipped; when none is left ErrFileNotFound is returned before anything is
// written to w.
func (s *FileService) WriteArchive(ctx context.Context, files []model.OrderFile, w io.Writer) error {
	zw := zip.NewWriter(w)
	used := make(map[string]bool, len(files))
	written := 0

	for _, f := range files {
		rc, err := s.disk.Get(ctx, f.StorageKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				slog.Warn("file missing from storage, skipping", "file", f.ID, "key", f.StorageKey)
				continue
			}
			return fmt.Errorf("open %s: %w", f.StorageKey, err)
		}

		name := archiveName(f)
		for used[name] {
			name = fmt.Sprintf("%d_%s", f.ID, name)
		}
		used[name] = true

		entry, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: f.CreatedAt})
		if err != nil {
			rc.Close()
			return fmt.Errorf("create zip entry: %w", err)
		}
		_, err = io.Copy(entry, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("write zip entry: %w", err)
		}
		written++
	}

	if written == 0 {
		return ErrFileNotFound
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// FinalReport renders the order's PDF report into w.
func (s *FileService) FinalReport(ctx context.Context, actor model.Actor, orderID int64, w io.Writer) error {
	o, err := orderFor(ctx, s.db, actor, orderID, false)
	if err != nil {
		return err
	}
	history, err := listLog(ctx, s.db, orderID)
	if err != nil {
		return err
	}

	client, err := getUser(ctx, s.db, "u.id = $1", o.ClientID)
	if err != nil {
		return err
	}
	var managerName string
	if o.ManagerID != nil {
		manager, err := getUser(ctx, s.db, "u.id = $1", *o.ManagerID)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
		if manager != nil {
			managerName = manager.FullName()
		}
	}

	return report.Write(w, report.FinalReport{
		Company:     s.company,
		Order:       *o,
		ClientName:  client.FullName(),
		ManagerName: managerName,
		History:     history,
		GeneratedAt: time.Now(),
	})
}
