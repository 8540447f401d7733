package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"itflow/internal/model"
	"itflow/internal/service"
)

// multipart bodies carry some overhead on top of the file itself
const multipartOverhead = 1 << 20

type FileStore interface {
	Upload(ctx context.Context, actor model.Actor, in service.UploadInput) (*model.OrderFile, error)
	ListByOrder(ctx context.Context, actor model.Actor, orderID int64) ([]model.OrderFile, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.OrderFile, error)
	Open(ctx context.Context, actor model.Actor, id int64) (*model.OrderFile, io.ReadCloser, error)
	SetVisibility(ctx context.Context, actor model.Actor, id int64, visible bool) (*model.OrderFile, error)
	Delete(ctx context.Context, actor model.Actor, id int64) error
	SelectForArchive(ctx context.Context, actor model.Actor, orderID int64, ids []int64) ([]model.OrderFile, error)
	WriteArchive(ctx context.Context, files []model.OrderFile, w io.Writer) error
	FinalReport(ctx context.Context, actor model.Actor, orderID int64, w io.Writer) error
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func UploadFileHandler(files FileStore, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, service.ErrFileTooLarge)
				return
			}
			writeDetail(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		in := service.UploadInput{
			Name:             r.FormValue("name"),
			Description:      r.FormValue("description"),
			FileType:         r.FormValue("file_type"),
			VisibleToClients: parseBool(r.FormValue("visible_to_clients")),
		}
		if v := r.FormValue("order"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, service.ValidationError{"order": {"A valid integer is required."}})
				return
			}
			in.OrderID = id
		}

		file, header, err := r.FormFile("uploaded_file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeDetail(w, http.StatusBadRequest, "invalid multipart form")
			return
		default:
			defer file.Close()
			in.Content = file
			in.Filename = header.Filename
			in.Size = header.Size
			in.ContentType = header.Header.Get("Content-Type")
		}

		f, err := files.Upload(r.Context(), actor, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func ListOrderFilesHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		list, err := files.ListByOrder(r.Context(), actor, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetFileHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		f, err := files.Get(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func FileContentHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		f, rc, err := files.Open(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(f.Name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
		if f.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
		}
		if _, err := io.Copy(w, rc); err != nil {
			slog.Error("failed to stream file", "file", f.ID, "error", err)
		}
	}
}

type visibilityRequest struct {
	VisibleToClients *bool `json:"visible_to_clients"`
}

func SetVisibilityHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req visibilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.VisibleToClients == nil {
			writeJSON(w, http.StatusBadRequest, service.ValidationError{"visible_to_clients": {"This field is required."}})
			return
		}

		f, err := files.SetVisibility(r.Context(), actor, id, *req.VisibleToClients)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func DeleteFileHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		if err := files.Delete(r.Context(), actor, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DownloadFilesHandler streams the selected files of an order as one zip.
func DownloadFilesHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		ids, err := parseIDs(r.URL.Query().Get("file_ids"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, service.ValidationError{"file_ids": {err.Error()}})
			return
		}
		if len(ids) == 0 {
			writeJSON(w, http.StatusBadRequest, service.ValidationError{"file_ids": {"This field is required."}})
			return
		}

		selected, err := files.SelectForArchive(r.Context(), actor, orderID, ids)
		if err != nil {
			writeError(w, r, err)
			return
		}

		aw := &archiveWriter{w: w, orderID: orderID}
		if err := files.WriteArchive(r.Context(), selected, aw); err != nil {
			if !aw.started {
				writeError(w, r, err)
				return
			}
			slog.Error("failed to write archive", "order", orderID, "error", err)
		}
	}
}

// archiveWriter sets the zip headers on the first write so an archive that
// fails before producing any bytes can still be answered with an error.
type archiveWriter struct {
	w       http.ResponseWriter
	orderID int64
	started bool
}

func (a *archiveWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "application/zip")
		a.w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="order_%d_files.zip"`, a.orderID))
	}
	return a.w.Write(p)
}

func FinalReportHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := files.FinalReport(r.Context(), actor, orderID, &buf); err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="final_report_order_%d.pdf"`, orderID))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = buf.WriteTo(w)
	}
}
