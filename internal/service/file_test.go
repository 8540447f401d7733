package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/model"
	"itflow/internal/storage"
)

func TestFileService_WriteArchive(t *testing.T) {
	ctx := context.Background()
	disk, err := storage.NewLocalDisk(t.TempDir(), "http://localhost/storage")
	require.NoError(t, err)

	require.NoError(t, disk.Put(ctx, "orders/1/a_spec.pdf", strings.NewReader("first"), 5, "application/pdf"))
	require.NoError(t, disk.Put(ctx, "orders/1/b_spec.pdf", strings.NewReader("second"), 6, "application/pdf"))

	files := []model.OrderFile{
		{ID: 10, Name: "spec", FileType: model.FileTypePDF, StorageKey: "orders/1/a_spec.pdf", CreatedAt: time.Now()},
		{ID: 11, Name: "spec.pdf", FileType: model.FileTypePDF, StorageKey: "orders/1/b_spec.pdf", CreatedAt: time.Now()},
		{ID: 12, Name: "gone", FileType: model.FileTypeZIP, StorageKey: "orders/1/missing.zip", CreatedAt: time.Now()},
	}

	svc := NewFileService(nil, disk, 0, defaultTestCompany)
	var buf bytes.Buffer
	require.NoError(t, svc.WriteArchive(ctx, files, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(data)
	}

	assert.Equal(t, map[string]string{
		"spec.pdf":    "first",
		"11_spec.pdf": "second",
	}, got)
}

func TestFileService_WriteArchiveUniqueNames(t *testing.T) {
	ctx := context.Background()
	disk, err := storage.NewLocalDisk(t.TempDir(), "http://localhost/storage")
	require.NoError(t, err)

	for _, key := range []string{"orders/1/x", "orders/1/y", "orders/1/z"} {
		require.NoError(t, disk.Put(ctx, key, strings.NewReader(key), int64(len(key)), "application/pdf"))
	}
	files := []model.OrderFile{
		{ID: 3, Name: "2_a.pdf", FileType: model.FileTypePDF, StorageKey: "orders/1/x"},
		{ID: 1, Name: "a.pdf", FileType: model.FileTypePDF, StorageKey: "orders/1/y"},
		{ID: 2, Name: "a.pdf", FileType: model.FileTypePDF, StorageKey: "orders/1/z"},
	}

	svc := NewFileService(nil, disk, 0, defaultTestCompany)
	var buf bytes.Buffer
	require.NoError(t, svc.WriteArchive(ctx, files, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		assert.False(t, names[f.Name], "duplicate entry %s", f.Name)
		names[f.Name] = true
	}
	assert.Len(t, names, 3)
}

func TestFileService_WriteArchiveNothingLeft(t *testing.T) {
	ctx := context.Background()
	disk, err := storage.NewLocalDisk(t.TempDir(), "http://localhost/storage")
	require.NoError(t, err)

	files := []model.OrderFile{
		{ID: 1, Name: "gone.pdf", FileType: model.FileTypePDF, StorageKey: "orders/1/gone"},
	}

	svc := NewFileService(nil, disk, 0, defaultTestCompany)
	var buf bytes.Buffer
	err = svc.WriteArchive(ctx, files, &buf)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Zero(t, buf.Len())
}

type fileRow struct {
	id  int64
	url string
}

func (r fileRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.id
	*dest[8].(*string) = r.url
	return nil
}

func TestScanFile_URL(t *testing.T) {
	f, err := scanFile(fileRow{id: 42})
	require.NoError(t, err)
	assert.Equal(t, "/api/files/42/content", f.URL)

	f, err = scanFile(fileRow{id: 42, url: "https://cdn.example.com/orders/1/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/orders/1/a.pdf", f.URL)
}
