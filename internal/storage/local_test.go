package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/config"
)

func TestLocalDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d, err := NewLocalDisk(root, "http://localhost:8080/storage/")
	require.NoError(t, err)

	require.NoError(t, d.Put(ctx, "orders/1/brief.pdf", strings.NewReader("%PDF"), 4, "application/pdf"))

	rc, err := d.Get(ctx, "orders/1/brief.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	assert.Equal(t, "http://localhost:8080/storage/orders/1/brief.pdf", d.URL("orders/1/brief.pdf"))

	private, err := NewLocalDisk(root, "")
	require.NoError(t, err)
	assert.Empty(t, private.URL("orders/1/brief.pdf"))

	require.NoError(t, d.Delete(ctx, "orders/1/brief.pdf"))
	_, err = d.Get(ctx, "orders/1/brief.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, d.Delete(ctx, "orders/1/brief.pdf"), "deleting a missing object is not an error")
}

func TestLocalDiskStaysInsideRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	d, err := NewLocalDisk(root, "")
	require.NoError(t, err)

	require.NoError(t, d.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, ""))

	_, err = os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)

	assert.Error(t, d.Put(ctx, "/", strings.NewReader("x"), 1, ""))
}

func TestNewSelectsDisk(t *testing.T) {
	cfg := config.Default()
	cfg.StorageLocalRoot = t.TempDir()

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalDisk{}, d)

	cfg.StorageDisk = "s3"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err, "s3 without bucket")

	cfg.StorageDisk = "ftp"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
