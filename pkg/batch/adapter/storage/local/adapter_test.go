package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
)

func TestLocalAdapter_RoundTrip(t *testing.T) {
	base := t.TempDir()
	a, err := NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: base, BucketName: "products", Prefix: "run-1"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Upload(ctx, "", "images/TARGET-selfcalimg2.fits", bytes.NewBufferString("SIMPLE"), "application/fits"))
	require.NoError(t, a.Upload(ctx, "", "reports/flags.parquet", bytes.NewBufferString("PAR1"), "application/vnd.apache.parquet"))

	_, err = os.Stat(filepath.Join(base, "products", "run-1", "images", "TARGET-selfcalimg2.fits"))
	require.NoError(t, err)

	rc, err := a.Download(ctx, "", "images/TARGET-selfcalimg2.fits")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "SIMPLE", string(data))

	var names []string
	require.NoError(t, a.ListObjects(ctx, "", "", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"images/TARGET-selfcalimg2.fits", "reports/flags.parquet"}, names)

	require.NoError(t, a.DeleteObject(ctx, "", "reports/flags.parquet"))
	require.NoError(t, a.DeleteObject(ctx, "", "reports/flags.parquet"))
}

func TestLocalAdapter_RejectsEscape(t *testing.T) {
	a, err := NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	err = a.Upload(context.Background(), "", "../../etc/passwd", bytes.NewBufferString("x"), "text/plain")
	assert.Error(t, err)
}

func TestNewLocalAdapter_RequiresBaseDir(t *testing.T) {
	_, err := NewLocalAdapter(storageConfig.StorageConfig{})
	assert.Error(t, err)
}
