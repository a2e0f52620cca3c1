package parquet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/capture/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

type row struct {
	Report string  `parquet:"name=report, type=BYTE_ARRAY, convertedtype=UTF8"`
	Field  string  `parquet:"name=field, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value  float64 `parquet:"name=value, type=DOUBLE"`
}

func TestWriter_WritesOneFilePerPartition(t *testing.T) {
	store, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	w, err := NewWriter[row]("reports", map[string]interface{}{
		"outputBaseDir":   "reports",
		"compressionType": "gzip",
	}, store, func(r row) string { return r.Report })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, []row{
		{Report: "flags", Field: "3C286", Value: 0.12},
		{Report: "badants", Field: "3C286", Value: 0.01},
		{Report: "flags", Field: "TARGET", Value: 0.31},
	}))
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, []string{"reports/badants.parquet", "reports/flags.parquet"}, w.Written())

	var listed []string
	require.NoError(t, store.ListObjects(ctx, "", "reports/", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.ElementsMatch(t, w.Written(), listed)
}

func TestNewWriter_RequiresOutputBaseDir(t *testing.T) {
	_, err := NewWriter[row]("reports", map[string]interface{}{}, nil, func(r row) string { return "" })
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))

	_, err = NewWriter[row]("reports", map[string]interface{}{"outputBaseDir": "r", "compressionType": "zstd-ish"}, nil, func(r row) string { return "" })
	require.Error(t, err)
}
