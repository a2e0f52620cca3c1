package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/engine/casa"
	"github.com/tigerroll/capture/internal/engine/simulated"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func TestNewRawEngine(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Capture.Engine.Casa.WorkDir = t.TempDir()
	e, err := NewRawEngine(cfg)
	require.NoError(t, err)
	assert.IsType(t, &casa.Engine{}, e)

	cfg.Capture.Engine.Type = "simulated"
	cfg.Capture.Inputs.MSFile = "obs.ms"
	e, err = NewRawEngine(cfg)
	require.NoError(t, err)
	require.IsType(t, &simulated.Engine{}, e)
	ok, err := e.Exists(context.Background(), "obs.ms")
	require.NoError(t, err)
	assert.True(t, ok)

	cfg.Capture.Engine.Type = "aips"
	_, err = NewRawEngine(cfg)
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)
}
