package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext(t *testing.T) {
	data, err := MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	data, err = MarshalExecutionContext(map[string]interface{}{"split_file": "TARGETsplit.ms", "published": 3})
	require.NoError(t, err)

	ctx := map[string]interface{}{"stale": true}
	require.NoError(t, UnmarshalExecutionContext(data, &ctx))
	assert.Equal(t, map[string]interface{}{"split_file": "TARGETsplit.ms", "published": float64(3)}, ctx)

	require.NoError(t, UnmarshalExecutionContext(nil, &ctx))
	assert.Empty(t, ctx)

	assert.Error(t, UnmarshalExecutionContext([]byte("{"), &ctx))
}

func TestFailures(t *testing.T) {
	data, err := MarshalFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	list, err := UnmarshalFailures([]byte(`["no calibrators"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"no calibrators"}, list)

	list, err = UnmarshalFailures(nil)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
