package jsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
)

const jobYAML = `
id: capture
name: capture
stages:
  - id: import
    tasklet:
      ref: importTasklet
    enabled-by: [from_fits, from_multisrc_ms]
  - id: residualFlagging
    tasklet:
      ref: flaggingTasklet
      properties:
        phase: residual
`

func TestLoadJobDefinition(t *testing.T) {
	job, err := LoadJobDefinition([]byte(jobYAML))
	require.NoError(t, err)
	require.Len(t, job.Stages, 2)
	assert.Equal(t, "flaggingTasklet", job.Stages[1].Tasklet.Ref)
	assert.Equal(t, "residual", job.Stages[1].Tasklet.Properties["phase"])

	flags := config.StagesConfig{}
	assert.False(t, job.Stages[0].IsEnabled(flags))
	assert.True(t, job.Stages[1].IsEnabled(flags))
	flags.FromMultiSrcMS = true
	assert.True(t, job.Stages[0].IsEnabled(flags))
}

func TestLoadJobDefinition_Rejects(t *testing.T) {
	cases := map[string]string{
		"no id":        "name: x\nstages: [{id: a, tasklet: {ref: t}}]",
		"no stages":    "id: x\nname: x\n",
		"duplicate":    "id: x\nname: x\nstages: [{id: a, tasklet: {ref: t}}, {id: a, tasklet: {ref: t}}]",
		"no ref":       "id: x\nname: x\nstages: [{id: a}]",
		"unknown flag": "id: x\nname: x\nstages: [{id: a, tasklet: {ref: t}, enabled-by: [do_magic]}]",
		"bad yaml":     "id: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadJobDefinition([]byte(doc))
			assert.Error(t, err)
		})
	}
}
