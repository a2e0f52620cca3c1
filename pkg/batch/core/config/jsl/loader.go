package jsl

import (
	"gopkg.in/yaml.v3"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// LoadJobDefinition parses and validates a job definition.
func LoadJobDefinition(data JSLDefinitionBytes) (*Job, error) {
	var jobDef Job
	if err := yaml.Unmarshal(data, &jobDef); err != nil {
		return nil, exception.NewBatchError("jsl_loader", "failed to parse job definition", err, exception.KindConfiguration)
	}

	if jobDef.ID == "" {
		return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "'id' is not defined in job definition")
	}
	if jobDef.Name == "" {
		return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "job '%s' does not have 'name' defined", jobDef.ID)
	}
	if len(jobDef.Stages) == 0 {
		return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "job '%s' does not define any stages", jobDef.ID)
	}

	seen := make(map[string]bool, len(jobDef.Stages))
	for i, st := range jobDef.Stages {
		if st.ID == "" {
			return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "job '%s': stage %d has no 'id'", jobDef.ID, i)
		}
		if seen[st.ID] {
			return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "job '%s': stage ID '%s' is duplicated", jobDef.ID, st.ID)
		}
		seen[st.ID] = true
		if st.Tasklet.Ref == "" {
			return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration, "job '%s': stage '%s' has no tasklet ref", jobDef.ID, st.ID)
		}
		for _, key := range st.EnabledBy {
			if !config.IsStageFlag(key) {
				return nil, exception.NewBatchErrorf("jsl_loader", exception.KindConfiguration,
					"job '%s': stage '%s' is enabled by unknown flag '%s'", jobDef.ID, st.ID, key)
			}
		}
	}

	logger.Debugf("Loaded job definition '%s' with %d stages.", jobDef.ID, len(jobDef.Stages))
	return &jobDef, nil
}

// IsEnabled reports whether the stage runs under the given flags.
func (s Stage) IsEnabled(flags config.StagesConfig) bool {
	if len(s.EnabledBy) == 0 {
		return true
	}
	for _, key := range s.EnabledBy {
		if flags.Enabled(key) {
			return true
		}
	}
	return false
}
