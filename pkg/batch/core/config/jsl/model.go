// Package jsl defines the job definition language of the pipeline: a YAML document listing
// the stages of a job in execution order.
package jsl

// JSLDefinitionBytes holds the content of a job definition file as a byte slice.
type JSLDefinitionBytes []byte

// Job represents the top-level structure of a job definition.
type Job struct {
	// ID is the unique identifier for the job.
	ID string `yaml:"id"`
	// Name is the logical name of the job, recorded on every run.
	Name string `yaml:"name"`
	// Description is an optional description for the job.
	Description string `yaml:"description,omitempty"`
	// Stages are executed strictly in the listed order.
	Stages []Stage `yaml:"stages"`
}

// Stage represents a single processing stage within a job.
type Stage struct {
	// ID is the unique identifier for the stage; it names the StageExecution.
	ID string `yaml:"id"`
	// Description is an optional description for the stage.
	Description string `yaml:"description,omitempty"`
	// Tasklet references the registered tasklet builder that implements the stage.
	Tasklet ComponentRef `yaml:"tasklet"`
	// EnabledBy lists stage flags of the configuration. The stage runs when any of them is set,
	// or always when the list is empty.
	EnabledBy []string `yaml:"enabled-by,omitempty"`
}

// ComponentRef references a registered component by name, with its properties.
type ComponentRef struct {
	// Ref is the registered builder name.
	Ref string `yaml:"ref"`
	// Properties are bound onto the component's typed configuration.
	Properties map[string]interface{} `yaml:"properties,omitempty"`
}
