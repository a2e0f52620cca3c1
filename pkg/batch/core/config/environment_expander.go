package config

import (
	"os"
	"regexp"
)

// EnvironmentExpander expands environment variable placeholders in configuration data.
type EnvironmentExpander interface {
	// Expand returns input with ${VAR} placeholders replaced.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands ${VAR} and ${VAR:-default} from the process environment.
// Bare $VAR is left alone: CASA selection strings legitimately contain '$'.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates and returns a new instance of OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Expand replaces every ${VAR} with the value of VAR, or with the default after ":-" when VAR is unset
// or empty. Unset variables without a default expand to the empty string.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return placeholder.ReplaceAllFunc(input, func(m []byte) []byte {
		sub := placeholder.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		return sub[2]
	}), nil
}
