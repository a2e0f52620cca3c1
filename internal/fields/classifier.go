// Package fields assigns observed fields to the amplitude calibrator, phase calibrator and
// target roles.
package fields

import (
	"strings"

	"github.com/agnivade/levenshtein"

	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Role is the part a field plays in calibration.
type Role int

const (
	Target Role = iota
	AmplitudeCalibrator
	PhaseCalibrator
)

func (r Role) String() string {
	switch r {
	case AmplitudeCalibrator:
		return "amplitude"
	case PhaseCalibrator:
		return "phase"
	default:
		return "target"
	}
}

// StandardCalibrators are the flux density standards. 1331+305 is left to the catalog.
var StandardCalibrators = []string{"3C48", "3C147", "3C286", "0542+498", "0137+331"}

// Roles is a partition of a field list. Each set keeps the input order.
type Roles struct {
	Amplitude []string
	Phase     []string
	Targets   []string
}

// Bandpass returns the bandpass calibrators, which are the amplitude calibrators.
func (r Roles) Bandpass() []string {
	return r.Amplitude
}

// Calibrators returns the amplitude calibrators followed by the phase calibrators.
func (r Roles) Calibrators() []string {
	out := make([]string, 0, len(r.Amplitude)+len(r.Phase))
	out = append(out, r.Amplitude...)
	return append(out, r.Phase...)
}

// Of returns the role of field.
func (r Roles) Of(field string) Role {
	for _, f := range r.Amplitude {
		if f == field {
			return AmplitudeCalibrator
		}
	}
	for _, f := range r.Phase {
		if f == field {
			return PhaseCalibrator
		}
	}
	return Target
}

// Classifier classifies fields against the standard set and a catalog.
type Classifier struct {
	standard map[string]struct{}
	catalog  Catalog
}

// NewClassifier creates a classifier using catalog for phase calibrators.
func NewClassifier(catalog Catalog) *Classifier {
	std := make(map[string]struct{}, len(StandardCalibrators))
	for _, n := range StandardCalibrators {
		std[n] = struct{}{}
	}
	return &Classifier{standard: std, catalog: catalog}
}

// Classify partitions fields. Standard names become amplitude calibrators, catalog names
// phase calibrators and everything else a target.
func (c *Classifier) Classify(fields []string) Roles {
	roles := Roles{Amplitude: []string{}, Phase: []string{}, Targets: []string{}}
	for _, f := range fields {
		switch {
		case c.isStandard(f):
			roles.Amplitude = append(roles.Amplitude, f)
		case c.catalog.Contains(f):
			roles.Phase = append(roles.Phase, f)
		default:
			roles.Targets = append(roles.Targets, f)
			if near := c.nearMiss(f); near != "" {
				logger.Warn("target name is one edit away from a calibrator", "field", f, "calibrator", near)
			}
		}
	}
	logger.Event("field roles",
		"amplitude", roles.Amplitude, "phase", roles.Phase, "targets", roles.Targets)
	return roles
}

func (c *Classifier) isStandard(name string) bool {
	_, ok := c.standard[name]
	return ok
}

// nearMiss returns a standard or catalog name within one edit of name, ignoring case. Standards
// are tried first, then catalog names in sorted order.
func (c *Classifier) nearMiss(name string) string {
	upper := strings.ToUpper(name)
	check := func(candidate string) bool {
		return levenshtein.ComputeDistance(upper, strings.ToUpper(candidate)) <= 1
	}
	for _, s := range StandardCalibrators {
		if check(s) {
			return s
		}
	}
	for _, n := range c.catalog.Names() {
		if check(n) {
			return n
		}
	}
	return ""
}
