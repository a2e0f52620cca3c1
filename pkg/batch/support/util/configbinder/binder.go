// Package configbinder binds loosely typed stage properties onto typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties takes the properties of a stage from the job definition and binds them to a target struct.
// The target struct uses `yaml` tags. Strings are converted to numbers, bools and durations, and
// comma-separated strings to slices. Keys the target does not declare are an error.
func BindProperties(props map[string]interface{}, target interface{}) error {
	if len(props) == 0 {
		return nil
	}

	config := &mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(props); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindStringProperties is BindProperties for string-valued maps, such as command line overrides.
func BindStringProperties(props map[string]string, target interface{}) error {
	m := make(map[string]interface{}, len(props))
	for k, v := range props {
		m[k] = v
	}
	return BindProperties(m, target)
}
