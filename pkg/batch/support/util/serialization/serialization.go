// Package serialization encodes the JSON columns of the run ledger: execution contexts and
// failure lists.
package serialization

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "serialization"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalExecutionContext serializes an execution context. A nil context is "{}".
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError(module, "failed to serialize ExecutionContext", err, exception.KindInternal)
	}
	return data, nil
}

// UnmarshalExecutionContext replaces the contents of *ctx with data.
func UnmarshalExecutionContext(data []byte, ctx *map[string]interface{}) error {
	if *ctx == nil {
		*ctx = make(map[string]interface{})
	} else {
		for k := range *ctx {
			delete(*ctx, k)
		}
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, ctx); err != nil {
		return exception.NewBatchError(module, "failed to deserialize ExecutionContext", err, exception.KindInternal)
	}
	return nil
}

// MarshalFailures serializes a list of failure messages. A nil list is "[]".
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to serialize failures", err, exception.KindInternal)
	}
	return data, nil
}

// UnmarshalFailures decodes data into a list of failure messages. Empty data is an empty list.
func UnmarshalFailures(data []byte) ([]string, error) {
	out := make([]string, 0)
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, exception.NewBatchError(module, "failed to deserialize failures", err, exception.KindInternal)
	}
	return out, nil
}
