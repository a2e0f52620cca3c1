// Package exception provides the error types shared by the capture pipeline.
// Every failure raised by a stage is a BatchError carrying the module that raised it and a Kind
// that decides how the run reacts: warnings narrow the remaining work, everything else aborts.
// Nothing in the pipeline is retried.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies a BatchError.
type Kind int

const (
	// KindInternal is an unexpected failure inside the orchestrator itself.
	KindInternal Kind = iota
	// KindMissingInput means a required dataset or file does not exist at a stage boundary.
	KindMissingInput
	// KindUnsupportedConfiguration means the data or the configuration is outside what the
	// channel planner and stages support (unknown channel count, band, hardware-correlator data).
	KindUnsupportedConfiguration
	// KindEmptyRoleSet means a field-role list a step depends on is empty. Not fatal.
	KindEmptyRoleSet
	// KindEngineCall is an opaque failure reported by the visibility processing engine.
	KindEngineCall
	// KindConfiguration means the configuration file or environment could not be loaded or validated.
	KindConfiguration
	// KindPersistence is a failure of the run ledger or artifact store.
	KindPersistence
)

// String returns the name of the kind as it appears in logs and the run ledger.
func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "MissingInput"
	case KindUnsupportedConfiguration:
		return "UnsupportedConfiguration"
	case KindEmptyRoleSet:
		return "EmptyRoleSet"
	case KindEngineCall:
		return "EngineCallFailure"
	case KindConfiguration:
		return "Configuration"
	case KindPersistence:
		return "Persistence"
	default:
		return "Internal"
	}
}

// Sentinels matched with errors.Is against any BatchError of the same kind.
var (
	ErrMissingInput             = errors.New("missing input")
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	ErrEmptyRoleSet             = errors.New("empty role set")
	ErrEngineCall               = errors.New("engine call failure")
	ErrConfiguration            = errors.New("invalid configuration")
	// ErrOptimisticLockingFailure reports a version conflict while updating a ledger record.
	ErrOptimisticLockingFailure = errors.New("optimistic locking failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindMissingInput:
		return ErrMissingInput
	case KindUnsupportedConfiguration:
		return ErrUnsupportedConfiguration
	case KindEmptyRoleSet:
		return ErrEmptyRoleSet
	case KindEngineCall:
		return ErrEngineCall
	case KindConfiguration:
		return ErrConfiguration
	default:
		return nil
	}
}

// BatchError is the error type raised by pipeline stages.
type BatchError struct {
	// Module indicates where the error occurred (e.g. "channelplan", "selfcal", "engine").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// Kind classifies the error.
	Kind Kind
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
//
// Parameters:
//
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The original error to wrap (may be nil).
//	kind: The classification of the error.
func NewBatchError(module, message string, originalErr error, kind Kind) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        kind,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// If the last argument is an error it is taken as the wrapped original error
// and not used for formatting.
//
// Example:
//
//	NewBatchErrorf("split", KindEngineCall, "transform of %s failed", name, err)
func NewBatchErrorf(module string, kind Kind, format string, a ...interface{}) *BatchError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, args...), originalErr, kind)
}

// NewMissingInputError reports a dataset or file that must exist but does not.
func NewMissingInputError(module, name string) *BatchError {
	return NewBatchErrorf(module, KindMissingInput, "required input %q does not exist", name)
}

// NewUnsupportedConfigurationError reports data or settings outside the supported envelope.
func NewUnsupportedConfigurationError(module, format string, a ...interface{}) *BatchError {
	return NewBatchErrorf(module, KindUnsupportedConfiguration, format, a...)
}

// NewEmptyRoleSetWarning reports that the role a step depends on has no fields.
func NewEmptyRoleSetWarning(module, role, step string) *BatchError {
	return NewBatchErrorf(module, KindEmptyRoleSet, "no %s fields; skipping %s", role, step)
}

// NewEngineCallError wraps a failure returned by the processing engine.
func NewEngineCallError(module, operation string, err error) *BatchError {
	return NewBatchErrorf(module, KindEngineCall, "engine call %s failed", operation, err)
}

// NewOptimisticLockingFailureException creates a BatchError indicating a version conflict.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, errToWrap, KindPersistence)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is lets errors.Is match a BatchError against the sentinel of its kind.
func (e *BatchError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// AsBatchError returns the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsBatchError determines if err is, or wraps, a BatchError.
func IsBatchError(err error) bool {
	_, ok := AsBatchError(err)
	return ok
}

// KindOf returns the kind of the first BatchError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if be, ok := AsBatchError(err); ok {
		return be.Kind
	}
	return KindInternal
}

// IsWarning reports whether err only narrows the remaining work.
func IsWarning(err error) bool {
	return err != nil && KindOf(err) == KindEmptyRoleSet
}

// IsFatal reports whether err must abort the run. Any non-nil error that is not a warning is fatal.
func IsFatal(err error) bool {
	return err != nil && !IsWarning(err)
}

// IsOptimisticLockingFailure determines if an error indicates a ledger version conflict.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBatchError(err); ok {
		return be.Message
	}
	return err.Error()
}
