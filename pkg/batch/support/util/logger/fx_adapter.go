package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter forwards fx container events to the pipeline logger.
// Wiring noise goes to DEBUG; failures go to ERROR with the hook or constructor name attached.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	log := L().With("component", "fx")
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			log.Error("start hook failed", "hook", shortFuncName(e.FunctionName), "error", e.Err)
			return
		}
		log.Debug("start hook executed", "hook", shortFuncName(e.FunctionName), "runtime", e.Runtime)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			log.Error("stop hook failed", "hook", shortFuncName(e.FunctionName), "error", e.Err)
			return
		}
		log.Debug("stop hook executed", "hook", shortFuncName(e.FunctionName), "runtime", e.Runtime)
	case *fxevent.Supplied:
		if e.Err != nil {
			log.Error("supply failed", "type", e.TypeName, "error", e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			log.Error("provide failed", "constructor", shortFuncName(e.ConstructorName), "error", e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			log.Debug("provided", "type", t)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			log.Error("invoke failed", "function", shortFuncName(e.FunctionName), "error", e.Err)
		}
	case *fxevent.Stopping:
		log.Debug("stopping", "signal", e.Signal.String())
	case *fxevent.Stopped:
		if e.Err != nil {
			log.Error("stop failed", "error", e.Err)
		}
	case *fxevent.RollingBack:
		log.Error("start failed, rolling back", "error", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			log.Error("rollback failed", "error", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			log.Error("start failed", "error", e.Err)
			return
		}
		log.Debug("started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			log.Error("custom logger initialization failed", "error", e.Err)
		}
	}
}

// shortFuncName drops the anonymous-function suffix fx appends (".func1") so
// hooks are reported by their enclosing constructor.
func shortFuncName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
