package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/capture/pkg/batch/listener/logging"
	"github.com/tigerroll/capture/pkg/batch/listener/metrics"
	"github.com/tigerroll/capture/pkg/batch/listener/notification"
	"github.com/tigerroll/capture/pkg/batch/listener/tracing"
)

// Module aggregates all listener modules of the batch framework.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
