package engine

import (
	"context"
	"errors"
	"time"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Tracked decorates an Engine with call metrics, spans and the artifact ledger.
// Failures of the underlying engine are returned as engine call errors.
type Tracked struct {
	next     Engine
	ledger   repository.Artifact
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewTracked wraps next. A nil ledger disables artifact bookkeeping.
func NewTracked(next Engine, ledger repository.Artifact, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Tracked {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &Tracked{next: next, ledger: ledger, recorder: recorder, tracer: tracer}
}

// call runs fn inside an engine span and records its duration and outcome.
func (t *Tracked) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	spanCtx, end := t.tracer.StartEngineSpan(ctx, op)
	start := time.Now()
	err := fn(spanCtx)
	t.recorder.RecordEngineCall(ctx, op, time.Since(start), err)
	end(err)
	if err == nil {
		return nil
	}
	// Errors already classified by the engine (missing inputs, unsupported data) keep their kind.
	if _, ok := exception.AsBatchError(err); ok {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	return exception.NewEngineCallError("engine", op, err)
}

func (t *Tracked) record(ctx context.Context, name string, kind model.ArtifactKind) {
	if t.ledger == nil || name == "" {
		return
	}
	run, ok := port.RunFromContext(ctx)
	if !ok {
		return
	}
	stageName := ""
	if stage, ok := port.StageFromContext(ctx); ok {
		stageName = stage.StageName
	}
	a := model.NewArtifact(run.ID, name, kind, stageName, port.GenerationFromContext(ctx))
	if err := t.ledger.SaveArtifact(context.WithoutCancel(ctx), a); err != nil {
		logger.Warnf("Artifact ledger: failed to record %s '%s': %v", kind, name, err)
	}
}

func (t *Tracked) forget(ctx context.Context, name string) {
	if t.ledger == nil {
		return
	}
	run, ok := port.RunFromContext(ctx)
	if !ok {
		return
	}
	err := t.ledger.MarkArtifactDeleted(context.WithoutCancel(ctx), run.ID, name)
	if err != nil && !errors.Is(err, repository.ErrArtifactNotFound) {
		logger.Warnf("Artifact ledger: failed to mark '%s' deleted: %v", name, err)
	}
}

func (t *Tracked) Import(ctx context.Context, raw, dataset string) error {
	err := t.call(ctx, "Import", func(ctx context.Context) error { return t.next.Import(ctx, raw, dataset) })
	if err == nil {
		t.record(ctx, dataset, model.ArtifactDataset)
	}
	return err
}

func (t *Tracked) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := t.call(ctx, "Exists", func(ctx context.Context) (err error) {
		ok, err = t.next.Exists(ctx, name)
		return err
	})
	return ok, err
}

func (t *Tracked) Delete(ctx context.Context, name string) error {
	err := t.call(ctx, "Delete", func(ctx context.Context) error { return t.next.Delete(ctx, name) })
	if err == nil {
		t.forget(ctx, name)
	}
	return err
}

func (t *Tracked) Rename(ctx context.Context, from, to string) error {
	err := t.call(ctx, "Rename", func(ctx context.Context) error { return t.next.Rename(ctx, from, to) })
	if err == nil {
		t.forget(ctx, from)
		t.record(ctx, to, model.ArtifactDataset)
	}
	return err
}

func (t *Tracked) Metadata(ctx context.Context, dataset string) (*Metadata, error) {
	var md *Metadata
	err := t.call(ctx, "Metadata", func(ctx context.Context) (err error) {
		md, err = t.next.Metadata(ctx, dataset)
		return err
	})
	return md, err
}

func (t *Tracked) Flag(ctx context.Context, dataset string, req FlagRequest) (*FlagCounts, error) {
	var summary *FlagCounts
	err := t.call(ctx, "Flag", func(ctx context.Context) (err error) {
		summary, err = t.next.Flag(ctx, dataset, req)
		return err
	})
	return summary, err
}

func (t *Tracked) ClearCalibration(ctx context.Context, dataset string) error {
	return t.call(ctx, "ClearCalibration", func(ctx context.Context) error { return t.next.ClearCalibration(ctx, dataset) })
}

func (t *Tracked) SetFluxModel(ctx context.Context, dataset, field, spw string) error {
	return t.call(ctx, "SetFluxModel", func(ctx context.Context) error { return t.next.SetFluxModel(ctx, dataset, field, spw) })
}

func (t *Tracked) solve(ctx context.Context, op string, appended bool, fn func(ctx context.Context) (CalibrationTable, error)) (CalibrationTable, error) {
	var table CalibrationTable
	err := t.call(ctx, op, func(ctx context.Context) (err error) {
		table, err = fn(ctx)
		return err
	})
	// Appended solves land in a table that is already on the ledger.
	if err == nil && !appended {
		t.record(ctx, table.Name, model.ArtifactCalibrationTable)
	}
	return table, err
}

func (t *Tracked) SolveDelay(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error) {
	return t.solve(ctx, "SolveDelay", false, func(ctx context.Context) (CalibrationTable, error) {
		return t.next.SolveDelay(ctx, dataset, req)
	})
}

func (t *Tracked) SolveGain(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error) {
	return t.solve(ctx, "SolveGain", req.Append, func(ctx context.Context) (CalibrationTable, error) {
		return t.next.SolveGain(ctx, dataset, req)
	})
}

func (t *Tracked) SolveBandpass(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error) {
	return t.solve(ctx, "SolveBandpass", false, func(ctx context.Context) (CalibrationTable, error) {
		return t.next.SolveBandpass(ctx, dataset, req)
	})
}

func (t *Tracked) SolveFluxScale(ctx context.Context, dataset string, req FluxScaleRequest) (CalibrationTable, error) {
	return t.solve(ctx, "SolveFluxScale", false, func(ctx context.Context) (CalibrationTable, error) {
		return t.next.SolveFluxScale(ctx, dataset, req)
	})
}

func (t *Tracked) Apply(ctx context.Context, dataset string, req ApplyRequest) error {
	return t.call(ctx, "Apply", func(ctx context.Context) error { return t.next.Apply(ctx, dataset, req) })
}

func (t *Tracked) Image(ctx context.Context, dataset string, req ImageRequest) (Image, error) {
	var img Image
	err := t.call(ctx, "Image", func(ctx context.Context) (err error) {
		img, err = t.next.Image(ctx, dataset, req)
		return err
	})
	if err == nil {
		t.record(ctx, img.Name, model.ArtifactImage)
	}
	return img, err
}

func (t *Tracked) ExportFITS(ctx context.Context, imageProduct, fitsPath string) error {
	err := t.call(ctx, "ExportFITS", func(ctx context.Context) error { return t.next.ExportFITS(ctx, imageProduct, fitsPath) })
	if err == nil {
		t.record(ctx, fitsPath, model.ArtifactFITS)
	}
	return err
}

func (t *Tracked) Transform(ctx context.Context, dataset string, req TransformRequest) (string, error) {
	var out string
	err := t.call(ctx, "Transform", func(ctx context.Context) (err error) {
		out, err = t.next.Transform(ctx, dataset, req)
		return err
	})
	if err == nil {
		t.record(ctx, out, model.ArtifactDataset)
	}
	return out, err
}

func (t *Tracked) Concat(ctx context.Context, inputs []string, output string) error {
	err := t.call(ctx, "Concat", func(ctx context.Context) error { return t.next.Concat(ctx, inputs, output) })
	if err == nil {
		t.record(ctx, output, model.ArtifactDataset)
	}
	return err
}

func (t *Tracked) Statistics(ctx context.Context, dataset string, req StatisticsRequest) (float64, error) {
	var mean float64
	err := t.call(ctx, "Statistics", func(ctx context.Context) (err error) {
		mean, err = t.next.Statistics(ctx, dataset, req)
		return err
	})
	return mean, err
}

var _ Engine = (*Tracked)(nil)
