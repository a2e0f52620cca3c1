// Package casa drives CASA as a subprocess. Each engine call renders a short Python script that
// invokes one CASA task and writes a JSON reply, which the engine reads back.
package casa

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/capture/internal/engine"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// imageSuffixes are the products tclean writes next to an image base name.
var imageSuffixes = []string{".image", ".residual", ".model", ".psf", ".pb", ".sumwt", ".mask", ".weight"}

// Engine runs CASA tasks in a subprocess.
type Engine struct {
	executable string
	args       []string
	workDir    string
	scriptDir  string
	timeout    time.Duration
	// runner executes one script. Tests replace it.
	runner func(ctx context.Context, script string) ([]byte, error)
}

// New creates a CASA engine rooted at the configured work directory.
func New(cfg config.CasaConfig) (*Engine, error) {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "."
	}
	scriptDir := filepath.Join(workDir, ".capture-scripts")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create CASA script directory '%s': %w", scriptDir, err)
	}
	e := &Engine{
		executable: cfg.Executable,
		args:       cfg.Args,
		workDir:    workDir,
		scriptDir:  scriptDir,
		timeout:    time.Duration(cfg.TimeoutMinutes) * time.Minute,
	}
	e.runner = e.execCASA
	return e, nil
}

func (e *Engine) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.workDir, name)
}

func (e *Engine) execCASA(ctx context.Context, script string) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	args := append(append([]string(nil), e.args...), "-c", script)
	cmd := exec.CommandContext(ctx, e.executable, args...)
	cmd.Dir = e.workDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// invoke renders template name, runs it and returns the decoded reply result.
func (e *Engine) invoke(ctx context.Context, name string, data interface{}, setReply func(string), result interface{}) error {
	id := uuid.NewString()
	replyPath := filepath.Join(e.scriptDir, id+".json")
	scriptPath := filepath.Join(e.scriptDir, id+".py")
	absReply, err := filepath.Abs(replyPath)
	if err != nil {
		return err
	}
	setReply(absReply)

	text, err := render(name, data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(scriptPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write CASA script: %w", err)
	}
	defer os.Remove(scriptPath)
	defer os.Remove(replyPath)

	absScript, err := filepath.Abs(scriptPath)
	if err != nil {
		return err
	}
	start := time.Now()
	output, runErr := e.runner(ctx, absScript)
	logger.Debugf("CASA %s finished in %s.", name, time.Since(start).Round(time.Millisecond))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	raw, readErr := os.ReadFile(replyPath)
	if readErr != nil {
		if runErr != nil {
			return fmt.Errorf("casa exited with %v: %s", runErr, tail(output, 20))
		}
		return fmt.Errorf("casa wrote no reply: %s", tail(output, 20))
	}
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("failed to decode CASA reply: %w", err)
	}
	if !r.OK {
		return fmt.Errorf("casa task failed: %s", strings.TrimSpace(r.Error))
	}
	if result != nil && len(r.Result) > 0 && string(r.Result) != "null" {
		if err := json.Unmarshal(r.Result, result); err != nil {
			return fmt.Errorf("failed to decode CASA result: %w", err)
		}
	}
	return nil
}

func (e *Engine) task(ctx context.Context, task string, args []arg, mode string, result interface{}) error {
	s := &taskScript{Task: task, Args: args, Result: mode}
	return e.invoke(ctx, "task", s, func(p string) { s.Reply = p }, result)
}

func tail(out []byte, lines int) string {
	all := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}

func (e *Engine) Import(ctx context.Context, raw, dataset string) error {
	return e.task(ctx, "importgmrt", []arg{{"fitsfile", e.path(raw)}, {"vis", e.path(dataset)}}, "", nil)
}

func (e *Engine) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(e.path(name))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes name and, for an image base name, every product tclean wrote for it.
func (e *Engine) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(e.path(name)); err != nil {
		return err
	}
	for _, s := range imageSuffixes {
		matches, err := filepath.Glob(e.path(name) + s + "*")
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(e.path(from), e.path(to))
}

func (e *Engine) Metadata(ctx context.Context, dataset string) (*engine.Metadata, error) {
	s := &metadataScript{Vis: e.path(dataset)}
	var r metadataReply
	if err := e.invoke(ctx, "metadata", s, func(p string) { s.Reply = p }, &r); err != nil {
		return nil, err
	}
	spws := r.SPWs
	if spws == 0 {
		spws = 1
	}
	return &engine.Metadata{
		Dataset:         dataset,
		Fields:          r.Fields,
		Scans:           r.Scans,
		Antennas:        r.Antennas,
		ChannelFreqs:    r.Freqs,
		Correlations:    r.Correlations,
		SpectralWindows: spws,
	}, nil
}

func (e *Engine) Flag(ctx context.Context, dataset string, req engine.FlagRequest) (*engine.FlagCounts, error) {
	args := flagArgs(e.path(dataset), req)
	if req.Mode != engine.FlagSummary {
		return nil, e.task(ctx, "flagdata", args, "", nil)
	}
	var fields map[string]fieldFlags
	if err := e.task(ctx, "flagdata", args, "summary", &fields); err != nil {
		return nil, err
	}
	summary := &engine.FlagCounts{Fields: make(map[string]engine.FieldFlags, len(fields))}
	for name, f := range fields {
		summary.Fields[name] = engine.FieldFlags{Flagged: f.Flagged, Total: f.Total}
	}
	return summary, nil
}

func (e *Engine) ClearCalibration(ctx context.Context, dataset string) error {
	return e.task(ctx, "clearcal", []arg{{"vis", e.path(dataset)}}, "", nil)
}

func (e *Engine) SetFluxModel(ctx context.Context, dataset, field, spw string) error {
	return e.task(ctx, "setjy", []arg{{"vis", e.path(dataset)}, {"spw", spw}, {"field", field}}, "", nil)
}

func (e *Engine) SolveDelay(ctx context.Context, dataset string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	err := e.task(ctx, "gaincal", gaincalArgs(e, dataset, req), "", nil)
	return engine.CalibrationTable{Name: req.Table}, err
}

func (e *Engine) SolveGain(ctx context.Context, dataset string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	err := e.task(ctx, "gaincal", gaincalArgs(e, dataset, req), "", nil)
	return engine.CalibrationTable{Name: req.Table}, err
}

func (e *Engine) SolveBandpass(ctx context.Context, dataset string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	args := []arg{
		{"vis", e.path(dataset)},
		{"caltable", e.path(req.Table)},
		{"spw", req.Spw},
		{"field", strings.Join(req.Fields, ",")},
		{"solint", req.Solint},
		{"refant", req.RefAnt},
		{"solnorm", req.SolNorm},
		{"minsnr", req.MinSNR},
		{"fillgaps", req.FillGaps},
		{"parang", true},
		{"gaintable", e.paths(req.GainTables)},
		{"interp", repeat("nearest,nearestflag", len(req.GainTables))},
	}
	err := e.task(ctx, "bandpass", args, "", nil)
	return engine.CalibrationTable{Name: req.Table}, err
}

func (e *Engine) SolveFluxScale(ctx context.Context, dataset string, req engine.FluxScaleRequest) (engine.CalibrationTable, error) {
	args := []arg{
		{"vis", e.path(dataset)},
		{"caltable", e.path(req.Input)},
		{"fluxtable", e.path(req.Table)},
		{"reference", req.Reference},
		{"transfer", req.Transfer},
		{"incremental", false},
	}
	err := e.task(ctx, "fluxscale", args, "", nil)
	return engine.CalibrationTable{Name: req.Table}, err
}

func (e *Engine) Apply(ctx context.Context, dataset string, req engine.ApplyRequest) error {
	args := []arg{
		{"vis", e.path(dataset)},
		{"field", strings.Join(req.Fields, ",")},
		{"spw", req.Spw},
		{"gaintable", e.paths(req.GainTables)},
		{"gainfield", req.GainField},
		{"interp", req.Interp},
		{"calwt", req.CalWT},
		{"parang", req.Parang},
	}
	if req.ApplyMode != "" {
		args = append(args, arg{"applymode", req.ApplyMode})
	}
	return e.task(ctx, "applycal", args, "", nil)
}

func (e *Engine) Image(ctx context.Context, dataset string, req engine.ImageRequest) (engine.Image, error) {
	deconvolver := "multiscale"
	product := req.Name + ".image"
	if req.NTerms > 1 {
		deconvolver = "mtmfs"
		product = req.Name + ".image.tt0"
	}
	field := req.Field
	if field == "" {
		field = "0"
	}
	args := []arg{
		{"vis", e.path(dataset)},
		{"imagename", e.path(req.Name)},
		{"selectdata", true},
		{"field", field},
		{"spw", req.Spw},
		{"imsize", req.ImSize},
		{"cell", req.Cell},
		{"robust", req.Robust},
		{"weighting", "briggs"},
		{"specmode", "mfs"},
		{"nterms", req.NTerms},
		{"niter", req.Niter},
		{"usemask", "auto-multithresh"},
		{"minbeamfrac", 0.1},
		{"sidelobethreshold", 2.0},
		{"smallscalebias", 0.6},
		{"threshold", req.Threshold},
		{"aterm", true},
		{"pblimit", -0.001},
		{"deconvolver", deconvolver},
		{"gridder", "wproject"},
		{"wprojplanes", req.WProjPlanes},
		{"scales", []int{0, 5, 15}},
		{"wbawp", false},
		{"restoration", true},
		{"savemodel", "modelcolumn"},
		{"cyclefactor", 0.5},
		{"parallel", false},
		{"interactive", false},
	}
	if err := e.task(ctx, "tclean", args, "", nil); err != nil {
		return engine.Image{}, err
	}
	return engine.Image{Name: req.Name, Product: product, Niter: req.Niter}, nil
}

func (e *Engine) ExportFITS(ctx context.Context, imageProduct, fitsPath string) error {
	args := []arg{{"imagename", e.path(imageProduct)}, {"fitsimage", e.path(fitsPath)}, {"overwrite", true}}
	return e.task(ctx, "exportfits", args, "", nil)
}

func (e *Engine) Transform(ctx context.Context, dataset string, req engine.TransformRequest) (string, error) {
	column := strings.ToLower(string(req.Column))
	if column == "" {
		column = "data"
	}
	args := []arg{
		{"vis", e.path(dataset)},
		{"outputvis", e.path(req.Output)},
		{"field", strings.Join(req.Fields, ",")},
		{"spw", req.Spw},
		{"datacolumn", column},
	}
	if req.ChanBin > 1 {
		args = append(args, arg{"chanaverage", true}, arg{"chanbin", req.ChanBin})
	}
	if err := e.task(ctx, "mstransform", args, "", nil); err != nil {
		return "", err
	}
	return req.Output, nil
}

func (e *Engine) Concat(ctx context.Context, inputs []string, output string) error {
	return e.task(ctx, "concat", []arg{{"vis", e.paths(inputs)}, {"concatvis", e.path(output)}}, "", nil)
}

func (e *Engine) Statistics(ctx context.Context, dataset string, req engine.StatisticsRequest) (float64, error) {
	column := strings.ToLower(string(req.Column))
	if column == "" {
		column = "data"
	}
	scan := ""
	if req.Scan > 0 {
		scan = fmt.Sprint(req.Scan)
	}
	args := []arg{
		{"vis", e.path(dataset)},
		{"axis", "amp"},
		{"datacolumn", column},
		{"useflags", false},
		{"spw", req.Spw},
		{"field", req.Field},
		{"selectdata", true},
		{"antenna", req.Antenna},
		{"correlation", req.Correlation},
		{"scan", scan},
		{"timeaverage", false},
		{"reportingaxes", "ddid"},
	}
	var mean float64
	if err := e.task(ctx, "visstat", args, "mean", &mean); err != nil {
		return 0, err
	}
	return mean, nil
}

func (e *Engine) paths(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = e.path(n)
	}
	return out
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

var _ engine.Engine = (*Engine)(nil)
