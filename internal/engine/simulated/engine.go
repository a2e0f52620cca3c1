// Package simulated is an in-process Engine that keeps datasets, tables and images as records.
// It drives stage tests and dry runs of the pipeline without a CASA installation.
package simulated

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/tigerroll/capture/internal/engine"
)

// Call is one entry of the call log.
type Call struct {
	Op      string
	Dataset string
	Detail  string
}

type dataset struct {
	md        *engine.Metadata
	fixture   DatasetFixture
	flagged   map[string]float64
	hasModel  bool
	corrected bool
}

// Engine is the simulated engine.
type Engine struct {
	mu        sync.Mutex
	raws      map[string]DatasetFixture
	datasets  map[string]*dataset
	tables    map[string]bool
	products  map[string]bool
	fits      map[string]bool
	calls     []Call
	failures  map[string]error
	flagShare float64
}

// New creates an engine holding the datasets of fixture.
func New(fixture *Fixture) *Engine {
	e := &Engine{
		raws:      map[string]DatasetFixture{},
		datasets:  map[string]*dataset{},
		tables:    map[string]bool{},
		products:  map[string]bool{},
		fits:      map[string]bool{},
		failures:  map[string]error{},
		flagShare: 0.02,
	}
	if fixture == nil {
		return e
	}
	for _, d := range fixture.Datasets {
		if d.Raw != "" {
			e.raws[d.Raw] = d
			continue
		}
		e.datasets[d.Name] = newDataset(d.Name, d)
	}
	return e
}

func newDataset(name string, d DatasetFixture) *dataset {
	return &dataset{md: d.metadata(name), fixture: d, flagged: map[string]float64{}}
}

// FailOn makes every later call of op return err.
func (e *Engine) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = err
}

// Calls returns a copy of the call log.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsOf returns the logged calls of op.
func (e *Engine) CallsOf(op string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Names lists every live artifact name, sorted.
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for n := range e.datasets {
		names = append(names, n)
	}
	for _, m := range []map[string]bool{e.tables, e.products, e.fits} {
		for n := range m {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// begin logs the call and returns the injected failure of op, if any. Callers hold e.mu.
func (e *Engine) begin(ctx context.Context, op, ds, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.calls = append(e.calls, Call{Op: op, Dataset: ds, Detail: detail})
	return e.failures[op]
}

func (e *Engine) dataset(name string) (*dataset, error) {
	d, ok := e.datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %s does not exist", name)
	}
	return d, nil
}

func (e *Engine) Import(ctx context.Context, raw, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Import", name, raw); err != nil {
		return err
	}
	d, ok := e.raws[raw]
	if !ok {
		return fmt.Errorf("raw file %s does not exist", raw)
	}
	if _, exists := e.datasets[name]; exists {
		return fmt.Errorf("dataset %s already exists", name)
	}
	e.datasets[name] = newDataset(name, d)
	return nil
}

func (e *Engine) Exists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := e.datasets[name]; ok {
		return true, nil
	}
	if _, ok := e.raws[name]; ok {
		return true, nil
	}
	return e.tables[name] || e.products[name] || e.fits[name], nil
}

func (e *Engine) Delete(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Delete", "", name); err != nil {
		return err
	}
	delete(e.datasets, name)
	delete(e.tables, name)
	delete(e.fits, name)
	// Deleting an image base name removes all of its products.
	for p := range e.products {
		if p == name || strings.HasPrefix(p, name+".") {
			delete(e.products, p)
		}
	}
	return nil
}

func (e *Engine) Rename(ctx context.Context, from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Rename", from, to); err != nil {
		return err
	}
	d, err := e.dataset(from)
	if err != nil {
		return err
	}
	if _, exists := e.datasets[to]; exists {
		return fmt.Errorf("dataset %s already exists", to)
	}
	delete(e.datasets, from)
	d.md.Dataset = to
	e.datasets[to] = d
	return nil
}

func (e *Engine) Metadata(ctx context.Context, name string) (*engine.Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Metadata", name, ""); err != nil {
		return nil, err
	}
	d, err := e.dataset(name)
	if err != nil {
		return nil, err
	}
	md := *d.md
	md.Fields = append([]string(nil), d.md.Fields...)
	md.ChannelFreqs = append([]float64(nil), d.md.ChannelFreqs...)
	return &md, nil
}

func (e *Engine) Flag(ctx context.Context, name string, req engine.FlagRequest) (*engine.FlagCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Flag", name, req.String()); err != nil {
		return nil, err
	}
	d, err := e.dataset(name)
	if err != nil {
		return nil, err
	}
	if req.Column == engine.ColumnResidual && !d.hasModel {
		return nil, fmt.Errorf("dataset %s has no model column", name)
	}
	if req.Column == engine.ColumnCorrected && !d.corrected {
		return nil, fmt.Errorf("dataset %s has no corrected column", name)
	}
	fields := req.Fields
	if len(fields) == 0 {
		fields = d.md.Fields
	}
	if req.Mode == engine.FlagSummary {
		total := float64(d.md.NumChannels() * len(d.md.Antennas) * len(d.md.Correlations) * 100)
		summary := &engine.FlagCounts{Fields: map[string]engine.FieldFlags{}}
		for _, f := range fields {
			summary.Fields[f] = engine.FieldFlags{Flagged: d.flagged[f] * total, Total: total}
		}
		return summary, nil
	}
	share := e.flagShare
	if req.Mode == engine.FlagList {
		share *= float64(len(req.Commands))
	}
	for _, f := range fields {
		d.flagged[f] = min(1, d.flagged[f]+share)
	}
	return nil, nil
}

func (e *Engine) ClearCalibration(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "ClearCalibration", name, ""); err != nil {
		return err
	}
	d, err := e.dataset(name)
	if err != nil {
		return err
	}
	d.hasModel = false
	d.corrected = false
	return nil
}

func (e *Engine) SetFluxModel(ctx context.Context, name, field, spw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "SetFluxModel", name, field+" spw="+spw); err != nil {
		return err
	}
	d, err := e.dataset(name)
	if err != nil {
		return err
	}
	if _, ok := d.md.Scans[field]; !ok && !contains(d.md.Fields, field) {
		return fmt.Errorf("field %s not in %s", field, name)
	}
	d.hasModel = true
	return nil
}

func (e *Engine) solve(ctx context.Context, op, name string, table string, appended bool, inputs []string) (engine.CalibrationTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, op, name, table); err != nil {
		return engine.CalibrationTable{}, err
	}
	if _, err := e.dataset(name); err != nil {
		return engine.CalibrationTable{}, err
	}
	for _, in := range inputs {
		if in != "" && !e.tables[in] {
			return engine.CalibrationTable{}, fmt.Errorf("calibration table %s does not exist", in)
		}
	}
	if e.tables[table] && !appended {
		return engine.CalibrationTable{}, fmt.Errorf("calibration table %s already exists", table)
	}
	e.tables[table] = true
	return engine.CalibrationTable{Name: table}, nil
}

func (e *Engine) SolveDelay(ctx context.Context, name string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	return e.solve(ctx, "SolveDelay", name, req.Table, req.Append, req.GainTables)
}

func (e *Engine) SolveGain(ctx context.Context, name string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	return e.solve(ctx, "SolveGain", name, req.Table, req.Append, req.GainTables)
}

func (e *Engine) SolveBandpass(ctx context.Context, name string, req engine.SolveRequest) (engine.CalibrationTable, error) {
	return e.solve(ctx, "SolveBandpass", name, req.Table, req.Append, req.GainTables)
}

func (e *Engine) SolveFluxScale(ctx context.Context, name string, req engine.FluxScaleRequest) (engine.CalibrationTable, error) {
	return e.solve(ctx, "SolveFluxScale", name, req.Table, false, []string{req.Input})
}

func (e *Engine) Apply(ctx context.Context, name string, req engine.ApplyRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Apply", name, strings.Join(req.GainTables, ",")); err != nil {
		return err
	}
	d, err := e.dataset(name)
	if err != nil {
		return err
	}
	for _, t := range req.GainTables {
		if !e.tables[t] {
			return fmt.Errorf("calibration table %s does not exist", t)
		}
	}
	d.corrected = true
	return nil
}

func (e *Engine) Image(ctx context.Context, name string, req engine.ImageRequest) (engine.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Image", name, fmt.Sprintf("%s niter=%d threshold=%s spw=%s", req.Name, req.Niter, req.Threshold, spwLabel(req.Spw))); err != nil {
		return engine.Image{}, err
	}
	d, err := e.dataset(name)
	if err != nil {
		return engine.Image{}, err
	}
	suffixes := []string{".image", ".residual", ".model", ".psf"}
	product := req.Name + ".image"
	if req.NTerms > 1 {
		suffixes = []string{".image.tt0", ".residual.tt0", ".model.tt0", ".psf.tt0"}
		product = req.Name + ".image.tt0"
	}
	for _, s := range suffixes {
		e.products[req.Name+s] = true
	}
	d.hasModel = true
	return engine.Image{Name: req.Name, Product: product, Niter: req.Niter}, nil
}

func (e *Engine) ExportFITS(ctx context.Context, product, fitsPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "ExportFITS", "", product+" -> "+fitsPath); err != nil {
		return err
	}
	if !e.products[product] {
		return fmt.Errorf("image product %s does not exist", product)
	}
	e.fits[fitsPath] = true
	return nil
}

func (e *Engine) Transform(ctx context.Context, name string, req engine.TransformRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Transform", name, fmt.Sprintf("%s spw=%s column=%s chanbin=%d", req.Output, req.Spw, req.Column, req.ChanBin)); err != nil {
		return "", err
	}
	d, err := e.dataset(name)
	if err != nil {
		return "", err
	}
	if _, exists := e.datasets[req.Output]; exists {
		return "", fmt.Errorf("dataset %s already exists", req.Output)
	}
	if req.Column == engine.ColumnCorrected && !d.corrected {
		return "", fmt.Errorf("dataset %s has no corrected column", name)
	}
	fx := d.fixture
	if len(req.Fields) > 0 {
		fx.Fields = nil
		fx.Scans = map[string][]int{}
		for _, f := range req.Fields {
			if !contains(d.md.Fields, f) {
				return "", fmt.Errorf("field %s not in %s", f, name)
			}
			fx.Fields = append(fx.Fields, f)
			fx.Scans[f] = d.md.Scans[f]
		}
	}
	if req.Spw != "" {
		n, err := selectedChannels(req.Spw, d.md.NumChannels())
		if err != nil {
			return "", err
		}
		fx.Channels = n
	}
	if req.ChanBin > 1 {
		fx.Channels = (fx.Channels + req.ChanBin - 1) / req.ChanBin
		fx.ChanWidthHz *= float64(req.ChanBin)
	}
	out := newDataset(req.Output, fx)
	out.corrected = false
	for f, v := range d.flagged {
		out.flagged[f] = v
	}
	e.datasets[req.Output] = out
	return req.Output, nil
}

func (e *Engine) Concat(ctx context.Context, inputs []string, output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(ctx, "Concat", output, strings.Join(inputs, ",")); err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("concat into %s needs at least one input", output)
	}
	if _, exists := e.datasets[output]; exists {
		return fmt.Errorf("dataset %s already exists", output)
	}
	first, err := e.dataset(inputs[0])
	if err != nil {
		return err
	}
	fx := first.fixture
	fx.Channels = 0
	for _, in := range inputs {
		d, err := e.dataset(in)
		if err != nil {
			return err
		}
		fx.Channels += d.md.NumChannels()
	}
	fx.SpectralWindows = len(inputs)
	e.datasets[output] = newDataset(output, fx)
	return nil
}

// Statistics returns the mean of a deterministic sample spread around the fixture amplitude.
func (e *Engine) Statistics(ctx context.Context, name string, req engine.StatisticsRequest) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	detail := fmt.Sprintf("field=%s scan=%d antenna=%s corr=%s spw=%s", req.Field, req.Scan, req.Antenna, req.Correlation, req.Spw)
	if err := e.begin(ctx, "Statistics", name, detail); err != nil {
		return 0, err
	}
	d, err := e.dataset(name)
	if err != nil {
		return 0, err
	}
	if req.Correlation != "" && !d.md.HasCorrelation(req.Correlation) {
		return 0, fmt.Errorf("correlation %s not in %s", req.Correlation, name)
	}
	amp := d.fixture.amplitude(req.Scan, req.Antenna, req.Correlation)
	samples := []float64{amp * 0.9, amp * 0.95, amp, amp * 1.05, amp * 1.1}
	return stat.Mean(samples, nil), nil
}

func (d DatasetFixture) amplitude(scan int, antenna, corr string) float64 {
	for _, o := range d.Overrides {
		if o.Antenna != antenna {
			continue
		}
		if o.Scan != 0 && o.Scan != scan {
			continue
		}
		if o.Correlation != "" && !strings.EqualFold(o.Correlation, corr) {
			continue
		}
		return o.Value
	}
	return d.Amplitude
}

// selectedChannels counts the channels of a selector like "0:51~950" or "0:1~10;20~30".
func selectedChannels(spw string, nchan int) (int, error) {
	_, ranges, ok := strings.Cut(spw, ":")
	if !ok {
		return nchan, nil
	}
	total := 0
	for _, r := range strings.Split(ranges, ";") {
		lo, hi, ok := strings.Cut(strings.TrimSpace(r), "~")
		if !ok {
			hi = lo
		}
		a, err := strconv.Atoi(lo)
		if err != nil {
			return 0, fmt.Errorf("bad channel selection %q: %w", spw, err)
		}
		b, err := strconv.Atoi(hi)
		if err != nil {
			return 0, fmt.Errorf("bad channel selection %q: %w", spw, err)
		}
		if a < 0 || b < a || b >= nchan {
			return 0, fmt.Errorf("channel selection %q outside 0~%d", spw, nchan-1)
		}
		total += b - a + 1
	}
	return total, nil
}

// spwLabel names a spectral window selection in call details.
func spwLabel(spw string) string {
	if spw == "" {
		return "*"
	}
	return spw
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ engine.Engine = (*Engine)(nil)
