package osm2graph

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultMaxDiagnostics = 10000
	defaultProgressEvery  = 1000000
)

// Importer converts an OSM extract into a routable graph
type Importer struct {
	source         Source
	sink           GraphSink
	classifier     TagClassifier
	logger         *zap.Logger
	index          NodeIndex
	backend        IndexBackend
	tmpDir         string
	tolerance      float64
	minLength      float64
	workers        int
	buffer         int
	maxDiagnostics int
	elevation      bool
	endpointTowers bool
	progressEvery  int64
}

func (importer *Importer) String() string {
	return fmt.Sprintf(`
Importer parameters:
	source: '%v'
	node index: '%s'
	tmp dir: '%s'
	simplify tolerance (m): %f
	min edge length (m): %f
	workers: %d
	buffer: %d
	max diagnostics: %d
	elevation: %t
	endpoint towers: %t
	`,
		importer.source,
		importer.backend,
		importer.tmpDir,
		importer.tolerance,
		importer.minLength,
		importer.workers,
		importer.buffer,
		importer.maxDiagnostics,
		importer.elevation,
		importer.endpointTowers,
	)
}

// NewImporter returns importer writing into sink
func NewImporter(source Source, sink GraphSink, options ...func(*Importer)) *Importer {
	importer := &Importer{
		source:         source,
		sink:           sink,
		classifier:     NewHighwayClassifier(),
		logger:         zap.NewNop(),
		backend:        INDEX_PAGED,
		tolerance:      DefaultSimplifyTolerance,
		minLength:      DefaultMinEdgeLength,
		workers:        runtime.NumCPU(),
		buffer:         1024,
		maxDiagnostics: defaultMaxDiagnostics,
		endpointTowers: true,
		progressEvery:  defaultProgressEvery,
	}
	for _, option := range options {
		option(importer)
	}
	return importer
}

func WithLogger(logger *zap.Logger) func(*Importer) {
	return func(importer *Importer) {
		if logger != nil {
			importer.logger = logger
		}
	}
}

func WithClassifier(classifier TagClassifier) func(*Importer) {
	return func(importer *Importer) {
		importer.classifier = classifier
	}
}

// WithNodeIndex sets index instance. Importer does not close it
func WithNodeIndex(index NodeIndex) func(*Importer) {
	return func(importer *Importer) {
		importer.index = index
	}
}

func WithIndexBackend(backend IndexBackend) func(*Importer) {
	return func(importer *Importer) {
		importer.backend = backend
	}
}

// WithTempDir sets directory for pillar store and disk index
func WithTempDir(dir string) func(*Importer) {
	return func(importer *Importer) {
		importer.tmpDir = dir
	}
}

// WithSimplifyTolerance sets Douglas-Peucker tolerance in meters. Zero disables simplification
func WithSimplifyTolerance(tolerance float64) func(*Importer) {
	return func(importer *Importer) {
		importer.tolerance = tolerance
	}
}

// WithMinEdgeLength sets length in meters shorter edges are clamped to
func WithMinEdgeLength(length float64) func(*Importer) {
	return func(importer *Importer) {
		if length > 0 {
			importer.minLength = length
		}
	}
}

// WithWorkers sets number of goroutines decoding PBF blocks and classifying ways in edges pass
func WithWorkers(workers int) func(*Importer) {
	return func(importer *Importer) {
		if workers > 0 {
			importer.workers = workers
		}
	}
}

// WithBufferSize sets number of decoded elements buffered ahead of processing
func WithBufferSize(size int) func(*Importer) {
	return func(importer *Importer) {
		importer.buffer = size
	}
}

// WithMaxDiagnostics limits number of diagnostics kept in report. Negative means no limit
func WithMaxDiagnostics(n int) func(*Importer) {
	return func(importer *Importer) {
		importer.maxDiagnostics = n
	}
}

// WithElevation keeps `ele` tag values of points
func WithElevation(elevation bool) func(*Importer) {
	return func(importer *Importer) {
		importer.elevation = elevation
	}
}

// WithEndpointTowers sets whether first and last points of every way become towers.
// When disabled, ways are cut at their outermost junctions and dead-end stubs are dropped
func WithEndpointTowers(endpointTowers bool) func(*Importer) {
	return func(importer *Importer) {
		importer.endpointTowers = endpointTowers
	}
}

// WithProgressEvery sets number of elements between progress messages
func WithProgressEvery(n int64) func(*Importer) {
	return func(importer *Importer) {
		if n > 0 {
			importer.progressEvery = n
		}
	}
}

// Run executes all passes. Report is returned even when error is not nil.
// On error or cancellation the report is marked incomplete and the sink must be discarded.
func (importer *Importer) Run(ctx context.Context) (*ImportReport, error) {
	report := newImportReport(importer.maxDiagnostics)
	run, err := importer.newRun(report)
	if err != nil {
		report.Incomplete = true
		return report, err
	}
	defer run.close()

	passes := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PHASE_CLASSIFY, run.classify},
		{PHASE_PLACE_NODES, run.placeNodes},
		{PHASE_BUILD_EDGES, run.buildEdges},
		{PHASE_RESOLVE_RELATIONS, run.resolveRelations},
	}
	for _, pass := range passes {
		importer.logger.Info("Pass started", zap.String("phase", pass.phase.String()))
		st := time.Now()
		err := pass.fn(ctx)
		report.Durations[pass.phase] = time.Since(st)
		if err != nil {
			report.Incomplete = true
			importer.logger.Error("Pass failed", zap.String("phase", pass.phase.String()), zap.Error(err))
			return report, err
		}
		importer.logger.Info("Pass done", zap.String("phase", pass.phase.String()), zap.Duration("took", report.Durations[pass.phase]))
	}
	report.Towers = run.alloc.towers()
	report.Pillars = run.alloc.pillars()
	importer.logger.Info("Import done",
		zap.Int("towers", report.Towers),
		zap.Int("pillars", report.Pillars),
		zap.Int("edges", report.Edges),
		zap.Int("turn_costs", report.TurnCosts),
		zap.Int("diagnostics", len(report.Diagnostics)),
	)
	return report, nil
}

func (importer *Importer) newRun(report *ImportReport) (*importRun, error) {
	run := &importRun{
		importer: importer,
		report:   report,
		alloc:    &idAllocator{},
		index:    importer.index,
		viaNodes: make(map[int64]struct{}),
	}
	if run.index == nil {
		switch importer.backend {
		case INDEX_LEVELDB:
			index, err := NewLevelNodeIndex(importer.tmpDir)
			if err != nil {
				return nil, errors.Wrap(err, "Can't create node index")
			}
			run.index = index
		default:
			run.index = NewPagedNodeIndex()
		}
		run.ownIndex = true
	}
	pillars, err := NewPillarStore(importer.tmpDir)
	if err != nil {
		run.close()
		return nil, err
	}
	run.pillars = pillars
	run.builder = newEdgeBuilder(run.index, pillars, importer.sink, run.alloc, report)
	run.builder.tolerance = importer.tolerance
	run.builder.minLength = importer.minLength
	run.builder.endpointTowers = importer.endpointTowers
	return run, nil
}
