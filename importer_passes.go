package osm2graph

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/destel/rill"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// importRun is the state of a single Run. Nothing here outlives it
type importRun struct {
	importer *Importer
	report   *ImportReport
	alloc    *idAllocator
	index    NodeIndex
	ownIndex bool
	pillars  *PillarStore
	builder  *edgeBuilder
	viaNodes map[int64]struct{}
	resolver *restrictionResolver
}

func (run *importRun) close() {
	if run.pillars != nil {
		if err := run.pillars.Close(); err != nil {
			run.importer.logger.Warn("Can't release pillar store", zap.Error(err))
		}
	}
	if run.ownIndex && run.index != nil {
		if err := run.index.Close(); err != nil {
			run.importer.logger.Warn("Can't close node index", zap.Error(err))
		}
	}
}

// stream returns element stream for the pass. Malformed elements are reported only by the first pass reading their kind
func (run *importRun) stream(phase Phase, reportMalformed bool) *ElementStream {
	options := []func(*ElementStream){
		WithStreamBuffer(run.importer.buffer),
		WithDecoderProcs(run.importer.workers),
	}
	if reportMalformed {
		options = append(options, WithMalformedHandler(func(kind ElementKind, id int64, reason string) {
			run.report.addDiagnostic(Diagnostic{
				Phase:       phase,
				Kind:        DIAG_MALFORMED,
				ElementKind: kind,
				ElementID:   id,
				Message:     reason,
			})
		}))
	}
	return NewElementStream(run.importer.source, options...)
}

func (run *importRun) open(ctx context.Context, phase Phase, mask KindMask, reportMalformed bool) (*ElementReader, error) {
	reader, err := run.stream(phase, reportMalformed).Open(ctx, mask)
	if err != nil {
		return nil, importError(phase, 0, err)
	}
	run.report.Framing = reader.Framing()
	run.report.Encoding = reader.Encoding()
	return reader, nil
}

func (run *importRun) canceled(ctx context.Context, phase Phase) error {
	if ctx.Err() != nil {
		return importError(phase, 0, errors.Wrap(ErrImportCanceled, ctx.Err().Error()))
	}
	return nil
}

func (run *importRun) progress(phase Phase, n int64) {
	if n%run.importer.progressEvery == 0 {
		run.importer.logger.Sugar().Infof("%s: processed %d elements...", phase, n)
	}
}

// classify counts way references of every point and collects restriction members
func (run *importRun) classify(ctx context.Context) error {
	reader, err := run.open(ctx, PHASE_CLASSIFY, MASK_WAYS|MASK_RELATIONS, true)
	if err != nil {
		return err
	}
	defer reader.Close()
	classifier := run.importer.classifier
	var n int64
	for {
		if err := run.canceled(ctx, PHASE_CLASSIFY); err != nil {
			return err
		}
		element, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return importError(PHASE_CLASSIFY, 0, err)
		}
		n++
		run.progress(PHASE_CLASSIFY, n)
		switch e := element.(type) {
		case *Way:
			run.report.Ways.Seen++
			if !classifier.AcceptWay(e.Tags) {
				run.report.Ways.Skipped++
				continue
			}
			run.report.Ways.Accepted++
			last := len(e.NodeIDs) - 1
			for i, id := range e.NodeIDs {
				endpoint := run.importer.endpointTowers && (i == 0 || i == last)
				if _, err := run.index.Classify(id, endpoint); err != nil {
					return importError(PHASE_CLASSIFY, e.ID, err)
				}
			}
		case *Relation:
			ok, _ := isRestrictionRelation(e)
			if !ok {
				continue
			}
			from, via, to, reason := restrictionMembers(e)
			if reason != "" {
				continue
			}
			run.builder.restricted[from] = struct{}{}
			run.builder.restricted[to] = struct{}{}
			run.viaNodes[via] = struct{}{}
		}
	}
	if err := run.canceled(ctx, PHASE_CLASSIFY); err != nil {
		return err
	}
	// Restriction needs a junction at via point
	for via := range run.viaNodes {
		if err := run.index.MarkTower(via); err != nil {
			return importError(PHASE_CLASSIFY, via, err)
		}
	}
	if err := run.index.Optimize(); err != nil {
		return importError(PHASE_CLASSIFY, 0, err)
	}
	run.importer.logger.Info("Points classified", zap.Int("referenced", run.index.Len()), zap.Int64("ways", run.report.Ways.Accepted))
	return nil
}

// placeNodes assigns tower and pillar indices to referenced points and stores their coordinates
func (run *importRun) placeNodes(ctx context.Context) error {
	reader, err := run.open(ctx, PHASE_PLACE_NODES, MASK_POINTS, true)
	if err != nil {
		return err
	}
	defer reader.Close()
	sink := run.importer.sink
	allocate := func(class NodeClass) uint32 {
		if class == SLOT_TOWER {
			return uint32(run.alloc.tower())
		}
		return run.alloc.pillar()
	}
	var positive, negative bool
	var n int64
	for {
		if err := run.canceled(ctx, PHASE_PLACE_NODES); err != nil {
			return err
		}
		element, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return importError(PHASE_PLACE_NODES, 0, err)
		}
		point, ok := element.(*Point)
		if !ok {
			continue
		}
		n++
		run.progress(PHASE_PLACE_NODES, n)
		run.report.Points.Seen++
		if point.ID < 0 {
			negative = true
		} else {
			positive = true
		}
		if positive && negative {
			run.report.addDiagnostic(Diagnostic{
				Phase:       PHASE_PLACE_NODES,
				Kind:        DIAG_MIXED_ID_SIGNS,
				ElementKind: KIND_POINT,
				ElementID:   point.ID,
				Message:     "point id sign differs from previous points",
			})
			return importError(PHASE_PLACE_NODES, point.ID, ErrMixedIDSigns)
		}
		if _, ok, err := run.index.Lookup(point.ID); err != nil {
			return importError(PHASE_PLACE_NODES, point.ID, err)
		} else if !ok {
			// not referenced by accepted ways
			run.report.Points.Skipped++
			continue
		}
		if !sink.InBounds(point.Lat, point.Lon) {
			run.report.Points.Skipped++
			run.report.addDiagnostic(Diagnostic{
				Phase:       PHASE_PLACE_NODES,
				Kind:        DIAG_OUT_OF_BOUNDS,
				ElementKind: KIND_POINT,
				ElementID:   point.ID,
				Message:     fmt.Sprintf("point (%f, %f) is out of bounds", point.Lat, point.Lon),
			})
			continue
		}
		ref, assigned, err := run.index.Assign(point.ID, allocate)
		if err != nil {
			return importError(PHASE_PLACE_NODES, point.ID, err)
		}
		if !assigned {
			run.report.Points.Skipped++
			run.report.addDiagnostic(Diagnostic{
				Phase:       PHASE_PLACE_NODES,
				Kind:        DIAG_DUPLICATE_POINT,
				ElementKind: KIND_POINT,
				ElementID:   point.ID,
				Message:     fmt.Sprintf("point already placed as %s %d", ref.Class, ref.Index),
			})
			continue
		}
		geo := point.GeoPoint()
		if !run.importer.elevation {
			geo.Ele = math.NaN()
		}
		geo = quantize(geo)
		switch ref.Class {
		case SLOT_TOWER:
			if err := sink.AddNode(ref.Tower(), geo); err != nil {
				return importError(PHASE_PLACE_NODES, point.ID, errors.Wrap(err, "Can't add node"))
			}
		case SLOT_PILLAR:
			if err := run.pillars.Store(ref.Index, geo); err != nil {
				return importError(PHASE_PLACE_NODES, point.ID, err)
			}
		}
		run.report.Points.Accepted++
	}
	if err := run.canceled(ctx, PHASE_PLACE_NODES); err != nil {
		return err
	}
	run.report.NegativeIDs = negative
	if run.alloc.towers()+run.alloc.pillars() == 0 {
		return importError(PHASE_PLACE_NODES, 0, ErrNoNodes)
	}
	if err := run.index.Optimize(); err != nil {
		return importError(PHASE_PLACE_NODES, 0, err)
	}
	run.importer.logger.Info("Points placed", zap.Int("towers", run.alloc.towers()), zap.Int("pillars", run.alloc.pillars()))
	return nil
}

// classifiedWay is a way with tag interpretation done by worker goroutines
type classifiedWay struct {
	way      *Way
	accepted bool
	attr     AttributeWord
	name     string
}

// buildEdges cuts accepted ways into edges. Tags are interpreted concurrently, edges are built in stream order
func (run *importRun) buildEdges(ctx context.Context) error {
	reader, err := run.open(ctx, PHASE_BUILD_EDGES, MASK_WAYS, false)
	if err != nil {
		return err
	}
	defer reader.Close()
	classifier := run.importer.classifier
	ways := rill.OrderedMap(reader.Elements(), run.importer.workers, func(element Element) (classifiedWay, error) {
		way, ok := element.(*Way)
		if !ok {
			return classifiedWay{}, nil
		}
		if !classifier.AcceptWay(way.Tags) {
			return classifiedWay{way: way}, nil
		}
		return classifiedWay{
			way:      way,
			accepted: true,
			attr:     classifier.WayAttributes(way.Tags),
			name:     wayName(way.Tags),
		}, nil
	})
	defer rill.DrainNB(ways)
	var n int64
	for item := range ways {
		if err := run.canceled(ctx, PHASE_BUILD_EDGES); err != nil {
			return err
		}
		if item.Error != nil {
			return importError(PHASE_BUILD_EDGES, 0, item.Error)
		}
		n++
		run.progress(PHASE_BUILD_EDGES, n)
		if !item.Value.accepted {
			continue
		}
		way := item.Value.way
		if _, err := run.builder.BuildEdges(way, item.Value.attr, item.Value.name); err != nil {
			return importError(PHASE_BUILD_EDGES, way.ID, err)
		}
	}
	if err := run.canceled(ctx, PHASE_BUILD_EDGES); err != nil {
		return err
	}
	if err := run.pillars.Close(); err != nil {
		return importError(PHASE_BUILD_EDGES, 0, err)
	}
	run.importer.logger.Info("Edges built", zap.Int("edges", run.report.Edges), zap.Int("promoted", run.report.Promoted))
	return nil
}

// resolveRelations converts restriction relations into turn costs
func (run *importRun) resolveRelations(ctx context.Context) error {
	reader, err := run.open(ctx, PHASE_RESOLVE_RELATIONS, MASK_RELATIONS, false)
	if err != nil {
		return err
	}
	defer reader.Close()
	run.resolver = newRestrictionResolver(run.index, run.importer.sink, run.importer.classifier, run.builder.wayEdges, run.report)
	var n int64
	for {
		if err := run.canceled(ctx, PHASE_RESOLVE_RELATIONS); err != nil {
			return err
		}
		element, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return importError(PHASE_RESOLVE_RELATIONS, 0, err)
		}
		relation, ok := element.(*Relation)
		if !ok {
			continue
		}
		n++
		run.progress(PHASE_RESOLVE_RELATIONS, n)
		run.report.Relations.Seen++
		applied, err := run.resolver.Resolve(relation)
		if err != nil {
			return importError(PHASE_RESOLVE_RELATIONS, relation.ID, err)
		}
		if applied {
			run.report.Relations.Accepted++
		} else {
			run.report.Relations.Skipped++
		}
	}
	if err := run.canceled(ctx, PHASE_RESOLVE_RELATIONS); err != nil {
		return err
	}
	if err := run.resolver.flush(); err != nil {
		return importError(PHASE_RESOLVE_RELATIONS, 0, err)
	}
	run.importer.logger.Info("Relations resolved", zap.Int("restrictions", run.report.Restrictions), zap.Int("turn_costs", run.report.TurnCosts))
	return nil
}
