package osm2graph

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// DefaultMinEdgeLength is the length (meters) edges are clamped to
	DefaultMinEdgeLength = 0.0001
	// DefaultSimplifyTolerance is Douglas-Peucker tolerance (meters) for edge geometry
	DefaultSimplifyTolerance = 1.0
)

type resolvedNode struct {
	id  int64
	ref NodeRef
}

// edgeBuilder cuts accepted ways into edges between tower nodes
type edgeBuilder struct {
	index     NodeIndex
	pillars   *PillarStore
	sink      GraphSink
	alloc     *idAllocator
	report    *ImportReport
	tolerance float64
	minLength float64
	// endpointTowers forces first and last resolvable points to towers. Otherwise dead-end stubs are cut off
	endpointTowers bool
	// restricted holds ways referenced by restriction relations. Only their edges are remembered
	restricted map[int64]struct{}
	wayEdges   map[int64][]EdgeID
}

func newEdgeBuilder(index NodeIndex, pillars *PillarStore, sink GraphSink, alloc *idAllocator, report *ImportReport) *edgeBuilder {
	return &edgeBuilder{
		index:      index,
		pillars:    pillars,
		sink:       sink,
		alloc:      alloc,
		report:     report,
		tolerance:  DefaultSimplifyTolerance,
		minLength:  DefaultMinEdgeLength,
		restricted: make(map[int64]struct{}),
		wayEdges:   make(map[int64][]EdgeID),

		endpointTowers: true,
	}
}

func (builder *edgeBuilder) diagnose(kind DiagnosticKind, wayID int64, message string) {
	builder.report.addDiagnostic(Diagnostic{
		Phase:       PHASE_BUILD_EDGES,
		Kind:        kind,
		ElementKind: KIND_WAY,
		ElementID:   wayID,
		Message:     message,
	})
}

// BuildEdges emits edges for accepted way and returns their ids in way order
func (builder *edgeBuilder) BuildEdges(way *Way, attr AttributeWord, name string) ([]EdgeID, error) {
	nodes := make([]resolvedNode, 0, len(way.NodeIDs))
	for _, id := range way.NodeIDs {
		ref, ok, err := builder.index.Lookup(id)
		if err != nil {
			return nil, err
		}
		if !ok || !ref.Class.Assigned() {
			builder.report.DanglingRefs++
			builder.diagnose(DIAG_DANGLING_REF, way.ID, fmt.Sprintf("point %d is missing", id))
			continue
		}
		nodes = append(nodes, resolvedNode{id: id, ref: ref})
	}
	if len(nodes) < 2 {
		builder.diagnose(DIAG_SHORT_WAY, way.ID, fmt.Sprintf("%d resolvable points", len(nodes)))
		return nil, nil
	}
	if !builder.endpointTowers {
		nodes = trimPillars(nodes)
		if len(nodes) < 2 {
			builder.diagnose(DIAG_SHORT_WAY, way.ID, "less than 2 junctions")
			return nil, nil
		}
	}

	for _, i := range []int{0, len(nodes) - 1} {
		if nodes[i].ref.IsTower() {
			continue
		}
		ref, err := builder.promote(nodes[i].id)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't promote endpoint %d", nodes[i].id)
		}
		nodes[i].ref = ref
		// closed way: both endpoints are the same point
		if nodes[0].id == nodes[len(nodes)-1].id {
			nodes[0].ref, nodes[len(nodes)-1].ref = ref, ref
		}
	}

	start := nodes[0].ref.Tower()
	startPoint, err := builder.sink.Node(start)
	if err != nil {
		return nil, err
	}
	points := []GeoPoint{startPoint}
	var edges []EdgeID
	for _, node := range nodes[1:] {
		point, err := builder.coordinates(node)
		if err != nil {
			return edges, errors.Wrapf(err, "Can't read coordinates of point %d", node.id)
		}
		points = append(points, point)
		if !node.ref.IsTower() {
			continue
		}
		edge, err := builder.emit(way, start, node.ref.Tower(), points, attr, name)
		if err != nil {
			return edges, err
		}
		edges = append(edges, edge)
		start = node.ref.Tower()
		points = []GeoPoint{point}
	}
	if _, ok := builder.restricted[way.ID]; ok {
		builder.wayEdges[way.ID] = append(builder.wayEdges[way.ID], edges...)
	}
	return edges, nil
}

// trimPillars cuts leading and trailing pillars off
func trimPillars(nodes []resolvedNode) []resolvedNode {
	first, last := 0, len(nodes)-1
	for first <= last && !nodes[first].ref.IsTower() {
		first++
	}
	for last >= first && !nodes[last].ref.IsTower() {
		last--
	}
	if first > last {
		return nil
	}
	return nodes[first : last+1]
}

// promote turns pillar into tower: new tower index, coordinates copied to sink, pillar slot invalidated
func (builder *edgeBuilder) promote(id int64) (NodeRef, error) {
	previous, current, err := builder.index.Promote(id, builder.alloc.tower)
	if err != nil {
		return current, err
	}
	if !previous.IsPillar() {
		return current, nil
	}
	point, err := builder.pillars.Load(previous.Index)
	if err != nil {
		return current, err
	}
	if err := builder.sink.AddNode(current.Tower(), point); err != nil {
		return current, errors.Wrap(err, "Can't add promoted node")
	}
	if err := builder.pillars.Invalidate(previous.Index); err != nil {
		return current, err
	}
	builder.report.Promoted++
	return current, nil
}

func (builder *edgeBuilder) coordinates(node resolvedNode) (GeoPoint, error) {
	if node.ref.IsTower() {
		return builder.sink.Node(node.ref.Tower())
	}
	return builder.pillars.Load(node.ref.Index)
}

// emit measures unsimplified points, simplifies geometry and stores edge
func (builder *edgeBuilder) emit(way *Way, from, to NodeID, points []GeoPoint, attr AttributeWord, name string) (EdgeID, error) {
	length := getSphericalLength(points)
	if length < builder.minLength {
		builder.report.ZeroLengthEdges++
		builder.diagnose(DIAG_ZERO_LENGTH, way.ID, fmt.Sprintf("edge %d -> %d of %g m clamped to %g m", from, to, length, builder.minLength))
		length = builder.minLength
	}
	spec := EdgeSpec{
		From:     from,
		To:       to,
		Length:   length,
		Attr:     attr,
		Geometry: simplifyLine(points, builder.tolerance),
		WayID:    way.ID,
		Name:     name,
	}
	id, err := builder.sink.AddEdge(spec)
	if err != nil {
		return id, errors.Wrap(err, "Can't add edge")
	}
	if err := builder.alloc.edge(id); err != nil {
		return id, err
	}
	builder.report.Edges++
	builder.report.TotalLength += length
	return id, nil
}
