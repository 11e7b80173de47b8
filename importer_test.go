package osm2graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importExtract(t *testing.T, extract testExtract, graph *MemoryGraph, options ...func(*Importer)) (*ImportReport, error) {
	options = append([]func(*Importer){WithTempDir(t.TempDir()), WithWorkers(2)}, options...)
	importer := NewImporter(BytesSource(extract.XML()), graph, options...)
	return importer.Run(context.Background())
}

func qpt(lat, lon float64) GeoPoint {
	return quantize(NewGeoPoint(lat, lon))
}

// edgeLines renders edges without elevation, which is NaN when disabled
func edgeLines(graph *MemoryGraph) []string {
	lines := make([]string, 0, graph.EdgeCount())
	for i := 0; i < graph.EdgeCount(); i++ {
		edge, _ := graph.Edge(EdgeID(i))
		line := fmt.Sprintf("%d->%d way=%d len=%.6f attr=%d", edge.From, edge.To, edge.WayID, edge.Length, edge.Attr)
		for _, p := range edge.Geometry {
			line += fmt.Sprintf(" (%.7f,%.7f)", p.Lat, p.Lon)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestImportPillarStaysInside(t *testing.T) {
	graph := NewMemoryGraph()
	report, err := importExtract(t, lineExtract(), graph)
	require.NoError(t, err)
	assert.False(t, report.Incomplete)

	assert.Equal(t, 2, report.Towers)
	assert.Equal(t, 1, report.Pillars)
	assert.Equal(t, 0, report.Promoted)
	assert.Equal(t, 1, report.Edges)
	assert.Equal(t, ElementCounts{Seen: 4, Accepted: 3, Skipped: 1}, report.Points)
	assert.Equal(t, ElementCounts{Seen: 1, Accepted: 1}, report.Ways)
	assert.Equal(t, FRAMING_RAW, report.Framing)
	assert.Equal(t, ENCODING_XML, report.Encoding)
	assert.False(t, report.NegativeIDs)
	assert.Len(t, report.Durations, 4)

	require.Equal(t, 1, graph.EdgeCount())
	edge, ok := graph.Edge(0)
	require.True(t, ok)
	p1, p2, p3 := qpt(55.75, 37.6), qpt(55.751, 37.601), qpt(55.752, 37.6)
	assert.Equal(t, NodeID(0), edge.From)
	assert.Equal(t, NodeID(1), edge.To)
	assert.Equal(t, int64(100), edge.WayID)
	assert.InDelta(t, greatCircleDistance(p1, p2)+greatCircleDistance(p2, p3), edge.Length, 1e-6)
	assert.InDelta(t, edge.Length, report.TotalLength, 1e-9)
	require.Len(t, edge.Geometry, 3)
	assert.InDelta(t, p2.Lat, edge.Geometry[1].Lat, 1e-9)
	assert.InDelta(t, p2.Lon, edge.Geometry[1].Lon, 1e-9)
	assert.True(t, edge.Attr.Forward(AGENT_AUTO))
	assert.True(t, edge.Attr.Backward(AGENT_AUTO))

	last, err := graph.Node(1)
	require.NoError(t, err)
	assert.InDelta(t, p3.Lat, last.Lat, 1e-9)
	assert.False(t, last.HasElevation())
}

func TestImportBackendsAgree(t *testing.T) {
	extract := junctionExtract("no_left_turn")
	paged := NewMemoryGraph()
	_, err := importExtract(t, extract, paged, WithIndexBackend(INDEX_PAGED))
	require.NoError(t, err)
	level := NewMemoryGraph()
	_, err = importExtract(t, extract, level, WithIndexBackend(INDEX_LEVELDB))
	require.NoError(t, err)
	assert.Len(t, edgeLines(paged), 3)
	assert.Equal(t, edgeLines(paged), edgeLines(level))
	assert.Equal(t, paged.TurnCosts(), level.TurnCosts())
}

func TestImportIdempotent(t *testing.T) {
	extract := junctionExtract("only_straight_on")
	first := NewMemoryGraph()
	r1, err := importExtract(t, extract, first)
	require.NoError(t, err)
	second := NewMemoryGraph()
	r2, err := importExtract(t, extract, second)
	require.NoError(t, err)
	assert.Equal(t, edgeLines(first), edgeLines(second))
	assert.Equal(t, first.TurnCosts(), second.TurnCosts())
	assert.Equal(t, r1.Edges, r2.Edges)
	assert.Equal(t, r1.TurnCosts, r2.TurnCosts)
}

func TestImportForbiddenTurn(t *testing.T) {
	graph := NewMemoryGraph()
	report, err := importExtract(t, junctionExtract("no_left_turn"), graph)
	require.NoError(t, err)
	require.Equal(t, 3, graph.EdgeCount())
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 1, Cost: TURN_COST_FORBIDDEN, Classes: CLASS_SET_ALL},
	}, graph.TurnCosts())
	assert.Equal(t, 1, report.Restrictions)
	assert.Equal(t, 1, report.RestrictionsApplied)
	assert.Equal(t, 1, report.TurnCosts)
	assert.Equal(t, ElementCounts{Seen: 1, Accepted: 1}, report.Relations)
}

func TestImportExclusiveTurn(t *testing.T) {
	graph := NewMemoryGraph()
	_, err := importExtract(t, junctionExtract("only_straight_on"), graph)
	require.NoError(t, err)
	// only way 101 is allowed after way 100, so the turn onto way 102 is forbidden
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 2, Cost: TURN_COST_FORBIDDEN, Classes: CLASS_SET_ALL},
	}, graph.TurnCosts())
}

func TestImportUTurn(t *testing.T) {
	extract := junctionExtract("")
	extract.relations = append(extract.relations, testRelation{
		id: 201,
		members: []testMember{
			{kind: "way", ref: 100, role: "from"},
			{kind: "node", ref: 2, role: "via"},
			{kind: "way", ref: 100, role: "to"},
		},
		tags: map[string]string{"type": "restriction", "restriction": "no_u_turn"},
	})
	graph := NewMemoryGraph()
	_, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 0, Cost: TURN_COST_FORBIDDEN, Classes: CLASS_SET_ALL},
	}, graph.TurnCosts())
}

func TestImportSameWayStraightOn(t *testing.T) {
	// way 100 passes through junction 2 where way 101 branches off
	extract := lineExtract()
	extract.ways = append(extract.ways, testWay{id: 101, refs: []int64{2, 4}, tags: residential()})
	extract.relations = []testRelation{{
		id: 200,
		members: []testMember{
			{kind: "way", ref: 100, role: "from"},
			{kind: "node", ref: 2, role: "via"},
			{kind: "way", ref: 100, role: "to"},
		},
		tags: map[string]string{"type": "restriction", "restriction": "no_straight_on"},
	}}
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	require.Equal(t, 3, graph.EdgeCount())
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 1, Cost: TURN_COST_FORBIDDEN, Classes: CLASS_SET_ALL},
		{Via: 1, From: 1, To: 0, Cost: TURN_COST_FORBIDDEN, Classes: CLASS_SET_ALL},
	}, graph.TurnCosts())
	assert.Equal(t, 1, report.RestrictionsApplied)
}

func TestImportClassScopedRestriction(t *testing.T) {
	extract := junctionExtract("")
	// cars may only enter the junction from point 4, bicycles ride both ways
	extract.ways[2].tags = map[string]string{"highway": "residential", "oneway": "-1", "oneway:bicycle": "no"}
	members := []testMember{
		{kind: "way", ref: 100, role: "from"},
		{kind: "node", ref: 2, role: "via"},
		{kind: "way", ref: 101, role: "to"},
	}
	extract.relations = []testRelation{
		{id: 200, members: members, tags: map[string]string{"type": "restriction", "restriction:bicycle": "only_left_turn"}},
		{id: 201, members: members, tags: map[string]string{"type": "restriction", "restriction:motorcar": "only_left_turn"}},
	}
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	// bicycles may not go straight, cars can't go there anyway
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 2, Cost: TURN_COST_FORBIDDEN, Classes: NewVehicleClassSet(VEHICLE_BICYCLE)},
	}, graph.TurnCosts())
	assert.Equal(t, 2, report.Restrictions)
	assert.Equal(t, 1, report.RestrictionsApplied)
	assert.Equal(t, 1, report.RestrictionsDropped)
	assert.Equal(t, 1, report.Count(DIAG_UNRESOLVED_RESTRICTION))
}

func TestImportExceptRestriction(t *testing.T) {
	extract := junctionExtract("no_left_turn")
	extract.relations[0].tags["except"] = "bicycle"
	graph := NewMemoryGraph()
	_, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	classes := CLASS_SET_ALL.Without(NewVehicleClassSet(VEHICLE_BICYCLE))
	assert.Equal(t, []TurnCostEntry{
		{Via: 1, From: 0, To: 1, Cost: TURN_COST_FORBIDDEN, Classes: classes},
	}, graph.TurnCosts())
	assert.False(t, classes.Has(VEHICLE_BICYCLE))
	assert.True(t, classes.Has(VEHICLE_MOTORCAR))
}

func TestImportWithoutEndpointTowers(t *testing.T) {
	// way 100 is 1-2-3-5 and way 101 is 2-4: only 2 is a junction of both
	extract := lineExtract()
	extract.nodes = append(extract.nodes, testNode{id: 5, lat: 55.753, lon: 37.6})
	extract.ways[0].refs = []int64{1, 2, 3, 5}
	extract.ways = append(extract.ways, testWay{id: 101, refs: []int64{2, 4, 3}, tags: residential()})

	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Equal(t, 4, graph.EdgeCount())
	assert.Equal(t, 4, report.Towers)
	assert.Equal(t, 1, report.Pillars)

	graph = NewMemoryGraph()
	report, err = importExtract(t, extract, graph, WithEndpointTowers(false))
	require.NoError(t, err)
	// dead ends 1-2 and 3-5 are cut off, 2-3 is kept by both ways
	assert.Equal(t, 2, report.Towers)
	assert.Equal(t, 3, report.Pillars)
	assert.Equal(t, 0, report.Promoted)
	require.Equal(t, 2, graph.EdgeCount())
	first, _ := graph.Edge(0)
	second, _ := graph.Edge(1)
	assert.Equal(t, int64(100), first.WayID)
	assert.Len(t, first.Geometry, 2)
	assert.Equal(t, int64(101), second.WayID)
	assert.Equal(t, first.From, second.From)
	assert.Equal(t, first.To, second.To)
}

func TestImportPillarViaIsTower(t *testing.T) {
	// via point in the middle of a single way must still become a junction
	extract := testExtract{
		nodes: []testNode{
			{id: 1, lat: 55.75, lon: 37.6},
			{id: 2, lat: 55.751, lon: 37.6},
			{id: 3, lat: 55.752, lon: 37.6},
		},
		ways: []testWay{
			{id: 100, refs: []int64{1, 2, 3}, tags: residential()},
		},
		relations: []testRelation{{
			id: 200,
			members: []testMember{
				{kind: "way", ref: 100, role: "from"},
				{kind: "node", ref: 2, role: "via"},
				{kind: "way", ref: 100, role: "to"},
			},
			tags: map[string]string{"type": "restriction", "restriction": "no_u_turn"},
		}},
	}
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Towers)
	assert.Equal(t, 0, report.Pillars)
	assert.Equal(t, 2, graph.EdgeCount())
	assert.Len(t, graph.TurnCosts(), 2)
}

func TestImportUnresolvedRestriction(t *testing.T) {
	extract := junctionExtract("")
	extract.relations = append(extract.relations, testRelation{
		id: 201,
		members: []testMember{
			{kind: "way", ref: 100, role: "from"},
			{kind: "node", ref: 77, role: "via"},
			{kind: "way", ref: 101, role: "to"},
		},
		tags: map[string]string{"type": "restriction", "restriction": "no_left_turn"},
	}, testRelation{
		id:   202,
		tags: map[string]string{"type": "route"},
		members: []testMember{
			{kind: "way", ref: 100, role: ""},
		},
	})
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Empty(t, graph.TurnCosts())
	assert.Equal(t, 1, report.RestrictionsDropped)
	assert.Equal(t, 1, report.Count(DIAG_UNRESOLVED_RESTRICTION))
	assert.Equal(t, ElementCounts{Seen: 2, Skipped: 2}, report.Relations)
}

func TestImportDanglingReferences(t *testing.T) {
	extract := lineExtract()
	extract.ways[0].refs = []int64{99, 1, 2, 98, 3}
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DanglingRefs)
	assert.Equal(t, 2, report.Count(DIAG_DANGLING_REF))
	// point 1 became first resolvable endpoint
	assert.Equal(t, 1, report.Promoted)
	require.Equal(t, 1, graph.EdgeCount())
	edge, _ := graph.Edge(0)
	assert.Len(t, edge.Geometry, 3)
}

func TestImportOutOfBounds(t *testing.T) {
	graph := NewMemoryGraph(WithBound(orb.Bound{Min: orb.Point{37.5, 55.7}, Max: orb.Point{37.65, 55.7515}}))
	report, err := importExtract(t, lineExtract(), graph)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(DIAG_OUT_OF_BOUNDS))
	assert.Equal(t, 1, report.Promoted)
	require.Equal(t, 1, graph.EdgeCount())
	edge, _ := graph.Edge(0)
	assert.InDelta(t, greatCircleDistance(qpt(55.75, 37.6), qpt(55.751, 37.601)), edge.Length, 1e-6)
}

func TestImportShortWay(t *testing.T) {
	extract := lineExtract()
	extract.ways = append(extract.ways, testWay{id: 101, refs: []int64{3, 97}, tags: residential()})
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(DIAG_SHORT_WAY))
	assert.Equal(t, 1, graph.EdgeCount())
}

func TestImportZeroLengthEdge(t *testing.T) {
	extract := lineExtract()
	extract.nodes = append(extract.nodes, testNode{id: 5, lat: 55.752, lon: 37.6})
	extract.ways = append(extract.ways, testWay{id: 101, refs: []int64{3, 5}, tags: residential()})
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph, WithMinEdgeLength(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ZeroLengthEdges)
	edge, ok := graph.Edge(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, edge.Length)
}

func TestImportNegativeIDs(t *testing.T) {
	extract := lineExtract()
	for i := range extract.nodes {
		extract.nodes[i].id = -extract.nodes[i].id
	}
	extract.ways[0].refs = []int64{-1, -2, -3}
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.NoError(t, err)
	assert.True(t, report.NegativeIDs)
	assert.Equal(t, 1, graph.EdgeCount())
}

func TestImportMixedIDSigns(t *testing.T) {
	extract := lineExtract()
	extract.nodes[3].id = -4
	graph := NewMemoryGraph()
	report, err := importExtract(t, extract, graph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMixedIDSigns))
	assert.True(t, report.Incomplete)
	assert.Equal(t, 1, report.Count(DIAG_MIXED_ID_SIGNS))
	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.Equal(t, PHASE_PLACE_NODES, importErr.Phase)
	assert.Equal(t, int64(-4), importErr.ElementID)
}

func TestImportNoNodes(t *testing.T) {
	extract := lineExtract()
	extract.ways[0].tags = map[string]string{"building": "yes"}
	report, err := importExtract(t, extract, NewMemoryGraph())
	assert.True(t, errors.Is(err, ErrNoNodes))
	assert.True(t, report.Incomplete)
	assert.Equal(t, ElementCounts{Seen: 1, Skipped: 1}, report.Ways)
}

func TestImportEmptySource(t *testing.T) {
	importer := NewImporter(BytesSource(nil), NewMemoryGraph(), WithTempDir(t.TempDir()))
	report, err := importer.Run(context.Background())
	assert.True(t, errors.Is(err, ErrEmptySource))
	assert.True(t, report.Incomplete)
}

func TestImportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	importer := NewImporter(BytesSource(lineExtract().XML()), NewMemoryGraph(), WithTempDir(t.TempDir()))
	report, err := importer.Run(ctx)
	assert.True(t, errors.Is(err, ErrImportCanceled))
	assert.True(t, report.Incomplete)
}

func TestImportCompressed(t *testing.T) {
	data := compressTest(t, FRAMING_ZSTD, junctionExtract("no_left_turn").XML())
	graph := NewMemoryGraph()
	importer := NewImporter(BytesSource(data), graph, WithTempDir(t.TempDir()))
	report, err := importer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FRAMING_ZSTD, report.Framing)
	assert.Equal(t, 3, graph.EdgeCount())
	assert.Len(t, graph.TurnCosts(), 1)
}

func TestImportMalformedReportedOnce(t *testing.T) {
	extract := lineExtract()
	extract.ways = append(extract.ways, testWay{id: 101, tags: residential()})
	extract.nodes = append(extract.nodes, testNode{id: 5, lat: -91, lon: 0})
	report, err := importExtract(t, extract, NewMemoryGraph())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(DIAG_MALFORMED))
}

func TestImportElevation(t *testing.T) {
	extract := lineExtract()
	extract.nodes[0].tags = map[string]string{"ele": "152.5"}
	graph := NewMemoryGraph()
	_, err := importExtract(t, extract, graph, WithElevation(true))
	require.NoError(t, err)
	node, err := graph.Node(0)
	require.NoError(t, err)
	assert.Equal(t, 152.5, node.Ele)
}

func TestImportDiagnosticsLimit(t *testing.T) {
	extract := lineExtract()
	extract.ways[0].refs = []int64{1, 90, 91, 92, 2, 3}
	report, err := importExtract(t, extract, NewMemoryGraph(), WithMaxDiagnostics(1))
	require.NoError(t, err)
	assert.Len(t, report.Diagnostics, 1)
	assert.Equal(t, 3, report.Count(DIAG_DANGLING_REF))
	assert.Contains(t, report.String(), "dangling_ref: 3")
}
