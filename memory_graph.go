package osm2graph

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type adjacency struct {
	edge     EdgeID
	reversed bool
}

// MemoryGraph is an in-memory GraphSink
type MemoryGraph struct {
	sync.RWMutex
	nodes     []GeoPoint
	placed    []bool
	edges     []EdgeSpec
	adjacent  [][]adjacency
	turnCosts []TurnCostEntry
	bound     *orb.Bound
}

// NewMemoryGraph returns empty graph
func NewMemoryGraph(options ...func(*MemoryGraph)) *MemoryGraph {
	graph := &MemoryGraph{}
	for _, option := range options {
		option(graph)
	}
	return graph
}

// WithBound limits accepted points to the given bound (X is longitude, Y is latitude)
func WithBound(bound orb.Bound) func(*MemoryGraph) {
	return func(graph *MemoryGraph) {
		graph.bound = &bound
	}
}

func (graph *MemoryGraph) AddNode(id NodeID, point GeoPoint) error {
	graph.Lock()
	defer graph.Unlock()
	for int(id) >= len(graph.nodes) {
		graph.nodes = append(graph.nodes, GeoPoint{})
		graph.placed = append(graph.placed, false)
		graph.adjacent = append(graph.adjacent, nil)
	}
	if graph.placed[id] {
		return errors.Errorf("node %d already exists", id)
	}
	graph.nodes[id] = point
	graph.placed[id] = true
	return nil
}

func (graph *MemoryGraph) Node(id NodeID) (GeoPoint, error) {
	graph.RLock()
	defer graph.RUnlock()
	if int(id) >= len(graph.nodes) || !graph.placed[id] {
		return GeoPoint{}, errors.Wrapf(ErrUnknownNode, "node %d", id)
	}
	return graph.nodes[id], nil
}

func (graph *MemoryGraph) AddEdge(spec EdgeSpec) (EdgeID, error) {
	graph.Lock()
	defer graph.Unlock()
	for _, id := range []NodeID{spec.From, spec.To} {
		if int(id) >= len(graph.nodes) || !graph.placed[id] {
			return -1, errors.Wrapf(ErrUnknownNode, "edge references node %d", id)
		}
	}
	id := EdgeID(len(graph.edges))
	graph.edges = append(graph.edges, spec)
	graph.adjacent[spec.From] = append(graph.adjacent[spec.From], adjacency{edge: id})
	graph.adjacent[spec.To] = append(graph.adjacent[spec.To], adjacency{edge: id, reversed: true})
	return id, nil
}

func (graph *MemoryGraph) AddTurnCost(entry TurnCostEntry) error {
	graph.Lock()
	defer graph.Unlock()
	if int(entry.From) >= len(graph.edges) || int(entry.To) >= len(graph.edges) || entry.From < 0 || entry.To < 0 {
		return errors.Errorf("turn cost references unknown edge (%d -> %d)", entry.From, entry.To)
	}
	graph.turnCosts = append(graph.turnCosts, entry)
	return nil
}

func (graph *MemoryGraph) NodeCount() int {
	graph.RLock()
	defer graph.RUnlock()
	return len(graph.nodes)
}

func (graph *MemoryGraph) EdgeCount() int {
	graph.RLock()
	defer graph.RUnlock()
	return len(graph.edges)
}

func (graph *MemoryGraph) InBounds(lat, lon float64) bool {
	if graph.bound == nil {
		return true
	}
	return graph.bound.Contains(orb.Point{lon, lat})
}

func (graph *MemoryGraph) Incident(node NodeID, visit func(EdgeState) bool) {
	graph.RLock()
	defer graph.RUnlock()
	if int(node) >= len(graph.adjacent) {
		return
	}
	for _, adj := range graph.adjacent[node] {
		spec := graph.edges[adj.edge]
		state := EdgeState{
			Edge:     adj.edge,
			Base:     spec.From,
			Adj:      spec.To,
			Attr:     spec.Attr,
			Reversed: adj.reversed,
		}
		if adj.reversed {
			state.Base, state.Adj = spec.To, spec.From
		}
		if !visit(state) {
			return
		}
	}
}

// Edge returns stored edge
func (graph *MemoryGraph) Edge(id EdgeID) (EdgeSpec, bool) {
	graph.RLock()
	defer graph.RUnlock()
	if id < 0 || int(id) >= len(graph.edges) {
		return EdgeSpec{}, false
	}
	return graph.edges[id], true
}

// TurnCosts returns copy of stored turn costs
func (graph *MemoryGraph) TurnCosts() []TurnCostEntry {
	graph.RLock()
	defer graph.RUnlock()
	result := make([]TurnCostEntry, len(graph.turnCosts))
	copy(result, graph.turnCosts)
	return result
}

// TotalLength returns sum of edge lengths (meters)
func (graph *MemoryGraph) TotalLength() float64 {
	graph.RLock()
	defer graph.RUnlock()
	total := 0.0
	for i := range graph.edges {
		total += graph.edges[i].Length
	}
	return total
}
