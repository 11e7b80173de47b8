package osm2graph

import (
	"github.com/LdDl/ch"
	"github.com/pkg/errors"
)

// NewContractionGraph converts imported graph into contraction hierarchies graph for given agent.
// Edge directions follow agent access. Weights are kilometers unless meters is set.
// Turn costs are not transferred.
func NewContractionGraph(graph *MemoryGraph, agent AgentType, meters bool) (*ch.Graph, error) {
	chGraph := ch.Graph{}
	graph.RLock()
	defer graph.RUnlock()
	for i := range graph.nodes {
		if !graph.placed[i] {
			continue
		}
		err := chGraph.CreateVertex(int64(i))
		if err != nil {
			return nil, errors.Wrap(err, "Can not create vertex")
		}
	}
	for _, edge := range graph.edges {
		cost := edge.Length / 1000.0
		if meters {
			cost = edge.Length
		}
		source := int64(edge.From)
		target := int64(edge.To)
		if edge.Attr.Forward(agent) {
			err := chGraph.AddEdge(source, target, cost)
			if err != nil {
				return nil, errors.Wrap(err, "Can not wrap Source and Targed vertices as Edge")
			}
		}
		if edge.Attr.Backward(agent) && source != target {
			err := chGraph.AddEdge(target, source, cost)
			if err != nil {
				return nil, errors.Wrap(err, "Can not wrap Target and Source vertices as Edge")
			}
		}
	}
	return &chGraph, nil
}
