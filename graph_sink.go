package osm2graph

// NodeID is a dense, 0-based tower index in the produced graph
type NodeID uint32

// EdgeID is a dense, 0-based edge identifier in the produced graph
type EdgeID int64

// EdgeSpec is an edge handed over to the graph sink
type EdgeSpec struct {
	From NodeID
	To   NodeID
	// Length in meters over unsimplified geometry
	Length float64
	Attr   AttributeWord
	// Geometry is simplified shape including both tower coordinates
	Geometry []GeoPoint
	WayID    int64
	Name     string
}

// EdgeState is an edge seen from one of its nodes
type EdgeState struct {
	Edge EdgeID
	Base NodeID
	Adj  NodeID
	Attr AttributeWord
	// Reversed is true when Base is the stored target of the edge
	Reversed bool
}

// GraphSink receives nodes, edges and turn costs produced by import
type GraphSink interface {
	AddNode(id NodeID, point GeoPoint) error
	Node(id NodeID) (GeoPoint, error)
	// AddEdge stores edge and returns its id. Ids must be dense and start from zero
	AddEdge(spec EdgeSpec) (EdgeID, error)
	AddTurnCost(entry TurnCostEntry) error
	NodeCount() int
	EdgeCount() int
	// InBounds is an optional geographic filter for points
	InBounds(lat, lon float64) bool
	// Incident calls visit for every edge adjacent to node until visit returns false
	Incident(node NodeID, visit func(EdgeState) bool)
}
