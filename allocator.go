package osm2graph

import (
	"github.com/pkg/errors"
)

// idAllocator hands out dense identifiers for a single import run
type idAllocator struct {
	nextTower  uint32
	nextPillar uint32
	nextEdge   EdgeID
}

func (alloc *idAllocator) tower() NodeID {
	id := alloc.nextTower
	alloc.nextTower++
	return NodeID(id)
}

func (alloc *idAllocator) pillar() uint32 {
	id := alloc.nextPillar
	alloc.nextPillar++
	return id
}

// edge checks that sink assigned the expected edge id
func (alloc *idAllocator) edge(got EdgeID) error {
	if got != alloc.nextEdge {
		return errors.Wrapf(ErrEdgeIDCollision, "expected edge %d, sink returned %d", alloc.nextEdge, got)
	}
	alloc.nextEdge++
	return nil
}

func (alloc *idAllocator) towers() int {
	return int(alloc.nextTower)
}

func (alloc *idAllocator) pillars() int {
	return int(alloc.nextPillar)
}
