package osm2graph

import (
	"github.com/pkg/errors"
)

// NodeClass is a state of a node slot. Candidate states are only valid before assignment,
// PILLAR and TOWER states carry an index of their own space.
type NodeClass uint8

const (
	SLOT_UNSEEN = NodeClass(iota)
	SLOT_PILLAR_CANDIDATE
	SLOT_TOWER_CANDIDATE
	SLOT_PILLAR
	SLOT_TOWER
)

func (iotaIdx NodeClass) String() string {
	return [...]string{"unseen", "pillar_candidate", "tower_candidate", "pillar", "tower"}[iotaIdx]
}

// Assigned reports whether slot carries an index
func (iotaIdx NodeClass) Assigned() bool {
	return iotaIdx == SLOT_PILLAR || iotaIdx == SLOT_TOWER
}

// NodeRef is a resolved node slot
type NodeRef struct {
	Class NodeClass
	Index uint32
}

func (ref NodeRef) IsTower() bool {
	return ref.Class == SLOT_TOWER
}

func (ref NodeRef) IsPillar() bool {
	return ref.Class == SLOT_PILLAR
}

// Tower returns tower index. Valid only when IsTower() is true
func (ref NodeRef) Tower() NodeID {
	return NodeID(ref.Index)
}

// NodeIndex maps external point ids to their classification and later to compact indices
type NodeIndex interface {
	// Classify registers one more way reference. Endpoint references classify as tower candidates at once
	Classify(id int64, endpoint bool) (NodeClass, error)
	// MarkTower forces already referenced node to be a tower candidate. Unseen ids are ignored
	MarkTower(id int64) error
	// Assign consumes candidate state and stores index produced by allocate.
	// Returns false when id is unseen or has been assigned already
	Assign(id int64, allocate func(NodeClass) uint32) (NodeRef, bool, error)
	// Lookup resolves id. Returns false for unseen ids
	Lookup(id int64) (NodeRef, bool, error)
	// Promote turns assigned pillar into tower as a single check-and-set. allocate is called
	// only when promotion happens. Returns previous and current refs
	Promote(id int64, allocate func() NodeID) (NodeRef, NodeRef, error)
	// Optimize compacts structure after a phase of insertions. No new ids are accepted afterwards
	Optimize() error
	// Len returns number of referenced ids
	Len() int
	Close() error
}

// nextCandidate returns classification after one more way reference
func nextCandidate(current NodeClass, endpoint bool) (NodeClass, error) {
	switch current {
	case SLOT_UNSEEN:
		if endpoint {
			return SLOT_TOWER_CANDIDATE, nil
		}
		return SLOT_PILLAR_CANDIDATE, nil
	case SLOT_PILLAR_CANDIDATE, SLOT_TOWER_CANDIDATE:
		return SLOT_TOWER_CANDIDATE, nil
	default:
		return current, errors.Wrapf(ErrIndexSealed, "can't classify node in state '%s'", current)
	}
}

// checkTransition validates slot state change
func checkTransition(from, to NodeClass) error {
	switch {
	case from == to:
		return nil
	case from == SLOT_TOWER_CANDIDATE && to == SLOT_PILLAR_CANDIDATE,
		from == SLOT_TOWER_CANDIDATE && to == SLOT_PILLAR,
		from == SLOT_TOWER && to != SLOT_TOWER:
		return errors.Wrapf(ErrClassificationRegression, "'%s' -> '%s'", from, to)
	case from == SLOT_PILLAR && to != SLOT_TOWER,
		from.Assigned() && !to.Assigned():
		return errors.Wrapf(ErrClassificationRegression, "'%s' -> '%s'", from, to)
	}
	return nil
}

// assignedClass maps candidate state onto assigned state
func assignedClass(candidate NodeClass) NodeClass {
	switch candidate {
	case SLOT_PILLAR_CANDIDATE:
		return SLOT_PILLAR
	case SLOT_TOWER_CANDIDATE:
		return SLOT_TOWER
	default:
		return candidate
	}
}

// slot encoding shared by backends: state in bits 32..39, index in bits 0..31
func encodeSlot(ref NodeRef) uint64 {
	return uint64(ref.Class)<<32 | uint64(ref.Index)
}

func decodeSlot(v uint64) NodeRef {
	return NodeRef{Class: NodeClass(v >> 32 & 0xFF), Index: uint32(v)}
}

// IndexBackend selects NodeIndex implementation
type IndexBackend uint8

const (
	INDEX_PAGED = IndexBackend(iota + 1)
	INDEX_LEVELDB
)

func (iotaIdx IndexBackend) String() string {
	return [...]string{"undefined", "paged", "leveldb"}[iotaIdx]
}

// ParseIndexBackend parses backend name
func ParseIndexBackend(name string) (IndexBackend, error) {
	switch name {
	case "", "paged", "memory":
		return INDEX_PAGED, nil
	case "leveldb", "disk":
		return INDEX_LEVELDB, nil
	default:
		return 0, errors.Errorf("unknown node index backend '%s'", name)
	}
}
