package osm2graph

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

type nodePage struct {
	key   int64
	slots [pageSize]uint64
}

// PagedNodeIndex keeps slots in fixed-size pages keyed by high bits of external id.
// Sparse id ranges cost one page per 4096 ids actually touched.
type PagedNodeIndex struct {
	sync.RWMutex
	pages  map[int64]*nodePage
	sorted []*nodePage
	sealed bool
	count  int
}

// NewPagedNodeIndex returns empty in-memory index
func NewPagedNodeIndex() *PagedNodeIndex {
	return &PagedNodeIndex{
		pages: make(map[int64]*nodePage),
	}
}

func splitID(id int64) (int64, int) {
	return id >> pageBits, int(id & pageMask)
}

// page returns page for key. Must be called under lock
func (index *PagedNodeIndex) page(key int64) *nodePage {
	if index.sorted != nil {
		i := sort.Search(len(index.sorted), func(i int) bool {
			return index.sorted[i].key >= key
		})
		if i < len(index.sorted) && index.sorted[i].key == key {
			return index.sorted[i]
		}
		return nil
	}
	return index.pages[key]
}

func (index *PagedNodeIndex) Classify(id int64, endpoint bool) (NodeClass, error) {
	index.Lock()
	defer index.Unlock()
	key, offset := splitID(id)
	page := index.page(key)
	if page == nil {
		if index.sealed {
			return SLOT_UNSEEN, errors.Wrapf(ErrIndexSealed, "can't classify new node %d", id)
		}
		page = &nodePage{key: key}
		index.pages[key] = page
	}
	current := decodeSlot(page.slots[offset])
	if index.sealed && current.Class == SLOT_UNSEEN {
		return SLOT_UNSEEN, errors.Wrapf(ErrIndexSealed, "can't classify new node %d", id)
	}
	next, err := nextCandidate(current.Class, endpoint)
	if err != nil {
		return current.Class, errors.Wrapf(err, "node %d", id)
	}
	if err := checkTransition(current.Class, next); err != nil {
		return current.Class, errors.Wrapf(err, "node %d", id)
	}
	if current.Class == SLOT_UNSEEN {
		index.count++
	}
	page.slots[offset] = encodeSlot(NodeRef{Class: next})
	return next, nil
}

func (index *PagedNodeIndex) MarkTower(id int64) error {
	index.Lock()
	defer index.Unlock()
	key, offset := splitID(id)
	page := index.page(key)
	if page == nil {
		return nil
	}
	current := decodeSlot(page.slots[offset])
	switch current.Class {
	case SLOT_UNSEEN, SLOT_TOWER_CANDIDATE, SLOT_TOWER:
		return nil
	case SLOT_PILLAR_CANDIDATE:
		page.slots[offset] = encodeSlot(NodeRef{Class: SLOT_TOWER_CANDIDATE})
		return nil
	default:
		return errors.Wrapf(ErrIndexSealed, "can't mark assigned node %d as tower", id)
	}
}

func (index *PagedNodeIndex) Assign(id int64, allocate func(NodeClass) uint32) (NodeRef, bool, error) {
	index.Lock()
	defer index.Unlock()
	key, offset := splitID(id)
	page := index.page(key)
	if page == nil {
		return NodeRef{}, false, nil
	}
	current := decodeSlot(page.slots[offset])
	if current.Class == SLOT_UNSEEN || current.Class.Assigned() {
		return current, false, nil
	}
	target := assignedClass(current.Class)
	if err := checkTransition(current.Class, target); err != nil {
		return current, false, errors.Wrapf(err, "node %d", id)
	}
	ref := NodeRef{Class: target, Index: allocate(target)}
	page.slots[offset] = encodeSlot(ref)
	return ref, true, nil
}

func (index *PagedNodeIndex) Lookup(id int64) (NodeRef, bool, error) {
	index.RLock()
	defer index.RUnlock()
	key, offset := splitID(id)
	page := index.page(key)
	if page == nil {
		return NodeRef{}, false, nil
	}
	ref := decodeSlot(page.slots[offset])
	return ref, ref.Class != SLOT_UNSEEN, nil
}

func (index *PagedNodeIndex) Promote(id int64, allocate func() NodeID) (NodeRef, NodeRef, error) {
	index.Lock()
	defer index.Unlock()
	key, offset := splitID(id)
	page := index.page(key)
	if page == nil {
		return NodeRef{}, NodeRef{}, errors.Wrapf(ErrUnknownNode, "can't promote node %d", id)
	}
	current := decodeSlot(page.slots[offset])
	switch current.Class {
	case SLOT_TOWER:
		return current, current, nil
	case SLOT_PILLAR:
		promoted := NodeRef{Class: SLOT_TOWER, Index: uint32(allocate())}
		page.slots[offset] = encodeSlot(promoted)
		return current, promoted, nil
	default:
		return current, current, errors.Wrapf(ErrUnknownNode, "can't promote node %d in state '%s'", id, current.Class)
	}
}

// Optimize seals index and switches lookups to binary search over sorted pages
func (index *PagedNodeIndex) Optimize() error {
	index.Lock()
	defer index.Unlock()
	if index.sorted == nil {
		keys := make([]int64, 0, len(index.pages))
		for key := range index.pages {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		index.sorted = make([]*nodePage, 0, len(keys))
		for _, key := range keys {
			index.sorted = append(index.sorted, index.pages[key])
		}
		index.pages = nil
	}
	index.sealed = true
	return nil
}

func (index *PagedNodeIndex) Len() int {
	index.RLock()
	defer index.RUnlock()
	return index.count
}

func (index *PagedNodeIndex) Close() error {
	index.Lock()
	defer index.Unlock()
	index.pages = nil
	index.sorted = nil
	return nil
}
