package osm2graph

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelNodeIndex keeps slots in LevelDB database for extracts which ids don't fit into memory
type LevelNodeIndex struct {
	mu     sync.Mutex
	db     *leveldb.DB
	dir    string
	sealed bool
	count  int
}

// NewLevelNodeIndex creates database in a fresh directory under tmpDir. Empty tmpDir means os.TempDir()
func NewLevelNodeIndex(tmpDir string) (*LevelNodeIndex, error) {
	dir, err := os.MkdirTemp(tmpDir, "osm2graph-index-")
	if err != nil {
		return nil, errors.Wrap(err, "Can't create directory for node index")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{
		NoSync:      true,
		WriteBuffer: 64 * opt.MiB,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "Can't open node index database")
	}
	return &LevelNodeIndex{db: db, dir: dir}, nil
}

// levelKey keeps byte order of keys equal to numeric order of ids, negative ids included
func levelKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id)^(1<<63))
	return key
}

func (index *LevelNodeIndex) get(key []byte) (NodeRef, error) {
	value, err := index.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return NodeRef{}, nil
	}
	if err != nil {
		return NodeRef{}, errors.Wrap(err, "Can't read node slot")
	}
	if len(value) != 8 {
		return NodeRef{}, errors.Errorf("corrupted node slot of %d bytes", len(value))
	}
	return decodeSlot(binary.BigEndian.Uint64(value)), nil
}

func (index *LevelNodeIndex) put(key []byte, ref NodeRef) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, encodeSlot(ref))
	if err := index.db.Put(key, value, nil); err != nil {
		return errors.Wrap(err, "Can't write node slot")
	}
	return nil
}

func (index *LevelNodeIndex) Classify(id int64, endpoint bool) (NodeClass, error) {
	index.mu.Lock()
	defer index.mu.Unlock()
	key := levelKey(id)
	current, err := index.get(key)
	if err != nil {
		return SLOT_UNSEEN, err
	}
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
	if next == current.Class {
		return next, nil
	}
	if current.Class == SLOT_UNSEEN {
		index.count++
	}
	return next, index.put(key, NodeRef{Class: next})
}

func (index *LevelNodeIndex) MarkTower(id int64) error {
	index.mu.Lock()
	defer index.mu.Unlock()
	key := levelKey(id)
	current, err := index.get(key)
	if err != nil {
		return err
	}
	switch current.Class {
	case SLOT_UNSEEN, SLOT_TOWER_CANDIDATE, SLOT_TOWER:
		return nil
	case SLOT_PILLAR_CANDIDATE:
		return index.put(key, NodeRef{Class: SLOT_TOWER_CANDIDATE})
	default:
		return errors.Wrapf(ErrIndexSealed, "can't mark assigned node %d as tower", id)
	}
}

func (index *LevelNodeIndex) Assign(id int64, allocate func(NodeClass) uint32) (NodeRef, bool, error) {
	index.mu.Lock()
	defer index.mu.Unlock()
	key := levelKey(id)
	current, err := index.get(key)
	if err != nil {
		return NodeRef{}, false, err
	}
	if current.Class == SLOT_UNSEEN || current.Class.Assigned() {
		return current, false, nil
	}
	target := assignedClass(current.Class)
	if err := checkTransition(current.Class, target); err != nil {
		return current, false, errors.Wrapf(err, "node %d", id)
	}
	ref := NodeRef{Class: target, Index: allocate(target)}
	if err := index.put(key, ref); err != nil {
		return current, false, err
	}
	return ref, true, nil
}

func (index *LevelNodeIndex) Lookup(id int64) (NodeRef, bool, error) {
	ref, err := index.get(levelKey(id))
	if err != nil {
		return NodeRef{}, false, err
	}
	return ref, ref.Class != SLOT_UNSEEN, nil
}

func (index *LevelNodeIndex) Promote(id int64, allocate func() NodeID) (NodeRef, NodeRef, error) {
	index.mu.Lock()
	defer index.mu.Unlock()
	key := levelKey(id)
	current, err := index.get(key)
	if err != nil {
		return NodeRef{}, NodeRef{}, err
	}
	switch current.Class {
	case SLOT_TOWER:
		return current, current, nil
	case SLOT_PILLAR:
		promoted := NodeRef{Class: SLOT_TOWER, Index: uint32(allocate())}
		if err := index.put(key, promoted); err != nil {
			return current, current, err
		}
		return current, promoted, nil
	default:
		return current, current, errors.Wrapf(ErrUnknownNode, "can't promote node %d in state '%s'", id, current.Class)
	}
}

// Optimize compacts the whole key range and seals index
func (index *LevelNodeIndex) Optimize() error {
	index.mu.Lock()
	defer index.mu.Unlock()
	index.sealed = true
	if err := index.db.CompactRange(util.Range{}); err != nil {
		return errors.Wrap(err, "Can't compact node index")
	}
	return nil
}

func (index *LevelNodeIndex) Len() int {
	index.mu.Lock()
	defer index.mu.Unlock()
	return index.count
}

// Close closes database and removes its directory
func (index *LevelNodeIndex) Close() error {
	index.mu.Lock()
	defer index.mu.Unlock()
	err := index.db.Close()
	if rmErr := os.RemoveAll(index.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return errors.Wrap(err, "Can't close node index")
}
