package osm2graph

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
)

const (
	pillarRecordSize    = 12
	pillarSegmentLength = 16384
	pillarSegmentBytes  = pillarRecordSize * pillarSegmentLength
	pillarInvalidLat    = math.MaxInt32

	defaultPillarSegments = 256
)

type pillarSegment struct {
	data    []byte
	dirty   bool
	lastUse uint64
}

// PillarStore is a temporary file of fixed-size coordinate records indexed by pillar index.
// Records are lat and lon in 1e-7 degrees and elevation in centimeters, all int32.
// A bounded number of segments is kept in memory and written back on eviction.
type PillarStore struct {
	mu          sync.Mutex
	file        *os.File
	size        uint32
	segments    map[uint32]*pillarSegment
	maxSegments int
	clock       uint64
	closed      bool
}

// WithPillarSegments sets number of segments cached in memory
func WithPillarSegments(n int) func(*PillarStore) {
	return func(store *PillarStore) {
		if n > 0 {
			store.maxSegments = n
		}
	}
}

// NewPillarStore creates backing file in dir. Empty dir means os.TempDir()
func NewPillarStore(dir string, options ...func(*PillarStore)) (*PillarStore, error) {
	file, err := os.CreateTemp(dir, "osm2graph-pillars-*.bin")
	if err != nil {
		return nil, errors.Wrap(err, "Can't create pillar store file")
	}
	store := &PillarStore{
		file:        file,
		segments:    make(map[uint32]*pillarSegment),
		maxSegments: defaultPillarSegments,
	}
	for _, option := range options {
		option(store)
	}
	return store, nil
}

// Store writes coordinates of pillar. Store grows when idx is beyond current size
func (store *PillarStore) Store(idx uint32, point GeoPoint) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, err := store.record(idx, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(record[0:4], uint32(toFixed(point.Lat)))
	binary.LittleEndian.PutUint32(record[4:8], uint32(toFixed(point.Lon)))
	binary.LittleEndian.PutUint32(record[8:12], uint32(toFixedElevation(point.Ele)))
	if idx >= store.size {
		store.size = idx + 1
	}
	return nil
}

// Load reads coordinates of pillar. Reading invalidated slot is an error
func (store *PillarStore) Load(idx uint32) (GeoPoint, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if idx >= store.size {
		return GeoPoint{}, errors.Wrapf(ErrPillarOutOfRange, "pillar %d of %d", idx, store.size)
	}
	record, err := store.record(idx, false)
	if err != nil {
		return GeoPoint{}, err
	}
	lat := int32(binary.LittleEndian.Uint32(record[0:4]))
	if lat == pillarInvalidLat {
		return GeoPoint{}, errors.Wrapf(ErrPillarInvalidated, "pillar %d", idx)
	}
	lon := int32(binary.LittleEndian.Uint32(record[4:8]))
	ele := int32(binary.LittleEndian.Uint32(record[8:12]))
	return GeoPoint{Lat: fromFixed(lat), Lon: fromFixed(lon), Ele: fromFixedElevation(ele)}, nil
}

// Invalidate marks pillar slot as consumed by promotion
func (store *PillarStore) Invalidate(idx uint32) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if idx >= store.size {
		return errors.Wrapf(ErrPillarOutOfRange, "pillar %d of %d", idx, store.size)
	}
	record, err := store.record(idx, true)
	if err != nil {
		return err
	}
	if int32(binary.LittleEndian.Uint32(record[0:4])) == pillarInvalidLat {
		return errors.Wrapf(ErrPillarInvalidated, "pillar %d invalidated twice", idx)
	}
	binary.LittleEndian.PutUint32(record[0:4], uint32(int32(pillarInvalidLat)))
	return nil
}

// Len returns number of slots
func (store *PillarStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return int(store.size)
}

// Close releases backing file
func (store *PillarStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return nil
	}
	store.closed = true
	store.segments = nil
	name := store.file.Name()
	err := store.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	return errors.Wrap(err, "Can't release pillar store")
}

// record returns slice of the record in cached segment. Must be called under lock
func (store *PillarStore) record(idx uint32, write bool) ([]byte, error) {
	if store.closed {
		return nil, errors.New("pillar store is closed")
	}
	segmentIdx := idx / pillarSegmentLength
	segment, err := store.segment(segmentIdx)
	if err != nil {
		return nil, err
	}
	store.clock++
	segment.lastUse = store.clock
	if write {
		segment.dirty = true
	}
	offset := int(idx%pillarSegmentLength) * pillarRecordSize
	return segment.data[offset : offset+pillarRecordSize], nil
}

func (store *PillarStore) segment(segmentIdx uint32) (*pillarSegment, error) {
	if segment, ok := store.segments[segmentIdx]; ok {
		return segment, nil
	}
	if len(store.segments) >= store.maxSegments {
		if err := store.evict(); err != nil {
			return nil, err
		}
	}
	segment := &pillarSegment{data: make([]byte, pillarSegmentBytes)}
	// Segment may lie partially or fully beyond end of file: the tail stays zeroed
	_, err := store.file.ReadAt(segment.data, int64(segmentIdx)*pillarSegmentBytes)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "Can't read pillar segment %d", segmentIdx)
	}
	store.segments[segmentIdx] = segment
	return segment, nil
}

// evict writes back and drops least recently used segment
func (store *PillarStore) evict() error {
	var (
		victimIdx uint32
		victim    *pillarSegment
	)
	for idx, segment := range store.segments {
		if victim == nil || segment.lastUse < victim.lastUse {
			victimIdx, victim = idx, segment
		}
	}
	if victim == nil {
		return nil
	}
	if victim.dirty {
		if _, err := store.file.WriteAt(victim.data, int64(victimIdx)*pillarSegmentBytes); err != nil {
			return errors.Wrapf(err, "Can't write pillar segment %d", victimIdx)
		}
	}
	delete(store.segments, victimIdx)
	return nil
}
