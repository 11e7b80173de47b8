package osm2graph

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIndexBackends(t *testing.T) map[string]func() NodeIndex {
	return map[string]func() NodeIndex{
		"paged": func() NodeIndex {
			return NewPagedNodeIndex()
		},
		"leveldb": func() NodeIndex {
			index, err := NewLevelNodeIndex(t.TempDir())
			require.NoError(t, err)
			return index
		},
	}
}

func TestNextCandidate(t *testing.T) {
	tests := []struct {
		current  NodeClass
		endpoint bool
		expected NodeClass
	}{
		{SLOT_UNSEEN, false, SLOT_PILLAR_CANDIDATE},
		{SLOT_UNSEEN, true, SLOT_TOWER_CANDIDATE},
		{SLOT_PILLAR_CANDIDATE, false, SLOT_TOWER_CANDIDATE},
		{SLOT_PILLAR_CANDIDATE, true, SLOT_TOWER_CANDIDATE},
		{SLOT_TOWER_CANDIDATE, false, SLOT_TOWER_CANDIDATE},
	}
	for _, tt := range tests {
		next, err := nextCandidate(tt.current, tt.endpoint)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, next, "%s endpoint=%t", tt.current, tt.endpoint)
	}
	_, err := nextCandidate(SLOT_PILLAR, false)
	assert.True(t, errors.Is(err, ErrIndexSealed))
}

func TestCheckTransition(t *testing.T) {
	allowed := [][2]NodeClass{
		{SLOT_UNSEEN, SLOT_PILLAR_CANDIDATE},
		{SLOT_PILLAR_CANDIDATE, SLOT_TOWER_CANDIDATE},
		{SLOT_PILLAR_CANDIDATE, SLOT_PILLAR},
		{SLOT_TOWER_CANDIDATE, SLOT_TOWER},
		{SLOT_PILLAR, SLOT_TOWER},
		{SLOT_TOWER, SLOT_TOWER},
	}
	for _, pair := range allowed {
		assert.NoError(t, checkTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
	forbidden := [][2]NodeClass{
		{SLOT_TOWER_CANDIDATE, SLOT_PILLAR_CANDIDATE},
		{SLOT_TOWER_CANDIDATE, SLOT_PILLAR},
		{SLOT_TOWER, SLOT_PILLAR},
		{SLOT_TOWER, SLOT_TOWER_CANDIDATE},
		{SLOT_PILLAR, SLOT_PILLAR_CANDIDATE},
	}
	for _, pair := range forbidden {
		err := checkTransition(pair[0], pair[1])
		assert.True(t, errors.Is(err, ErrClassificationRegression), "%s -> %s", pair[0], pair[1])
	}
}

func TestSlotEncoding(t *testing.T) {
	ref := NodeRef{Class: SLOT_PILLAR, Index: 4294967295}
	assert.Equal(t, ref, decodeSlot(encodeSlot(ref)))
	assert.Equal(t, NodeRef{}, decodeSlot(0))
}

func TestNodeIndexLifecycle(t *testing.T) {
	for name, create := range nodeIndexBackends(t) {
		t.Run(name, func(t *testing.T) {
			index := create()
			defer index.Close()

			// way 1: 10 - 11 - 12, way 2: 12 - 13 - 11 - 14
			for _, step := range []struct {
				id       int64
				endpoint bool
				expected NodeClass
			}{
				{10, true, SLOT_TOWER_CANDIDATE},
				{11, false, SLOT_PILLAR_CANDIDATE},
				{12, true, SLOT_TOWER_CANDIDATE},
				{12, true, SLOT_TOWER_CANDIDATE},
				{13, false, SLOT_PILLAR_CANDIDATE},
				{11, false, SLOT_TOWER_CANDIDATE},
				{14, true, SLOT_TOWER_CANDIDATE},
			} {
				class, err := index.Classify(step.id, step.endpoint)
				require.NoError(t, err)
				assert.Equal(t, step.expected, class, "node %d", step.id)
			}
			assert.Equal(t, 5, index.Len())

			require.NoError(t, index.MarkTower(99))
			require.NoError(t, index.Optimize())

			_, err := index.Classify(100, false)
			assert.True(t, errors.Is(err, ErrIndexSealed))

			_, ok, err := index.Lookup(99)
			require.NoError(t, err)
			assert.False(t, ok)

			alloc := &idAllocator{}
			allocate := func(class NodeClass) uint32 {
				if class == SLOT_TOWER {
					return uint32(alloc.tower())
				}
				return alloc.pillar()
			}
			for _, id := range []int64{10, 11, 12, 13, 14} {
				_, assigned, err := index.Assign(id, allocate)
				require.NoError(t, err)
				assert.True(t, assigned)
			}
			assert.Equal(t, 4, alloc.towers())
			assert.Equal(t, 1, alloc.pillars())

			ref, assigned, err := index.Assign(10, allocate)
			require.NoError(t, err)
			assert.False(t, assigned)
			assert.Equal(t, NodeRef{Class: SLOT_TOWER, Index: 0}, ref)

			_, assigned, err = index.Assign(99, allocate)
			require.NoError(t, err)
			assert.False(t, assigned)
			assert.Equal(t, 4, alloc.towers())

			ref, ok, err = index.Lookup(13)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, NodeRef{Class: SLOT_PILLAR, Index: 0}, ref)

			prev, cur, err := index.Promote(13, alloc.tower)
			require.NoError(t, err)
			assert.Equal(t, SLOT_PILLAR, prev.Class)
			assert.Equal(t, NodeRef{Class: SLOT_TOWER, Index: 4}, cur)

			// second promotion is a no-op
			prev, cur, err = index.Promote(13, alloc.tower)
			require.NoError(t, err)
			assert.Equal(t, prev, cur)
			assert.Equal(t, 5, alloc.towers())

			_, _, err = index.Promote(99, alloc.tower)
			assert.True(t, errors.Is(err, ErrUnknownNode))
		})
	}
}

func TestNodeIndexConcurrentPromote(t *testing.T) {
	for name, create := range nodeIndexBackends(t) {
		t.Run(name, func(t *testing.T) {
			index := create()
			defer index.Close()
			_, err := index.Classify(20, false)
			require.NoError(t, err)
			require.NoError(t, index.Optimize())
			alloc := &idAllocator{}
			_, assigned, err := index.Assign(20, func(NodeClass) uint32 { return alloc.pillar() })
			require.NoError(t, err)
			require.True(t, assigned)

			const workers = 16
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				promoted int
				results  []NodeRef
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					prev, cur, err := index.Promote(20, alloc.tower)
					assert.NoError(t, err)
					mu.Lock()
					defer mu.Unlock()
					if prev.IsPillar() {
						promoted++
					}
					results = append(results, cur)
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, promoted, "only one caller may see the pillar")
			assert.Equal(t, 1, alloc.towers())
			require.Len(t, results, workers)
			for _, ref := range results {
				assert.Equal(t, NodeRef{Class: SLOT_TOWER, Index: 0}, ref)
			}
		})
	}
}

func TestNodeIndexMarkTower(t *testing.T) {
	for name, create := range nodeIndexBackends(t) {
		t.Run(name, func(t *testing.T) {
			index := create()
			defer index.Close()
			_, err := index.Classify(5, false)
			require.NoError(t, err)
			require.NoError(t, index.MarkTower(5))
			ref, ok, err := index.Lookup(5)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, SLOT_TOWER_CANDIDATE, ref.Class)
		})
	}
}

func TestNodeIndexNegativeIDs(t *testing.T) {
	for name, create := range nodeIndexBackends(t) {
		t.Run(name, func(t *testing.T) {
			index := create()
			defer index.Close()
			ids := []int64{-1, -4096, -4097, -123456789}
			for _, id := range ids {
				_, err := index.Classify(id, true)
				require.NoError(t, err)
			}
			require.NoError(t, index.Optimize())
			for _, id := range ids {
				ref, ok, err := index.Lookup(id)
				require.NoError(t, err)
				assert.True(t, ok, "node %d", id)
				assert.Equal(t, SLOT_TOWER_CANDIDATE, ref.Class)
			}
			_, ok, err := index.Lookup(1)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestParseIndexBackend(t *testing.T) {
	backend, err := ParseIndexBackend("leveldb")
	require.NoError(t, err)
	assert.Equal(t, INDEX_LEVELDB, backend)
	backend, err = ParseIndexBackend("")
	require.NoError(t, err)
	assert.Equal(t, INDEX_PAGED, backend)
	_, err = ParseIndexBackend("redis")
	assert.Error(t, err)
}
