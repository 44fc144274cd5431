package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/store"
)

// memVectors is an in-memory VectorStore for index tests.
type memVectors struct {
	vecs []store.Vector
}

func (m *memVectors) Append(v store.Vector) (uint64, error) {
	m.vecs = append(m.vecs, v)
	return uint64(len(m.vecs) - 1), nil
}

func (m *memVectors) Get(id uint64) (store.Vector, error) {
	if id >= uint64(len(m.vecs)) {
		return nil, verrors.Newf(verrors.ErrCodeVectorNotFound, "vector id out of range: %d", id)
	}
	out := make(store.Vector, len(m.vecs[id]))
	copy(out, m.vecs[id])
	return out, nil
}

func (m *memVectors) Count() uint64 { return uint64(len(m.vecs)) }
func (m *memVectors) Close() error  { return nil }

func addAll(t *testing.T, idx *HNSW, vecs *memVectors, vectors ...store.Vector) {
	t.Helper()
	for _, v := range vectors {
		id, err := vecs.Append(v)
		require.NoError(t, err)
		idx.Add(id, v)
	}
}

func TestHNSW_EmptySearch(t *testing.T) {
	idx := New(&memVectors{})

	ids, dists := idx.Search(store.Vector{1, 0}, 5)

	assert.Nil(t, ids)
	assert.Nil(t, dists)
}

func TestHNSW_SingleVector(t *testing.T) {
	vecs := &memVectors{}
	idx := New(vecs)
	addAll(t, idx, vecs, store.Vector{1, 2, 3})

	ids, dists := idx.Search(store.Vector{1, 2, 3}, 5)

	require.Len(t, ids, 1)
	assert.Equal(t, uint64(0), ids[0])
	assert.Equal(t, float32(0), dists[0])
}

func TestHNSW_NearestFirst(t *testing.T) {
	// Given: well-separated points on the axes
	vecs := &memVectors{}
	idx := New(vecs)
	addAll(t, idx, vecs,
		store.Vector{10, 0, 0},
		store.Vector{0, 10, 0},
		store.Vector{0, 0, 10},
		store.Vector{9, 1, 0},
	)

	// When: I query near the x axis
	ids, dists := idx.Search(store.Vector{10, 0, 0}, 2)

	// Then: the exact match comes first, its axis neighbor second
	require.Len(t, ids, 2)
	assert.Equal(t, uint64(0), ids[0])
	assert.Equal(t, uint64(3), ids[1])
	assert.Less(t, dists[0], dists[1])
}

func TestHNSW_KLargerThanGraph(t *testing.T) {
	vecs := &memVectors{}
	idx := New(vecs)
	addAll(t, idx, vecs, store.Vector{1, 0}, store.Vector{0, 1})

	ids, _ := idx.Search(store.Vector{1, 0}, 10)

	assert.Len(t, ids, 2)
}

func TestHNSW_Reset(t *testing.T) {
	// Given: a populated graph
	vecs := &memVectors{}
	idx := New(vecs)
	addAll(t, idx, vecs, store.Vector{1, 0}, store.Vector{0, 1})
	require.Equal(t, 2, idx.Len())

	// When: I reset it
	idx.Reset()

	// Then: it is empty and searches return nothing
	assert.Equal(t, 0, idx.Len())
	ids, _ := idx.Search(store.Vector{1, 0}, 5)
	assert.Nil(t, ids)
}

func TestHNSW_RebuildReplaysStore(t *testing.T) {
	// Given: vectors appended to the store without touching the index
	vecs := &memVectors{}
	for i := 0; i < 50; i++ {
		_, err := vecs.Append(store.Vector{float32(i), float32(50 - i)})
		require.NoError(t, err)
	}
	idx := New(vecs)
	require.Equal(t, 0, idx.Len())

	// When: I rebuild
	require.NoError(t, idx.Rebuild())

	// Then: every stored vector is searchable
	require.Equal(t, 50, idx.Len())
	ids, dists := idx.Search(store.Vector{25, 25}, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, uint64(25), ids[0])
	assert.Equal(t, float32(0), dists[0])
}

func TestHNSW_RecallOnClusteredData(t *testing.T) {
	// Given: three tight clusters far apart
	vecs := &memVectors{}
	idx := New(vecs)
	centers := []store.Vector{{0, 0}, {100, 100}, {-100, 100}}
	for _, c := range centers {
		for j := 0; j < 20; j++ {
			v := store.Vector{c[0] + float32(j)*0.01, c[1] - float32(j)*0.01}
			id, err := vecs.Append(v)
			require.NoError(t, err)
			idx.Add(id, v)
		}
	}

	// When: I query at a cluster center for the whole cluster
	ids, dists := idx.Search(store.Vector{100, 100}, 20)

	// Then: every hit belongs to that cluster and distances ascend
	require.Len(t, ids, 20)
	for i, id := range ids {
		assert.GreaterOrEqual(t, id, uint64(20), "id %d outside cluster", id)
		assert.Less(t, id, uint64(40), "id %d outside cluster", id)
		if i > 0 {
			assert.GreaterOrEqual(t, dists[i], dists[i-1])
		}
	}
}

func TestHNSW_AddAfterRebuild(t *testing.T) {
	// Given: a rebuilt graph
	vecs := &memVectors{}
	for i := 0; i < 10; i++ {
		_, err := vecs.Append(store.Vector{float32(i), 0})
		require.NoError(t, err)
	}
	idx := New(vecs)
	require.NoError(t, idx.Rebuild())

	// When: I append and add one more vector incrementally
	v := store.Vector{100, 0}
	id, err := vecs.Append(v)
	require.NoError(t, err)
	idx.Add(id, v)

	// Then: the new vector is the closest hit for its own position
	ids, _ := idx.Search(store.Vector{100, 0}, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, id, ids[0])
}
