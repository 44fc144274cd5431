// Package index provides the in-memory HNSW approximate-nearest-neighbor
// graph over the vector store. The graph stores only ids and adjacency;
// every distance computation fetches vectors from the store, so the graph
// stays small and is cheap to rebuild by replaying the store at startup.
package index

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/voxide/voxrag/internal/store"
)

// HNSW parameters. These are fixed; the graph is rebuilt from vectors on
// every start, so there is no persisted format to keep compatible.
const (
	// MaxLevel caps the level a node can be assigned.
	MaxLevel = 16
	// M is the max connections written per layer above 0.
	M = 16
	// M0 is the max connections written at layer 0.
	M0 = 32
	// EfConstruction is the beam width during insert.
	EfConstruction = 40
	// EfSearch is the beam width during query.
	EfSearch = 50
)

// Node is one graph vertex: its vector-store id, its assigned top level,
// and per-level adjacency. Adjacency holds ids, never pointers, so the
// graph is compact and free of ownership cycles.
type Node struct {
	ID        uint64
	Level     int
	Neighbors [][]uint64 // [level][neighbor ids]
}

// HNSW is the hierarchical proximity graph. Add takes the write lock;
// Search takes the read lock. Vector reads go through the store's own
// lock, so the index lock is never held across a store append.
type HNSW struct {
	mu              sync.RWMutex
	nodes           map[uint64]*Node
	vecs            store.VectorStore // source of truth for vectors
	entryPointID    uint64
	currentMaxLevel int
	rng             *rand.Rand
}

// New creates an empty index reading vectors from vecs.
func New(vecs store.VectorStore) *HNSW {
	return &HNSW{
		nodes:           make(map[uint64]*Node),
		vecs:            vecs,
		currentMaxLevel: -1,
		rng:             rand.New(rand.NewSource(rand.Int63())),
	}
}

// Len returns the number of nodes in the graph.
func (idx *HNSW) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Reset drops all nodes, the entry point, and the max level. The vector
// store is untouched.
func (idx *HNSW) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nodes = make(map[uint64]*Node)
	idx.entryPointID = 0
	idx.currentMaxLevel = -1
}

// Rebuild resets the graph and replays every vector in store order.
// Ordering matches the original ingest order, so a rebuilt graph answers
// the same queries as the one built incrementally.
func (idx *HNSW) Rebuild() error {
	idx.Reset()

	count := idx.vecs.Count()
	for i := uint64(0); i < count; i++ {
		vec, err := idx.vecs.Get(i)
		if err != nil {
			return err
		}
		idx.Add(i, vec)
	}
	return nil
}

// Add inserts the vector's id into the graph.
func (idx *HNSW) Add(id uint64, vector store.Vector) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := idx.randomLevel()
	node := &Node{
		ID:        id,
		Level:     level,
		Neighbors: make([][]uint64, level+1),
	}
	idx.nodes[id] = node

	// First node becomes the entry point.
	if idx.currentMaxLevel == -1 {
		idx.entryPointID = id
		idx.currentMaxLevel = level
		return
	}

	ep := idx.entryPointID

	// Greedy descent through the layers above the node's level.
	for l := idx.currentMaxLevel; l > level; l-- {
		epVec, err := idx.vecs.Get(ep)
		if err != nil {
			continue
		}
		ep, _ = idx.greedyClosest(vector, ep, epVec, l)
	}

	// Beam search and bidirectional linking from min(level, max) down to 0.
	for l := min(level, idx.currentMaxLevel); l >= 0; l-- {
		nearest := idx.searchLayer(vector, ep, EfConstruction, l)

		m := M
		if l == 0 {
			m = M0
		}
		if len(nearest) > m {
			nearest = nearest[:m]
		}

		ids := make([]uint64, len(nearest))
		for i, n := range nearest {
			ids[i] = n.id
		}

		node.Neighbors[l] = ids
		for _, neighborID := range ids {
			neighbor := idx.nodes[neighborID]
			neighbor.Neighbors[l] = append(neighbor.Neighbors[l], id)
		}

		// Best result seeds the next lower layer.
		if len(ids) > 0 {
			ep = ids[0]
		}
	}

	if level > idx.currentMaxLevel {
		idx.entryPointID = id
		idx.currentMaxLevel = level
	}
}

// Search returns up to k nearest ids with their Euclidean distances in
// ascending-distance order.
func (idx *HNSW) Search(query store.Vector, k int) ([]uint64, []float32) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.currentMaxLevel == -1 || k <= 0 {
		return nil, nil
	}

	ep := idx.entryPointID
	for l := idx.currentMaxLevel; l > 0; l-- {
		epVec, err := idx.vecs.Get(ep)
		if err != nil {
			continue
		}
		ep, _ = idx.greedyClosest(query, ep, epVec, l)
	}

	results := idx.searchLayer(query, ep, EfSearch, 0)
	if len(results) > k {
		results = results[:k]
	}

	ids := make([]uint64, len(results))
	dists := make([]float32, len(results))
	for i, r := range results {
		ids[i] = r.id
		dists[i] = r.dist
	}
	return ids, dists
}

// greedyClosest walks a single layer, always moving to the closest
// neighbor, until no neighbor improves on the current node.
func (idx *HNSW) greedyClosest(query store.Vector, entry uint64, entryVec store.Vector, level int) (uint64, float32) {
	curr := entry
	currDist := euclidean(query, entryVec)

	changed := true
	for changed {
		changed = false
		node := idx.nodes[curr]
		for _, neighborID := range node.Neighbors[level] {
			nVec, err := idx.vecs.Get(neighborID)
			if err != nil {
				continue
			}
			if d := euclidean(query, nVec); d < currDist {
				currDist = d
				curr = neighborID
				changed = true
			}
		}
	}
	return curr, currDist
}

type candidate struct {
	id   uint64
	dist float32
}

// searchLayer is the beam search of width ef at a single layer. Sorting
// is stable so equal distances keep discovery order.
func (idx *HNSW) searchLayer(query store.Vector, entry uint64, ef int, level int) []candidate {
	entryVec, err := idx.vecs.Get(entry)
	if err != nil {
		return nil
	}

	visited := map[uint64]bool{entry: true}
	frontier := []candidate{{entry, euclidean(query, entryVec)}}
	results := []candidate{frontier[0]}

	for len(frontier) > 0 {
		c := frontier[0]
		frontier = frontier[1:]

		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			continue
		}

		node := idx.nodes[c.id]
		for _, neighborID := range node.Neighbors[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			nVec, err := idx.vecs.Get(neighborID)
			if err != nil {
				continue
			}
			d := euclidean(query, nVec)

			if len(results) < ef || d < results[len(results)-1].dist {
				cand := candidate{neighborID, d}
				frontier = append(frontier, cand)
				results = append(results, cand)

				sort.SliceStable(results, func(i, j int) bool { return results[i].dist < results[j].dist })
				if len(results) > ef {
					results = results[:ef]
				}
				sort.SliceStable(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
			}
		}
	}

	return results
}

// randomLevel samples a geometric level with retention probability 0.5.
func (idx *HNSW) randomLevel() int {
	lvl := 0
	for idx.rng.Float64() < 0.5 && lvl < MaxLevel {
		lvl++
	}
	return lvl
}

func euclidean(a, b store.Vector) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}
