// Package search implements the retrieval engine: ANN candidate
// gathering, metadata lookup, namespace filtering, combined
// similarity+recency scoring, and token-budget packing.
package search

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voxide/voxrag/internal/index"
	"github.com/voxide/voxrag/internal/store"
)

// ScoredChunk is one retrieval hit. Similarity carries the combined
// final score (the value results are ordered by); Recency is the raw
// recency component.
type ScoredChunk struct {
	Chunk      store.Chunk `json:"chunk"`
	Similarity float32     `json:"similarity"`
	Recency    float32     `json:"recency"`
}

// Result is a token-budgeted retrieval result.
type Result struct {
	Chunks      []ScoredChunk `json:"chunks"`
	TotalTokens int           `json:"total_tokens"`
	Truncated   bool          `json:"truncated"`
}

// Engine combines the ANN index with the two stores. Safe for
// concurrent use; the index and stores carry their own locks and the
// engine never holds one lock while taking another store's writer lock.
type Engine struct {
	index    *index.HNSW
	vectors  store.VectorStore
	metadata store.MetadataStore
	docCache *lru.Cache[string, *store.Document]
	logger   *slog.Logger
}

// NewEngine wires the engine. docCacheSize bounds the LRU cache of
// documents so candidates from the same document hit bbolt once.
func NewEngine(idx *index.HNSW, vecs store.VectorStore, meta store.MetadataStore, docCacheSize int, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *store.Document](docCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		index:    idx,
		vectors:  vecs,
		metadata: meta,
		docCache: cache,
		logger:   logger,
	}, nil
}

// InvalidateDocument drops a document from the cache. Ingest paths call
// this after overwriting a document record so retrieval never scores
// against a stale timestamp or namespace.
func (e *Engine) InvalidateDocument(id string) {
	e.docCache.Remove(id)
}

// getDocument reads through the LRU cache. Not-found results are not
// cached; a missing document is either transient (mid-ingest) or a
// per-candidate skip.
func (e *Engine) getDocument(id string) (*store.Document, error) {
	if doc, ok := e.docCache.Get(id); ok {
		return doc, nil
	}
	doc, err := e.metadata.GetDocument(id)
	if err != nil {
		return nil, err
	}
	e.docCache.Add(id, doc)
	return doc, nil
}

// Retrieve runs the full retrieval procedure. Per-candidate misses are
// skipped, never failing the whole request. Given identical stored
// state the result is deterministic: ties on the final score are broken
// by chunk id ascending.
func (e *Engine) Retrieve(query store.Vector, opts Options) (*Result, error) {
	opts = opts.Normalize()
	start := time.Now()

	ids, dists := e.index.Search(query, opts.TopKCandidates)

	candidates := make([]ScoredChunk, 0, len(ids))
	for i, id := range ids {
		chunk, err := e.metadata.GetChunk(id)
		if err != nil {
			if !errors.Is(err, store.ErrChunkNotFound) {
				e.logger.Warn("chunk fetch failed", "chunk_id", id, "error", err)
			}
			continue
		}

		doc, docErr := e.getDocument(chunk.DocID)
		if opts.Namespace != "" {
			if docErr != nil {
				continue
			}
			ns, ok := doc.Namespace()
			if !ok || ns != opts.Namespace {
				continue
			}
		}

		simScore := float32(1.0 / (1.0 + float64(dists[i])))
		recencyScore := float32(0.5) // fallback when the document is absent
		if docErr == nil {
			recencyScore = recency(doc.Timestamp)
		}

		finalScore := simScore*opts.SimilarityWeight + recencyScore*opts.RecencyWeight

		candidates = append(candidates, ScoredChunk{
			Chunk:      *chunk,
			Similarity: finalScore,
			Recency:    recencyScore,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})

	result := &Result{
		Chunks: []ScoredChunk{},
	}

	// Greedy packing: a skipped candidate does not stop the scan, a
	// later smaller chunk may still fit.
	for _, cand := range candidates {
		if result.TotalTokens+cand.Chunk.TokenCount > opts.MaxTokens {
			result.Truncated = true
			continue
		}
		result.Chunks = append(result.Chunks, cand)
		result.TotalTokens += cand.Chunk.TokenCount
	}

	e.logger.Debug("retrieve",
		"candidates", len(ids),
		"admitted", len(result.Chunks),
		"total_tokens", result.TotalTokens,
		"truncated", result.Truncated,
		"namespace", opts.Namespace,
		"elapsed", time.Since(start))

	return result, nil
}

// recency decays smoothly with age: 1 at now, 0.5 at 24h, ~0.33 at 48h.
func recency(t time.Time) float32 {
	hours := time.Since(t).Hours()
	return float32(1.0 / (1.0 + hours/24.0))
}
