package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxide/voxrag/internal/config"
	"github.com/voxide/voxrag/internal/index"
	"github.com/voxide/voxrag/internal/search"
	"github.com/voxide/voxrag/internal/store"
)

// openedStores bundles the persistent stores and the data-dir lock.
type openedStores struct {
	lock *store.DirLock
	vecs *store.MmapVectorStore
	meta *store.BoltMetadataStore
}

// openStores creates the data directory if needed, takes the writer
// lock, and opens both stores. Callers must defer close().
func openStores(cfg *config.Config) (*openedStores, func(), error) {
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	lock, err := store.AcquireDirLock(cfg.Store.DataDir)
	if err != nil {
		return nil, nil, err
	}

	vecs, err := store.NewMmapVectorStore(filepath.Join(cfg.Store.DataDir, "vectors.bin"), cfg.Store.Dimension)
	if err != nil {
		_ = lock.Release()
		return nil, nil, err
	}

	meta, err := store.NewBoltMetadataStore(filepath.Join(cfg.Store.DataDir, "metadata.db"))
	if err != nil {
		_ = vecs.Close()
		_ = lock.Release()
		return nil, nil, err
	}

	s := &openedStores{lock: lock, vecs: vecs, meta: meta}
	cleanup := func() {
		if err := s.meta.Close(); err != nil {
			slog.Warn("metadata store close failed", "error", err)
		}
		if err := s.vecs.Close(); err != nil {
			slog.Warn("vector store close failed", "error", err)
		}
		_ = s.lock.Release()
	}
	return s, cleanup, nil
}

// buildEngine replays the vector store into a fresh index and wires the
// retrieval engine around it.
func buildEngine(cfg *config.Config, s *openedStores) (*index.HNSW, *search.Engine, error) {
	idx := index.New(s.vecs)
	if err := idx.Rebuild(); err != nil {
		return nil, nil, fmt.Errorf("index rebuild: %w", err)
	}

	eng, err := search.NewEngine(idx, s.vecs, s.meta, cfg.Retrieval.DocCacheSize, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return idx, eng, nil
}

// retrievalOptions maps config onto engine options.
func retrievalOptions(cfg *config.Config) search.Options {
	return search.Options{
		MaxTokens:        cfg.Retrieval.MaxTokens,
		TopKCandidates:   cfg.Retrieval.TopKCandidates,
		SimilarityWeight: cfg.Retrieval.SimilarityWeight,
		RecencyWeight:    cfg.Retrieval.RecencyWeight,
	}
}

// readPayload returns the JSON payload for a single-shot command: the
// --input value when set, otherwise everything on stdin.
func readPayload(input string) ([]byte, error) {
	if input != "" {
		return []byte(input), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no input: pass --input or pipe JSON on stdin")
	}
	return data, nil
}

// printJSON writes one JSON line to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}
