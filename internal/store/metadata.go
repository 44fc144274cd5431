package store

import (
	"encoding/json"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	verrors "github.com/voxide/voxrag/internal/errors"
)

var (
	bucketDocs   = []byte("documents")
	bucketChunks = []byte("chunks")
)

// BoltMetadataStore implements MetadataStore on a single bbolt file.
// Each save commits before returning; bbolt serializes writers, and the
// ingest protocol writes the document before any of its chunks, so no
// cross-key atomicity is needed.
type BoltMetadataStore struct {
	db *bbolt.DB
}

// NewBoltMetadataStore opens (or creates) the metadata database at path.
func NewBoltMetadataStore(path string) (*BoltMetadataStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeMetadataWrite, "open metadata database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocs); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, verrors.New(verrors.ErrCodeMetadataWrite, "create metadata buckets", err)
	}

	return &BoltMetadataStore{db: db}, nil
}

// SaveDocument stores the document as JSON under its string id.
// Re-saving the same id overwrites the previous record.
func (s *BoltMetadataStore) SaveDocument(doc Document) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
	})
	if err != nil {
		return verrors.New(verrors.ErrCodeMetadataWrite, "save document "+doc.ID, err)
	}
	return nil
}

// GetDocument fetches a document by id. Returns ErrDocumentNotFound
// (match with errors.Is) when the id is absent.
func (s *BoltMetadataStore) GetDocument(id string) (*Document, error) {
	var doc Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return verrors.New(verrors.ErrCodeDocumentNotFound, "document not found: "+id, nil)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveChunk stores the chunk as JSON keyed by its decimal vector id.
func (s *BoltMetadataStore) SaveChunk(chunk Chunk) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketChunks).Put([]byte(strconv.FormatUint(chunk.ID, 10)), data)
	})
	if err != nil {
		return verrors.New(verrors.ErrCodeMetadataWrite, "save chunk", err)
	}
	return nil
}

// GetChunk fetches a chunk by vector id. Returns ErrChunkNotFound
// (match with errors.Is) when the id is absent.
func (s *BoltMetadataStore) GetChunk(id uint64) (*Chunk, error) {
	var chunk Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(strconv.FormatUint(id, 10)))
		if data == nil {
			return verrors.Newf(verrors.ErrCodeChunkNotFound, "chunk not found: %d", id)
		}
		return json.Unmarshal(data, &chunk)
	})
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// Close closes the underlying database.
func (s *BoltMetadataStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*BoltMetadataStore)(nil)
