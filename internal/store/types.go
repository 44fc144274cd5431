// Package store provides the persistence layer for voxrag: an append-only
// memory-mapped vector store (vectors.bin) and a bbolt-backed metadata
// store (metadata.db) holding documents and chunks.
package store

import (
	"time"

	verrors "github.com/voxide/voxrag/internal/errors"
)

// Vector represents a high-dimensional float32 embedding. The dimension
// is a process-wide invariant established when the vector store opens.
type Vector []float32

// Metadata stores open key-value attributes for a document. Conventional
// keys: namespace, conversation_id, role, message_id, type, file_path.
type Metadata map[string]any

// Document represents a source item that produced one or more chunks.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`    // e.g. file path, "chat"
	Timestamp time.Time `json:"timestamp"` // used for recency scoring
	Metadata  Metadata  `json:"metadata"`
}

// Namespace returns the document's namespace attribute, if any.
func (d *Document) Namespace() (string, bool) {
	if d == nil || d.Metadata == nil {
		return "", false
	}
	ns, ok := d.Metadata["namespace"].(string)
	return ns, ok
}

// Chunk represents a retrievable unit of content. The chunk's ID is the
// index of its vector in the vector store; both are assigned together
// and never reused.
type Chunk struct {
	ID         uint64 `json:"id"`
	DocID      string `json:"doc_id"`
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TokenCount int    `json:"token_count"`
}

// VectorStore is ordered, append-only persistence of equi-dimensional
// float32 vectors with O(1) random access by id.
type VectorStore interface {
	// Append adds a vector and returns its id (the pre-increment count).
	Append(vector Vector) (uint64, error)

	// Get returns a copy of the vector at id. The returned slice never
	// aliases the mapped region; callers may hold it indefinitely.
	Get(id uint64) (Vector, error)

	// Count returns the number of vectors in the store.
	Count() uint64

	// Close unmaps the view and closes the file.
	Close() error
}

// MetadataStore is a durable key->blob store with two logical keyspaces:
// documents keyed by string id and chunks keyed by vector-store id.
type MetadataStore interface {
	SaveDocument(doc Document) error
	GetDocument(id string) (*Document, error)
	SaveChunk(chunk Chunk) error
	GetChunk(id uint64) (*Chunk, error)
	Close() error
}

// Not-found sentinels. Compare with errors.Is; the concrete errors carry
// the offending id in their message.
var (
	ErrDocumentNotFound = verrors.New(verrors.ErrCodeDocumentNotFound, "document not found", nil)
	ErrChunkNotFound    = verrors.New(verrors.ErrCodeChunkNotFound, "chunk not found", nil)
)
