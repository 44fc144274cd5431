package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/store"
)

// IngestChunk is the wire shape of one chunk in an ingest request. The
// vector travels here; it is stored in the vector store, not in the
// chunk record.
type IngestChunk struct {
	DocID      string       `json:"doc_id"`
	Vector     store.Vector `json:"vector"`
	Content    string       `json:"content"`
	StartLine  int          `json:"start_line"`
	EndLine    int          `json:"end_line"`
	TokenCount int          `json:"token_count"`
}

// IngestRequest ingests one document and its chunks. A top-level
// namespace, if set, is merged into document metadata unless already
// present.
type IngestRequest struct {
	Namespace string         `json:"namespace,omitempty"`
	Document  store.Document `json:"document"`
	Chunks    []IngestChunk  `json:"chunks"`
}

// IngestMessageRequest is the chat convenience endpoint: exactly one
// document plus one chunk per message.
//
// Recommended IDs:
//   - namespace: stable project/workspace id
//   - conversation_id: stable chat/thread id
type IngestMessageRequest struct {
	Namespace      string       `json:"namespace"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id,omitempty"` // generated when empty
	Role           string       `json:"role"`                 // "user" | "assistant" | "system"
	Content        string       `json:"content"`
	Vector         store.Vector `json:"vector"`
	TokenCount     int          `json:"token_count"`
	TimestampUTC   string       `json:"timestamp_utc,omitempty"` // RFC3339; now when empty
	Source         string       `json:"source,omitempty"`        // default "chat"
}

// RetrieveRequest asks for a token-budgeted top-k result.
type RetrieveRequest struct {
	Namespace string       `json:"namespace,omitempty"`
	Query     store.Vector `json:"query"`
	MaxTokens int          `json:"max_tokens"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Document.ID == "" {
		return verrors.ValidationError("document.id is required")
	}

	// Merge the top-level namespace into document metadata.
	if req.Namespace != "" {
		if req.Document.Metadata == nil {
			req.Document.Metadata = store.Metadata{}
		}
		if _, exists := req.Document.Metadata["namespace"]; !exists {
			req.Document.Metadata["namespace"] = req.Namespace
		}
	}

	s.logger.Info("ingest",
		"doc_id", req.Document.ID,
		"source", req.Document.Source,
		"chunks", len(req.Chunks),
		"namespace", req.Document.Metadata["namespace"])

	// The document is durable before any of its chunks.
	if err := s.meta.SaveDocument(req.Document); err != nil {
		s.logger.Error("ingest: save document failed", "doc_id", req.Document.ID, "error", err)
		return err
	}
	s.engine.InvalidateDocument(req.Document.ID)

	chunkIDs := make([]uint64, 0, len(req.Chunks))
	for _, ic := range req.Chunks {
		id, err := s.ingestChunk(ic)
		if err != nil {
			// Best effort: earlier chunks stay persisted, no rollback.
			s.logger.Error("ingest: chunk failed", "doc_id", ic.DocID, "error", err)
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}

	s.logger.Info("ingest ok",
		"doc_id", req.Document.ID,
		"ingested", len(chunkIDs),
		"vec_count", s.vecs.Count())

	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ingested",
		"doc_id":       req.Document.ID,
		"chunk_ids":    chunkIDs,
		"vector_count": s.vecs.Count(),
	})
}

// ingestChunk appends the vector, persists the chunk record, then makes
// the id searchable. The index add comes last: a concurrent retrieval
// sees either both persisted rows or neither, and must tolerate a fresh
// vector being invisible for one search round.
func (s *Server) ingestChunk(ic IngestChunk) (uint64, error) {
	id, err := s.vecs.Append(ic.Vector)
	if err != nil {
		return 0, err
	}

	chunk := store.Chunk{
		ID:         id,
		DocID:      ic.DocID,
		Content:    ic.Content,
		StartLine:  ic.StartLine,
		EndLine:    ic.EndLine,
		TokenCount: ic.TokenCount,
	}
	if err := s.meta.SaveChunk(chunk); err != nil {
		return 0, err
	}

	s.index.Add(id, ic.Vector)
	return id, nil
}

func (s *Server) handleIngestMessage(c echo.Context) error {
	var req IngestMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Namespace == "" {
		return verrors.ValidationError("namespace is required")
	}
	if req.ConversationID == "" {
		return verrors.ValidationError("conversation_id is required")
	}
	if req.Role == "" {
		return verrors.ValidationError("role is required")
	}
	if req.Content == "" {
		return verrors.ValidationError("content is required")
	}
	if len(req.Vector) == 0 {
		return verrors.ValidationError("vector is required")
	}

	ts := time.Now().UTC()
	if req.TimestampUTC != "" {
		parsed, err := time.Parse(time.RFC3339, req.TimestampUTC)
		if err != nil {
			return verrors.ValidationError("timestamp_utc must be RFC3339")
		}
		ts = parsed.UTC()
	}

	source := req.Source
	if source == "" {
		source = "chat"
	}

	msgID := req.MessageID
	if msgID == "" {
		// Time-based id; callers wanting retry-stable doc ids supply
		// their own message_id.
		msgID = fmt.Sprintf("msg-%d", time.Now().UTC().UnixNano())
	}

	// One message == one document + one chunk. The doc id is stable
	// across retries when message_id is stable.
	docID := fmt.Sprintf("chat:%s:%s", req.ConversationID, msgID)

	doc := store.Document{
		ID:        docID,
		Source:    source,
		Timestamp: ts,
		Metadata: store.Metadata{
			"namespace":       req.Namespace,
			"conversation_id": req.ConversationID,
			"message_id":      msgID,
			"role":            req.Role,
			"type":            "chat_message",
		},
	}

	s.logger.Info("ingest_message",
		"namespace", req.Namespace,
		"conversation_id", req.ConversationID,
		"message_id", msgID,
		"role", req.Role)

	if err := s.meta.SaveDocument(doc); err != nil {
		s.logger.Error("ingest_message: save document failed", "doc_id", doc.ID, "error", err)
		return err
	}
	s.engine.InvalidateDocument(doc.ID)

	chunkID, err := s.ingestChunk(IngestChunk{
		DocID:      doc.ID,
		Vector:     req.Vector,
		Content:    req.Content,
		TokenCount: req.TokenCount,
	})
	if err != nil {
		s.logger.Error("ingest_message: chunk failed", "doc_id", doc.ID, "error", err)
		return err
	}

	s.logger.Info("ingest_message ok", "doc_id", doc.ID, "chunk_id", chunkID, "vec_count", s.vecs.Count())

	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ingested_message",
		"doc_id":          doc.ID,
		"chunk_id":        chunkID,
		"vector_count":    s.vecs.Count(),
		"message_id":      msgID,
		"conversation_id": req.ConversationID,
		"namespace":       req.Namespace,
	})
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if len(req.Query) == 0 {
		return verrors.New(verrors.ErrCodeQueryEmpty, "query vector is required", nil)
	}

	opts := s.opts
	opts.MaxTokens = req.MaxTokens // Normalize applies the 2000 default
	opts.Namespace = req.Namespace

	res, err := s.engine.Retrieve(req.Query, opts)
	if err != nil {
		s.logger.Error("retrieve failed", "error", err)
		return verrors.New(verrors.ErrCodeInternal, "retrieval failed", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"chunks":       res.Chunks,
		"total_tokens": res.TotalTokens,
		"truncated":    res.Truncated,
	})
}
