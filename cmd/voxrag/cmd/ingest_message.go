package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/store"
)

// ingestMessagePayload is the single-shot ingest_message input.
type ingestMessagePayload struct {
	Namespace      string       `json:"namespace"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id,omitempty"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Vector         store.Vector `json:"vector"`
	TokenCount     int          `json:"token_count"`
	TimestampUTC   string       `json:"timestamp_utc,omitempty"`
	Source         string       `json:"source,omitempty"`
}

func newIngestMessageCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "ingest-message",
		Short: "Ingest one chat message from a JSON payload",
		Long: `Reads a JSON payload from --input or stdin and ingests exactly one
document plus one chunk, keyed chat:{conversation_id}:{message_id}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setupCLILogging(cfg); err != nil {
				return err
			}

			data, err := readPayload(input)
			if err != nil {
				return err
			}

			var req ingestMessagePayload
			if err := json.Unmarshal(data, &req); err != nil {
				return verrors.New(verrors.ErrCodeInvalidInput, "invalid JSON payload", err)
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
				msgID = fmt.Sprintf("msg-%d", time.Now().UTC().UnixNano())
			}
			docID := fmt.Sprintf("chat:%s:%s", req.ConversationID, msgID)

			stores, closeStores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer closeStores()

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
			if err := stores.meta.SaveDocument(doc); err != nil {
				return err
			}

			id, err := stores.vecs.Append(req.Vector)
			if err != nil {
				return err
			}
			if err := stores.meta.SaveChunk(store.Chunk{
				ID:         id,
				DocID:      docID,
				Content:    req.Content,
				TokenCount: req.TokenCount,
			}); err != nil {
				return err
			}

			return printJSON(map[string]any{
				"status":     "ok",
				"id":         id,
				"doc_id":     docID,
				"message_id": msgID,
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON payload (reads stdin when empty)")
	return cmd
}
