package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/store"
)

// ingestDocumentPayload is the single-shot ingest_document input.
type ingestDocumentPayload struct {
	Namespace  string       `json:"namespace"`
	FilePath   string       `json:"file_path"`
	Content    string       `json:"content"`
	Vector     store.Vector `json:"vector"`
	TokenCount int          `json:"token_count"`
	StartLine  int          `json:"start_line"`
	EndLine    int          `json:"end_line"`
}

func newIngestCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one document chunk from a JSON payload",
		Long: `Reads a JSON payload from --input or stdin, writes the document and
its chunk, and prints the assigned chunk id as one JSON line.`,
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

			var req ingestDocumentPayload
			if err := json.Unmarshal(data, &req); err != nil {
				return verrors.New(verrors.ErrCodeInvalidInput, "invalid JSON payload", err)
			}
			if req.FilePath == "" {
				return verrors.ValidationError("file_path is required")
			}
			if len(req.Vector) == 0 {
				return verrors.ValidationError("vector is required")
			}

			stores, closeStores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer closeStores()

			docID := fmt.Sprintf("file:%s:%s:%d-%d", req.Namespace, req.FilePath, req.StartLine, req.EndLine)

			doc := store.Document{
				ID:        docID,
				Source:    req.FilePath,
				Timestamp: time.Now(),
				Metadata: store.Metadata{
					"namespace": req.Namespace,
					"file_path": req.FilePath,
					"type":      "code",
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
				StartLine:  req.StartLine,
				EndLine:    req.EndLine,
				TokenCount: req.TokenCount,
			}); err != nil {
				return err
			}

			return printJSON(map[string]any{
				"status": "ok",
				"id":     id,
				"doc_id": docID,
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON payload (reads stdin when empty)")
	return cmd
}
