package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/store"
)

// retrievePayload is the single-shot retrieve input.
type retrievePayload struct {
	Namespace string       `json:"namespace"`
	Query     store.Vector `json:"query"`
	MaxTokens int          `json:"max_tokens"`
}

func newRetrieveCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Run one retrieval from a JSON payload",
		Long: `Reads a JSON payload from --input or stdin, rebuilds the index by
replaying the vector store, and prints the token-budgeted result as
one JSON line.`,
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

			var req retrievePayload
			if err := json.Unmarshal(data, &req); err != nil {
				return verrors.New(verrors.ErrCodeInvalidInput, "invalid JSON payload", err)
			}
			if len(req.Query) == 0 {
				return verrors.New(verrors.ErrCodeQueryEmpty, "query vector is required", nil)
			}

			stores, closeStores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer closeStores()

			_, eng, err := buildEngine(cfg, stores)
			if err != nil {
				return err
			}

			opts := retrievalOptions(cfg)
			opts.MaxTokens = req.MaxTokens // Normalize applies the default
			opts.Namespace = req.Namespace

			res, err := eng.Retrieve(req.Query, opts)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON payload (reads stdin when empty)")
	return cmd
}
