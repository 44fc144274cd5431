package cmd

import (
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voxide/voxrag/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Opens the stores, rebuilds the in-memory HNSW index by replaying
the vector store, and serves the HTTP/JSON API until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupServerLogging(cfg); err != nil {
		return err
	}

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	start := time.Now()
	idx, eng, err := buildEngine(cfg, stores)
	if err != nil {
		return err
	}
	slog.Info("index rebuilt",
		"vectors", stores.vecs.Count(),
		"nodes", idx.Len(),
		"elapsed", time.Since(start))

	srv := api.NewServer(eng, idx, stores.meta, stores.vecs, retrievalOptions(cfg), slog.Default())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("voxrag serving",
			"addr", cfg.Server.Addr,
			"data", cfg.Store.DataDir,
			"dim", cfg.Store.Dimension)
		if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return srv.Close()
	})

	return g.Wait()
}
