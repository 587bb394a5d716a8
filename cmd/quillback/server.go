package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/quillback/quillback/internal/answer"
	"github.com/quillback/quillback/internal/api"
	"github.com/quillback/quillback/internal/config"
	"github.com/quillback/quillback/internal/embedjob"
	"github.com/quillback/quillback/internal/engine"
	"github.com/quillback/quillback/internal/journal"
	"github.com/quillback/quillback/internal/retrieval"
	"github.com/quillback/quillback/internal/storage"
	"github.com/quillback/quillback/internal/vectorindex"
)

const embedConcurrency = 4

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quillback server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "quillback version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check model readiness before accepting any work.
	eng := engine.NewClient(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.GenerateModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the pipeline: import -> embed -> retrieve -> answer.
	index := vectorindex.New(cfg.Ollama.EmbedModel)
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	jobs := embedjob.NewManager(embedder, index, embedConcurrency)
	retriever := retrieval.NewRetriever(embedder, index, store)
	answerer := answer.New(retriever, eng, cfg.Ollama.GenerateModel, answer.Options{
		TopK:          cfg.Retrieval.TopK,
		ContextBudget: cfg.Generation.ContextBudget,
		MaxTokens:     cfg.Generation.MaxTokens,
		Timeout:       cfg.GenerationTimeout(),
	})
	importer := journal.NewImporter(store, cfg.Storage.ImportDir)

	// Index is in memory only, so embeddings are rebuilt on boot. Kick off
	// a job for whatever the store already holds.
	if entries, err := store.ListEntries(); err == nil && len(entries) > 0 {
		if jobID, err := jobs.Start(entries); err == nil {
			slog.Info("rebuilding embeddings", "job_id", jobID, "entries", len(entries))
		}
	}

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Importer: importer,
		Jobs:     jobs,
		Searcher: retriever,
		QA:       answerer,
		Vectors:  index,
		Token:    cfg.Server.BearerToken,
		TopK:     cfg.Retrieval.TopK,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Optional MCP server on stdio.
	if cfg.MCP.Enabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Searcher: retriever,
			QA:       answerer,
			Jobs:     jobs,
			TopK:     cfg.Retrieval.TopK,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "quillback listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
