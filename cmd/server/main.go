package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/api"
	"github.com/transitassist/chatbot/internal/auth"
	"github.com/transitassist/chatbot/internal/config"
	"github.com/transitassist/chatbot/internal/core"
	"github.com/transitassist/chatbot/internal/index"
	"github.com/transitassist/chatbot/internal/logging"
	"github.com/transitassist/chatbot/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ingestFlag := flag.Bool("ingest", false, "Build the vector index from the data file and exit")
	dataFile := flag.String("data", "data.md", "Knowledge file used with -ingest")
	flag.Parse()

	ctx := context.Background()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.MaxConcurrentGenerations, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	// The index is built offline by -ingest and read-only afterwards.
	knowledgeIndex, err := index.Open(cfg.IndexPath, cfg.IndexColl, llmService.Embed, logger)
	if err != nil {
		logger.Fatal("failed to open vector index", zap.Error(err))
	}

	if *ingestFlag {
		count, err := ingest(ctx, knowledgeIndex, *dataFile)
		if err != nil {
			logger.Fatal("data ingestion failed", zap.Error(err))
		}
		logger.Info("data ingestion complete", zap.Int("documents", count))
		return
	}

	if knowledgeIndex.Count() == 0 {
		logger.Warn("vector index is empty; run with -ingest to build it")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret)
	retriever := core.NewRetriever(knowledgeIndex, logger)
	answerer := core.NewAnswerer(llmService, logger)
	chatService := core.NewChatService(dbStore, retriever, answerer, tokens, logger)

	apiHandler := api.NewAPIHandler(chatService, logger)
	router := api.NewRouter(apiHandler, tokens, cfg.StaticDir, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

// ingest splits the knowledge file into blank-line-separated passages,
// embeds them and replaces them into the index.
func ingest(ctx context.Context, ix *index.Index, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open data file %s: %w", path, err)
	}
	defer f.Close()

	var docs []index.Document
	var passage strings.Builder

	flush := func() {
		content := strings.TrimSpace(passage.String())
		passage.Reset()
		if content == "" {
			return
		}
		docs = append(docs, index.Document{
			ID:      fmt.Sprintf("doc-%d", len(docs)),
			Content: content,
		})
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		passage.WriteString(line)
		passage.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read data file: %w", err)
	}
	flush()

	if len(docs) == 0 {
		return 0, fmt.Errorf("no passages found in %s", path)
	}

	// Re-ingestion replaces the collection rather than layering on top.
	if err := ix.Reset(); err != nil {
		return 0, err
	}
	if err := ix.Add(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
