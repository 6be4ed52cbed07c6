// Command datasetd serves the dataset query and enrichment HTTP API,
// wiring config, the Postgres-backed engine, the signal registry, and
// graceful shutdown together the way the teacher's cmd/api/main.go does.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rowlake/dataset/internal/api"
	"github.com/rowlake/dataset/internal/config"
	"github.com/rowlake/dataset/internal/embedding"
	"github.com/rowlake/dataset/internal/engine"
	sig "github.com/rowlake/dataset/internal/signal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	eng, err := engine.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer eng.Close()
	logger.Info("connected to database")

	registry := sig.NewRegistry()
	registry.Register("length", sig.NewLengthSignal)

	embedder, err := embedding.NewClient(cfg.Bedrock)
	if err != nil {
		logger.Warn("bedrock client init failed, embedding signals disabled", slog.String("error", err.Error()))
	} else {
		registry.Register("bedrock_embedding", bedrockEmbeddingFactory(embedder, cfg.Bedrock.ModelID))
		registry.Register("concept_score", conceptScoreFactory())
		logger.Info("embedding signals enabled", slog.String("model", cfg.Bedrock.ModelID))
	}

	router := api.NewRouter(logger, &api.RouterDeps{
		Pool:      eng.Pool(),
		Rows:      eng,
		RootDir:   cfg.Dataset.RootDir,
		Threshold: cfg.Dataset.TooManyDistinctThreshold,
		Signals:   registry,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting dataset server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// bedrockEmbeddingFactory adapts BedrockEmbeddingSignal's constructor to the
// Registry's Factory shape; params are unused since the model is fixed at
// startup from BedrockConfig rather than per-column.
func bedrockEmbeddingFactory(embedder sig.Embedder, modelID string) sig.Factory {
	return func(map[string]any) (sig.Signal, error) {
		return sig.NewBedrockEmbeddingSignal(embedder, modelID), nil
	}
}

// conceptScoreFactory resolves a ConceptScoreSignal from its persisted
// params: {"concept_name": string, "vector": [float, ...]}.
func conceptScoreFactory() sig.Factory {
	return func(params map[string]any) (sig.Signal, error) {
		name, _ := params["concept_name"].(string)
		raw, _ := params["vector"].([]any)
		vector := make([]float32, len(raw))
		for i, v := range raw {
			f, _ := v.(float64)
			vector[i] = float32(f)
		}
		return sig.NewConceptScoreSignal(name, vector), nil
	}
}
