package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/telo-ai/server/internal/agent/graph"
	"github.com/telo-ai/server/internal/agent/graph/conversations"
	"github.com/telo-ai/server/internal/agent/graph/nodes"
	"github.com/telo-ai/server/internal/agent/graph/thoughts"
	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/agent/model"
	"github.com/telo-ai/server/internal/agent/repo"
	"github.com/telo-ai/server/internal/core"
	"github.com/telo-ai/server/internal/httpapi"
	"github.com/telo-ai/server/internal/ingest"
	"github.com/telo-ai/server/pkg/autorag"
	logx "github.com/telo-ai/server/pkg/logger"
	pkgredis "github.com/telo-ai/server/pkg/redis"
	"github.com/telo-ai/server/pkg/storage"
	"github.com/telo-ai/server/pkg/tracing"
)

// AppConfig defines all configurable parameters of the server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis   pkgredis.Config
	Autorag autorag.Config
	Storage storage.Config
	Tracing tracing.Config
	HTTP    httpapi.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	AgentModel   model.AgentModelConfig
	Loop         model.AgentLoopConfig
	Parser       model.ParserConfig
	Conversation model.ConversationConfig
}

func main() {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{Environment: envCfg.Environment, Level: envCfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(ctx context.Context, envCfg AppConfig) error {
	shutdownTracing, err := tracing.Init(ctx, envCfg.Tracing, envCfg.Environment.String())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logx.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis successfully")

	searcher, err := autorag.New(envCfg.Autorag)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{Searcher: searcher}
	var documents tools.DocumentReader

	// The document bucket is optional; without it documentParse, /api/parser
	// and /api/documents are disabled.
	if envCfg.Storage.Endpoint != "" {
		bucket, err := storage.New(ctx, envCfg.Storage)
		if err != nil {
			return err
		}
		genaiClient, err := nodes.NewGenAIClient(ctx, envCfg.APIKey, envCfg.BaseURL)
		if err != nil {
			return err
		}
		parser := ingest.NewService(
			bucket,
			repo.NewRedisDocumentTextRepository(rdb),
			ingest.NewGeminiExtractor(genaiClient, envCfg.Parser.Model),
			envCfg.Parser,
		)
		documents = parser
		deps.Parser = parser
		deps.Bucket = bucket
	} else {
		logx.Warn().Msg("STORAGE_ENDPOINT is not set; document parsing and listing are disabled")
	}

	registry, err := tools.NewRegistry(ctx, tools.DefaultTools(tools.Deps{
		Searcher:      searcher,
		Documents:     documents,
		PublicBaseURL: envCfg.Storage.PublicBaseURL,
	})...)
	if err != nil {
		return err
	}

	mm := conversations.NewMessagesManager(
		repo.NewRedisSessionRepository(rdb, envCfg.Conversation.SessionTTL),
		envCfg.Conversation,
	)

	// ====================================================
	// Build graph config entirely from env
	runner, err := graph.BuildAgentGraph(ctx, graph.Config{
		APIKey:          envCfg.APIKey,
		BaseURL:         envCfg.BaseURL,
		AgentModel:      envCfg.AgentModel,
		Loop:            envCfg.Loop,
		PublicBucketURL: envCfg.Storage.PublicBaseURL,
		Registry:        registry,
		MessagesManager: mm,
		Thoughts:        thoughts.NewBook(),
	})
	if err != nil {
		return err
	}
	deps.Runner = runner
	deps.Messages = mm

	srv := httpapi.NewServer(envCfg.HTTP, deps).HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logx.Info().
			Str("addr", srv.Addr).
			Strs("tools", registry.Names()).
			Str("model", envCfg.AgentModel.Model).
			Msg("Telo AI server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envCfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
