// Command docchat serves chat over uploaded PDFs with conversation memory.
//
// Usage:
//
//	docchat                 run the HTTP API
//	docchat ingest PATH...  index local PDFs into a new session and print its ID
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docchat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/docchat-go/internal/adapters/llm"
	"github.com/0xcro3dile/docchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/docchat-go/internal/adapters/parser"
	"github.com/0xcro3dile/docchat-go/internal/adapters/session"
	"github.com/0xcro3dile/docchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docchat-go/internal/config"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
	"github.com/0xcro3dile/docchat-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/docchat-go/internal/infrastructure/http"
	"github.com/0xcro3dile/docchat-go/internal/infrastructure/logging"
	"github.com/0xcro3dile/docchat-go/internal/infrastructure/telemetry"
)

func main() {
	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.File, cfg.Log.Production)
	defer log.Sync()
	log.Info("config loaded", zap.String("path", cfgPath), zap.String("backend", cfg.Storage.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "ingest" {
		err = runIngest(ctx, cfg, log, os.Args[2:])
	} else {
		err = runServer(ctx, cfg, log)
	}
	if err != nil {
		log.Error("docchat failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// app holds the wired components shared by both commands.
type app struct {
	service  *usecases.ChatService
	registry *session.Registry
	memory   *usecases.ConversationMemory
	parser   *parser.PythonPDFParser
	observer *telemetry.OTelObserver
}

func buildApp(cfg *config.AppConfig, log *zap.Logger) (*app, error) {
	var (
		docs        ports.DocumentIndexStore
		turns       ports.ConversationStore
		storageRoot string
	)
	switch cfg.Storage.Backend {
	case "memory":
		docs = vectordb.NewInMemoryDocumentIndex()
		turns = vectordb.NewInMemoryConversationStore()
	default:
		sqliteDocs, err := vectordb.NewSQLiteDocumentIndex(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("opening document index: %w", err)
		}
		sqliteTurns, err := vectordb.NewSQLiteConversationStore(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("opening conversation store: %w", err)
		}
		docs, turns, storageRoot = sqliteDocs, sqliteTurns, cfg.Storage.Root
	}

	observer, err := telemetry.NewOTelObserver()
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	embedder := embedding.NewGateway(
		embedding.NewOllamaAdapter(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Timeout, log),
		embedding.GatewayConfig{
			MaxRetries:     cfg.Embedding.MaxRetries,
			InitialBackoff: cfg.Embedding.InitialBackoff,
			CacheTTL:       cfg.Embedding.CacheTTL,
		},
		log,
	)
	model := llm.NewOllamaLLMAdapter(cfg.LLM.BaseURL, cfg.LLM.DefaultModel, cfg.LLM.Temperature, cfg.LLM.Timeout, log)
	pdf := parser.NewPythonPDFParser(cfg.PDF.ServiceURL, cfg.PDF.Timeout, log)

	registry := session.NewRegistry()
	index := usecases.NewDocumentIndex(embedder, docs, cfg.Retrieval.EmbedConcurrency, cfg.Retrieval.DocumentK, log)
	memory := usecases.NewConversationMemory(embedder, turns, observer, cfg.Retrieval.MemoryK, log)
	composer := usecases.NewComposer(index, memory, model, registry, usecases.ComposerConfig{
		DocumentK:       cfg.Retrieval.DocumentK,
		MemoryK:         cfg.Retrieval.MemoryK,
		DefaultTemplate: cfg.Prompt.DefaultTemplate,
		StrictTemplates: cfg.Prompt.StrictTemplates,
	}, log)

	service := usecases.NewChatService(
		registry,
		pdf,
		usecases.NewSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		index,
		memory,
		composer,
		usecases.ServiceConfig{
			StorageRoot:     storageRoot,
			RequestTimeout:  cfg.Server.RequestTimeout,
			Models:          cfg.LLM.Models,
			DefaultTemplate: cfg.Prompt.DefaultTemplate,
			StrictTemplates: cfg.Prompt.StrictTemplates,
		},
		log,
	)

	return &app{
		service:  service,
		registry: registry,
		memory:   memory,
		parser:   pdf,
		observer: observer,
	}, nil
}

// startPDFService launches the bundled extraction service when configured
// and not already running. The returned function stops it.
func startPDFService(ctx context.Context, cfg *config.AppConfig, a *app, log *zap.Logger) (func(), error) {
	if cfg.PDF.ScriptDir == "" || a.parser.IsServiceHealthy(ctx) {
		return func() {}, nil
	}
	log.Info("starting PDF service", zap.String("dir", cfg.PDF.ScriptDir))
	return a.parser.StartService(ctx, cfg.PDF.ScriptDir)
}

func runServer(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}

	stopPDF, err := startPDFService(ctx, cfg, a, log)
	if err != nil {
		return err
	}
	defer stopPDF()

	if _, err := a.service.RestoreSessions(ctx); err != nil {
		return err
	}

	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Watch {
		watcher, err := filewatcher.NewFSNotifyWatcher(nil, log)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Stop()

		reconciler := usecases.NewReconciler(watcher, a.registry, a.memory, cfg.Storage.Root, log)
		go func() {
			if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("session reconciler stopped", zap.Error(err))
			}
		}()
	}

	server := httpserver.NewServer(a.service, a.observer, httpserver.Config{
		Addr:            cfg.Server.Addr,
		MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log)
	return server.Start(ctx)
}

func runIngest(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: docchat ingest PATH...")
	}
	if cfg.Storage.Backend != "sqlite" {
		return fmt.Errorf("ingest needs the sqlite backend, got %s", cfg.Storage.Backend)
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	stopPDF, err := startPDFService(ctx, cfg, a, log)
	if err != nil {
		return err
	}
	defer stopPDF()

	uploads, err := loader.NewPDFLoader(cfg.Server.MaxUploadMB<<20).Load(ctx, paths)
	if err != nil {
		return err
	}
	sessionID, err := a.service.Ingest(ctx, uploads)
	if err != nil {
		return err
	}

	log.Info("documents ingested", zap.String("session_id", sessionID), zap.Int("files", len(uploads)))
	fmt.Println(sessionID)
	return nil
}
