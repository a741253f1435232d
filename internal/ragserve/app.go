package app

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserve/internal/ragserve/biz"
	"github.com/kart-io/ragserve/internal/ragserve/handler"
	"github.com/kart-io/ragserve/internal/ragserve/router"
	"github.com/kart-io/ragserve/internal/ragserve/store"
	"github.com/kart-io/ragserve/pkg/app"
	"github.com/kart-io/ragserve/pkg/component/milvus"
	"github.com/kart-io/ragserve/pkg/component/mongodb"
	"github.com/kart-io/ragserve/pkg/component/redis"
	"github.com/kart-io/ragserve/pkg/component/storage"
	"github.com/kart-io/ragserve/pkg/llm"

	// Register LLM providers.
	_ "github.com/kart-io/ragserve/pkg/llm/ollama"
	_ "github.com/kart-io/ragserve/pkg/llm/openai"
)

const (
	appName        = "ragserve"
	appDescription = `ragserve

A retrieval-augmented generation backend.

This server provides:
  - Document upload into GridFS raw storage
  - Asynchronous ingestion jobs: extract, chunk, embed, index
  - Hybrid dense and full-text retrieval over Milvus
  - Question answering with citations and cached answers`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs ragserve with the given options.
func Run(opts *Options) error {
	// 1. Initialize logging.
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("starting ragserve", "version", app.GetVersion(), "environment", opts.Environment)

	// 2. Connect backing stores and register them for health checks.
	storageManager := storage.NewManager()
	defer func() {
		if err := storageManager.CloseAll(); err != nil {
			logger.Errorw("failed to close storage clients", "error", err)
		}
	}()

	mongoClient, err := mongodb.New(opts.MongoDB)
	if err != nil {
		return fmt.Errorf("failed to initialize mongodb: %w", err)
	}
	storageManager.MustRegister("mongodb", mongoClient)
	logger.Info("MongoDB client initialized")

	redisClient, err := redis.New(opts.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	storageManager.MustRegister("redis", redisClient)
	logger.Info("Redis client initialized")

	milvusClient, err := milvus.New(opts.Milvus)
	if err != nil {
		return fmt.Errorf("failed to initialize milvus: %w", err)
	}
	storageManager.MustRegister("milvus", milvusClient)
	logger.Info("Milvus client initialized")

	// 3. Build the store layer.
	documents, err := store.NewGridFSStore(mongoClient)
	if err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}

	index := store.NewMilvusIndex(milvusClient, opts.RAG.Collection, opts.RAG.EmbeddingDim)
	if err := index.EnsureCollection(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure search collection: %w", err)
	}
	logger.Infow("search collection ready", "collection", opts.RAG.Collection)

	// 4. Build the LLM providers.
	embedder, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	chat, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("LLM providers initialized", "embedding", embedder.Name(), "chat", chat.Name())

	// 5. Build the biz layer.
	answerCache := biz.NewAnswerCache(redisClient.Client(), &biz.AnswerCacheConfig{
		Enabled:   opts.Cache.Enabled,
		TTL:       opts.Cache.TTL,
		KeyPrefix: opts.Cache.KeyPrefix,
	})

	manager, err := biz.NewProcessingManager(documents, index, embedder, &biz.ProcessingConfig{
		ChunkSize:          opts.RAG.ChunkSize,
		ChunkOverlap:       opts.RAG.ChunkOverlap,
		MaxDocumentsPerRun: opts.RAG.MaxDocumentsPerRun,
		Workers:            opts.RAG.Workers,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize processing manager: %w", err)
	}
	defer manager.Close()

	engine := biz.NewEngine(index, embedder, chat, answerCache, &biz.EngineConfig{
		SystemPrompt: opts.RAG.SystemPrompt,
	})
	logger.Info("biz layer initialized")

	// 6. Build handlers and routes.
	engineRouter := router.New(opts.HTTP.Mode, &router.Handlers{
		Files:      handler.NewFileHandler(documents),
		Processing: handler.NewProcessingHandler(manager),
		Chat:       handler.NewChatHandler(engine),
		Health:     handler.NewHealthHandler(opts.Environment, storageManager),
	})

	// 7. Serve until interrupted.
	return serveHTTP(opts.HTTP, engineRouter)
}
