package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"artelex-backend/config"
	"artelex-backend/connectors"
	"artelex-backend/handlers"
	"artelex-backend/ingest"
	"artelex-backend/llm"
	"artelex-backend/repository"
	"artelex-backend/search"
	"artelex-backend/service"
	"artelex-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize database connection
	db, err := initPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to initialize Postgres:", err)
	}
	defer db.Close()

	// Initialize raw-document archive
	archive, err := storage.NewArchiveFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	}
	log.Println("Archive initialized")

	// Initialize repositories
	sourceRepo := repository.NewSourceRepository(db)
	chunkRepo := repository.NewChunkRepository(db, cfg.EmbeddingDim)

	// Initialize Gemini adapters. Ingestion and queries use different task
	// types, so each side gets its own embedder.
	if cfg.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}
	docEmbedder := llm.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbedMaxChars,
		llm.EmbedderWithTaskType("RETRIEVAL_DOCUMENT"),
		llm.EmbedderWithLogger(logger),
	)
	queryEmbedder := llm.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbedMaxChars,
		llm.EmbedderWithTaskType("RETRIEVAL_QUERY"),
		llm.EmbedderWithLogger(logger),
	)
	generator := llm.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GenerationModel,
		llm.GeneratorWithLogger(logger),
	)

	// Initialize connectors
	fetcher := connectors.NewFetcher(cfg.UserAgent, cfg.FetchDelay, cfg.FetchTimeout)
	orchestrator := ingest.NewOrchestrator(
		ingest.WithSourceStore(sourceRepo),
		ingest.WithDocumentStore(chunkRepo),
		ingest.WithEmbedder(docEmbedder),
		ingest.WithArchiver(archive),
		ingest.WithConnector("boe", connectors.NewBOEConnector(fetcher, logger)),
		ingest.WithConnector("eurlex", connectors.NewEURLexConnector(fetcher, logger)),
		ingest.WithConnector("dgt", connectors.NewDGTConnector(fetcher, logger)),
		ingest.WithRetryPolicy(ingest.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BackoffBase: cfg.BackoffBase,
			BackoffCap:  cfg.BackoffCap,
		}),
		ingest.WithWorkers(cfg.IngestWorkers),
		ingest.WithHeartbeat(cfg.IngestHeartbeat),
		ingest.WithLogger(logger),
	)

	// Initialize search engine
	searchCfg := search.DefaultConfig()
	searchCfg.Kappa = cfg.RRFKappa
	searchCfg.WeightVector = cfg.WeightVector
	searchCfg.WeightLexical = cfg.WeightLexical
	searchCfg.LimitNormativa = cfg.LimitNormativa
	searchCfg.LimitDoctrina = cfg.LimitDoctrina
	searchCfg.LimitJurisprudencia = cfg.LimitJurisprudencia
	engine := search.NewEngine(chunkRepo, queryEmbedder, searchCfg, logger)

	// Initialize services
	ragService := service.NewRAGService(
		service.RAGWithRetriever(engine),
		service.RAGWithGenerator(generator),
		service.RAGWithClassifier(search.NewClassifier()),
	)
	searchService := service.NewSearchService(
		service.SearchWithSearcher(engine),
	)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(ragService, cfg.QueryTimeout)
	searchHandler := handlers.NewSearchHandler(searchService, cfg.QueryTimeout)
	sourceHandler := handlers.NewSourceHandler(sourceRepo, chunkRepo, orchestrator, logger)

	// Setup Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		api.POST("/chat", chatHandler.Chat)
		api.POST("/search", searchHandler.Search)

		api.GET("/sources", sourceHandler.ListSources)
		api.GET("/documents/:official_id", sourceHandler.GetDocument)

		// Admin endpoints
		api.POST("/admin/ingest", sourceHandler.IngestByPriority)
		api.POST("/admin/ingest/:official_id", sourceHandler.IngestSource)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initPostgres(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	// Enable pgvector extension
	ctx := context.Background()
	_, err = pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		log.Printf("Warning: Failed to create pgvector extension: %v", err)
		log.Println("This may be normal if extension is already installed or requires superuser privileges")
	} else {
		log.Println("pgvector extension enabled")
	}

	log.Println("Postgres connection established with pgvector support")
	return pool, nil
}
