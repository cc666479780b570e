package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"artelex-backend/config"
	"artelex-backend/connectors"
	"artelex-backend/ingest"
	"artelex-backend/llm"
	"artelex-backend/models"
	"artelex-backend/repository"
	"artelex-backend/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	officialID := flag.String("official-id", "", "ingest a single source by official identifier")
	priority := flag.String("priority", "", "ingest all pending sources at this priority (P1, P2, P3)")
	reclaim := flag.Bool("reclaim", false, "only reclaim stale ingesting claims, then exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	sourceRepo := repository.NewSourceRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool, cfg.EmbeddingDim)

	// Interrupts cancel the context; the orchestrator releases claimed
	// sources back to pending on cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *reclaim {
		n, err := sourceRepo.ReclaimStale(ctx, cfg.IngestHeartbeat)
		if err != nil {
			log.Fatalf("Failed to reclaim stale claims: %v", err)
		}
		log.Printf("✓ Reclaimed %d stale claims", n)
		return
	}

	archive, err := storage.NewArchiveFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	}

	embedder := llm.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbedMaxChars,
		llm.EmbedderWithTaskType("RETRIEVAL_DOCUMENT"),
		llm.EmbedderWithLogger(logger),
	)

	fetcher := connectors.NewFetcher(cfg.UserAgent, cfg.FetchDelay, cfg.FetchTimeout)
	orchestrator := ingest.NewOrchestrator(
		ingest.WithSourceStore(sourceRepo),
		ingest.WithDocumentStore(chunkRepo),
		ingest.WithEmbedder(embedder),
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

	switch {
	case *officialID != "":
		err := orchestrator.IngestSource(ctx, *officialID)
		switch {
		case err == nil:
			log.Printf("✓ Ingested %s", *officialID)
		case errors.Is(err, ingest.ErrAlreadyIngesting):
			log.Fatalf("Source %s is already being ingested", *officialID)
		default:
			log.Fatalf("Failed to ingest %s: %v", *officialID, err)
		}

	case *priority != "":
		p, err := models.ParsePriority(*priority)
		if err != nil {
			log.Fatalf("Invalid priority: %v", err)
		}
		if err := orchestrator.IngestAllByPriority(ctx, p); err != nil {
			log.Fatalf("Batch ingestion failed: %v", err)
		}
		log.Printf("✓ Batch ingestion at %s finished", p)

	default:
		log.Fatal("Either -official-id or -priority is required")
	}
}
