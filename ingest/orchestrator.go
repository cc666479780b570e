package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"artelex-backend/connectors"
	"artelex-backend/llm"
	"artelex-backend/models"
)

var (
	// ErrAlreadyIngesting is returned when a source is locked by another
	// worker.
	ErrAlreadyIngesting = errors.New("source is already being ingested")

	// ErrNoConnector is returned when no connector matches a source.
	ErrNoConnector = errors.New("no connector for source")
)

// SourceStore is the catalog surface the orchestrator drives. The state
// machine lives in the store; the orchestrator is the only component that
// triggers transitions. MarkIngested and MarkFailed apply only while the
// claim is held (state ingesting), so a stalled worker whose claim was
// reclaimed cannot overwrite a newer worker's result.
type SourceStore interface {
	GetByOfficialID(ctx context.Context, officialID string) (*models.CorpusSource, error)
	Claim(ctx context.Context, officialID string) (bool, error)
	Release(ctx context.Context, officialID string) error
	MarkIngested(ctx context.Context, officialID string) error
	MarkFailed(ctx context.Context, officialID, cause string) error
	ListPending(ctx context.Context, priority models.Priority) ([]string, error)
	ReclaimStale(ctx context.Context, heartbeat time.Duration) (int64, error)
}

// DocumentStore persists the normalised document and its chunks.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, sourceID int64, doc *models.LegalDocument, chunks []models.DocumentChunk) error
	DeleteDocument(ctx context.Context, sourceID int64) error
}

// Archiver stores raw fetched bodies. Optional; archive failures never
// fail an ingestion.
type Archiver interface {
	Put(ctx context.Context, officialID string, body []byte) (string, error)
}

// RetryPolicy bounds per-source retries of transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Orchestrator drives one corpus source at a time through the pipeline:
// fetch, parse+normalise, embed, atomic upsert, state transition.
type Orchestrator struct {
	sources    SourceStore
	store      DocumentStore
	embedder   llm.Embedder
	archive    Archiver
	connectors map[string]connectors.Connector
	policy     RetryPolicy
	workers    int
	heartbeat  time.Duration
	logger     *slog.Logger
	batchSize  int
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithSourceStore sets the catalog store.
func WithSourceStore(s SourceStore) Option {
	return func(o *Orchestrator) { o.sources = s }
}

// WithDocumentStore sets the chunk store.
func WithDocumentStore(s DocumentStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithEmbedder sets the embedding adapter.
func WithEmbedder(e llm.Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

// WithArchiver sets the raw-document archive.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithConnector registers a connector under a document kind (boe, eurlex,
// dgt).
func WithConnector(kind string, c connectors.Connector) Option {
	return func(o *Orchestrator) { o.connectors[kind] = c }
}

// WithRetryPolicy sets retry counts and delays.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithWorkers sets the batch worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithHeartbeat sets the stale-claim reclaim threshold.
func WithHeartbeat(d time.Duration) Option {
	return func(o *Orchestrator) { o.heartbeat = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		connectors: make(map[string]connectors.Connector),
		policy: RetryPolicy{
			MaxAttempts: 3,
			BackoffBase: 60 * time.Second,
			BackoffCap:  10 * time.Minute,
		},
		workers:   4,
		heartbeat: 10 * time.Minute,
		logger:    slog.Default(),
		batchSize: 16,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// connectorFor routes a source to its connector by document kind, falling
// back to the URL host.
func (o *Orchestrator) connectorFor(src *models.CorpusSource) (connectors.Connector, error) {
	if c, ok := o.connectors[src.DocumentKind]; ok {
		return c, nil
	}
	switch {
	case strings.Contains(src.SourceURL, "boe.es"):
		if c, ok := o.connectors["boe"]; ok {
			return c, nil
		}
	case strings.Contains(src.SourceURL, "europa.eu"):
		if c, ok := o.connectors["eurlex"]; ok {
			return c, nil
		}
	case strings.Contains(src.SourceURL, "tributos") || strings.Contains(src.SourceURL, "hacienda"):
		if c, ok := o.connectors["dgt"]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: kind=%q url=%q", ErrNoConnector, src.DocumentKind, src.SourceURL)
}

// permanent reports whether an error can never succeed on retry.
func permanent(err error) bool {
	var fe *connectors.FetchError
	if errors.As(err, &fe) {
		return fe.Permanent()
	}
	return errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, connectors.ErrParse) ||
		errors.Is(err, llm.ErrBadDimension) ||
		errors.Is(err, ErrNoConnector)
}

// IngestSource drives one source through the state machine. Transient
// failures release the source back to pending and retry after a delay, up
// to the policy's attempt cap; permanent failures and exhausted retries
// mark it failed. Cancellation leaves the source in pending.
func (o *Orchestrator) IngestSource(ctx context.Context, officialID string) error {
	src, err := o.sources.GetByOfficialID(ctx, officialID)
	if err != nil {
		return err
	}

	backoff := o.policy.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		claimed, err := o.sources.Claim(ctx, officialID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyIngesting
		}

		err = o.runPipeline(ctx, src)
		if err == nil {
			if err := o.sources.MarkIngested(ctx, officialID); err != nil {
				return err
			}
			o.logger.Info("source ingested",
				"component", "ingest", "source_id", src.ID,
				"official_id", officialID, "event", "ingested", "attempt", attempt)
			return nil
		}

		// Cancellation must not leave the source locked. Release uses a
		// fresh context because ctx is already done.
		if ctx.Err() != nil {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if relErr := o.sources.Release(releaseCtx, officialID); relErr != nil {
				o.logger.Error("failed to release cancelled source",
					"component", "ingest", "official_id", officialID, "error", relErr)
			}
			return ctx.Err()
		}

		if permanent(err) {
			o.failSource(ctx, src, err)
			return err
		}

		lastErr = err
		if attempt < o.policy.MaxAttempts {
			o.logger.Warn("transient failure, will retry",
				"component", "ingest", "source_id", src.ID, "official_id", officialID,
				"event", "retry_scheduled", "attempt", attempt, "delay", backoff, "error", err)
			if relErr := o.sources.Release(ctx, officialID); relErr != nil {
				return relErr
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > o.policy.BackoffCap {
				backoff = o.policy.BackoffCap
			}
		}
	}

	o.failSource(ctx, src, lastErr)
	return lastErr
}

// failSource transitions a source to failed. A failed source must not keep
// content in the corpus, so any document from an earlier successful
// ingestion is removed first.
func (o *Orchestrator) failSource(ctx context.Context, src *models.CorpusSource, cause error) {
	if err := o.store.DeleteDocument(ctx, src.ID); err != nil {
		o.logger.Error("failed to delete document for failed source",
			"component", "ingest", "official_id", src.OfficialID, "error", err)
	}
	if err := o.sources.MarkFailed(ctx, src.OfficialID, cause.Error()); err != nil {
		o.logger.Error("failed to mark source failed",
			"component", "ingest", "official_id", src.OfficialID, "error", err)
	}
	o.logger.Error("source failed",
		"component", "ingest", "official_id", src.OfficialID, "event", "failed", "error", cause)
}

// runPipeline executes the sequential per-source stages. The source must
// already be claimed; state transitions are the caller's responsibility.
func (o *Orchestrator) runPipeline(ctx context.Context, src *models.CorpusSource) error {
	// Stage 1: fetch + parse.
	conn, err := o.connectorFor(src)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := conn.Fetch(ctx, connectors.FetchRequest{URL: src.SourceURL, OfficialID: src.OfficialID})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	o.logger.Info("fetched source",
		"component", "ingest", "source_id", src.ID, "stage", "fetch",
		"event", "fetched", "bytes", len(result.RawHTML),
		"duration_ms", time.Since(start).Milliseconds())

	if o.archive != nil {
		if _, err := o.archive.Put(ctx, src.OfficialID, result.RawHTML); err != nil {
			o.logger.Warn("failed to archive raw document",
				"component", "ingest", "source_id", src.ID, "stage", "fetch", "error", err)
		}
	}

	// Stage 2: normalise.
	start = time.Now()
	doc, err := Normalise(src, result)
	if err != nil {
		return fmt.Errorf("normalise: %w", err)
	}
	o.logger.Info("normalised source",
		"component", "ingest", "source_id", src.ID, "stage", "normalise",
		"event", "normalised", "chunks", len(doc.Chunks),
		"duration_ms", time.Since(start).Milliseconds())

	// Stage 3: embed, batched, preserving chunk order.
	start = time.Now()
	if err := o.embedChunks(ctx, doc.Chunks); err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	o.logger.Info("embedded chunks",
		"component", "ingest", "source_id", src.ID, "stage", "embed",
		"event", "embedded", "chunks", len(doc.Chunks),
		"duration_ms", time.Since(start).Milliseconds())

	// Stage 4: atomic upsert.
	start = time.Now()
	legalDoc := &models.LegalDocument{
		Title:      doc.Title,
		OfficialID: doc.OfficialID,
		URL:        doc.URL,
		Metadata:   doc.Meta,
	}
	if err := o.store.UpsertDocument(ctx, src.ID, legalDoc, doc.Chunks); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	o.logger.Info("stored document",
		"component", "ingest", "source_id", src.ID, "doc_id", legalDoc.ID,
		"stage", "store", "event", "stored",
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// embedChunks fills chunk embeddings in place, batching requests.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	for start := 0; start < len(chunks); start += o.batchSize {
		end := start + o.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Label+"\n"+c.Text)
		}
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// IngestAllByPriority reclaims stale claims, then schedules every pending
// source at the given priority across the worker pool. Ordering across
// sources is not guaranteed; per-source stages remain sequential.
func (o *Orchestrator) IngestAllByPriority(ctx context.Context, priority models.Priority) error {
	if reclaimed, err := o.sources.ReclaimStale(ctx, o.heartbeat); err != nil {
		o.logger.Warn("failed to reclaim stale claims", "component", "ingest", "error", err)
	} else if reclaimed > 0 {
		o.logger.Info("reclaimed stale claims",
			"component", "ingest", "event", "reclaimed", "count", reclaimed)
	}

	ids, err := o.sources.ListPending(ctx, priority)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if err := o.IngestSource(ctx, id); err != nil && !errors.Is(err, ErrAlreadyIngesting) {
					o.logger.Error("ingestion failed",
						"component", "ingest", "official_id", id, "error", err)
				}
			}
		}()
	}

	for _, id := range ids {
		select {
		case work <- id:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(work)
	wg.Wait()
	return nil
}
