package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"artelex-backend/models"
)

// ErrRetrieval is returned when both retrieval legs fail. Empty results
// are never an error.
var ErrRetrieval = errors.New("retrieval failed")

// Store is the search surface of the chunk store.
type Store interface {
	VectorSearch(ctx context.Context, qvec []float32, filter models.SearchFilter, k int) ([]models.ChunkHit, error)
	LexicalSearch(ctx context.Context, qtext string, filter models.SearchFilter, k int) ([]models.ChunkHit, error)
}

// QueryEmbedder embeds a query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the fusion and bucketing parameters. Hierarchy is data:
// the multiplier table and bucket limits come from configuration, the
// engine hard-codes no level names.
type Config struct {
	Kappa         float64
	WeightVector  float64
	WeightLexical float64

	AuthorityMultipliers map[string]float64
	AuthorityRank        map[string]int

	LimitNormativa      int
	LimitDoctrina       int
	LimitJurisprudencia int
}

// DefaultConfig returns the reference parameters: κ=60, weights 0.6/0.4,
// the standard authority table, bucket limits 5/3/2.
func DefaultConfig() Config {
	return Config{
		Kappa:                60,
		WeightVector:         0.6,
		WeightLexical:        0.4,
		AuthorityMultipliers: defaultAuthorityMultipliers,
		AuthorityRank:        defaultAuthorityRank,
		LimitNormativa:       5,
		LimitDoctrina:        3,
		LimitJurisprudencia:  2,
	}
}

// Buckets holds the hierarchical retrieval result in fixed order:
// normativa, doctrina, jurisprudencia.
type Buckets struct {
	Normativa      []models.ChunkHit
	Doctrina       []models.ChunkHit
	Jurisprudencia []models.ChunkHit
}

// Total returns the number of hits across all buckets.
func (b Buckets) Total() int {
	return len(b.Normativa) + len(b.Doctrina) + len(b.Jurisprudencia)
}

// Engine performs hybrid search with authority-aware reranking.
type Engine struct {
	store    Store
	embedder QueryEmbedder
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(store Store, embedder QueryEmbedder, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Kappa == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// HybridSearch runs vector and lexical retrieval over 2k candidates each,
// fuses them with RRF, applies the authority rerank, and returns the top
// k. The lexical leg runs concurrently with embedding+vector: it never
// waits on the embedding call. A failed embedder degrades to lexical-only;
// a failed lexical leg degrades to vector-only; both failing is
// ErrRetrieval.
func (e *Engine) HybridSearch(ctx context.Context, query string, filter models.SearchFilter, k int) ([]models.ChunkHit, error) {
	if k <= 0 {
		return nil, nil
	}
	fetch := 2 * k

	type legResult struct {
		hits []models.ChunkHit
		err  error
	}

	lexCh := make(chan legResult, 1)
	go func() {
		start := time.Now()
		hits, err := e.store.LexicalSearch(ctx, query, filter, fetch)
		if err == nil {
			e.logger.Debug("lexical search complete",
				"component", "search_engine", "stage", "lexical_search",
				"hits", len(hits), "duration_ms", time.Since(start).Milliseconds())
		}
		lexCh <- legResult{hits, err}
	}()

	vecCh := make(chan legResult, 1)
	go func() {
		start := time.Now()
		qvec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			vecCh <- legResult{nil, fmt.Errorf("embed query: %w", err)}
			return
		}
		hits, err := e.store.VectorSearch(ctx, qvec, filter, fetch)
		if err == nil {
			e.logger.Debug("vector search complete",
				"component", "search_engine", "stage", "vector_search",
				"hits", len(hits), "duration_ms", time.Since(start).Milliseconds())
		}
		vecCh <- legResult{hits, err}
	}()

	lex := <-lexCh
	vec := <-vecCh

	if vec.err != nil && lex.err != nil {
		return nil, fmt.Errorf("%w: vector: %v; lexical: %v", ErrRetrieval, vec.err, lex.err)
	}
	if vec.err != nil {
		e.logger.Warn("degrading to lexical-only search",
			"component", "search_engine", "event", "embedder_degraded", "error", vec.err)
	}
	if lex.err != nil {
		e.logger.Warn("degrading to vector-only search",
			"component", "search_engine", "event", "lexical_degraded", "error", lex.err)
	}

	fused := fuseRRF(
		vec.hits, lex.hits,
		e.cfg.Kappa, e.cfg.WeightVector, e.cfg.WeightLexical,
		e.cfg.AuthorityMultipliers, e.cfg.AuthorityRank,
		k,
	)

	e.logger.Debug("fused and reranked",
		"component", "search_engine", "stage", "fuse",
		"vector_hits", len(vec.hits), "lexical_hits", len(lex.hits), "fused", len(fused))

	return fused, nil
}

// Retrieve performs hierarchical retrieval: Normativa first (P1 only),
// then Doctrina (only when Normativa returned anything), then
// Jurisprudencia. The area filter applies when the classifier produced
// one.
func (e *Engine) Retrieve(ctx context.Context, query, area string) (*Buckets, error) {
	buckets := &Buckets{}

	normativa, err := e.HybridSearch(ctx, query, models.SearchFilter{
		Nature:   models.NatureNormativa,
		Priority: models.PriorityP1,
		Area:     area,
	}, e.cfg.LimitNormativa)
	if err != nil {
		return nil, err
	}
	buckets.Normativa = normativa

	if len(normativa) > 0 {
		doctrina, err := e.HybridSearch(ctx, query, models.SearchFilter{
			Nature: models.NatureDoctrina,
			Area:   area,
		}, e.cfg.LimitDoctrina)
		if err != nil {
			return nil, err
		}
		buckets.Doctrina = doctrina
	}

	jurisprudencia, err := e.HybridSearch(ctx, query, models.SearchFilter{
		Nature: models.NatureJurisprudencia,
		Area:   area,
	}, e.cfg.LimitJurisprudencia)
	if err != nil {
		return nil, err
	}
	buckets.Jurisprudencia = jurisprudencia

	return buckets, nil
}
