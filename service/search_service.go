package service

import (
	"context"
	"errors"
	"fmt"

	"artelex-backend/models"
)

// ErrInvalidLimit is returned when the requested result limit is out of range.
var ErrInvalidLimit = errors.New("limit must be between 1 and 100")

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// Searcher is the raw hybrid-search surface consumed by SearchService.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, filter models.SearchFilter, k int) ([]models.ChunkHit, error)
}

// SearchService exposes hybrid retrieval directly, without generation.
// Useful for debugging relevance and for frontend source browsing.
type SearchService struct {
	searcher Searcher
}

// SearchServiceOption is a functional option for SearchService.
type SearchServiceOption func(*SearchService)

// SearchWithSearcher sets the search engine.
func SearchWithSearcher(s Searcher) SearchServiceOption {
	return func(svc *SearchService) { svc.searcher = s }
}

// NewSearchService creates a new search service.
func NewSearchService(opts ...SearchServiceOption) *SearchService {
	svc := &SearchService{}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SearchResult is one scored chunk from a raw search.
type SearchResult struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	Text           string  `json:"text"`
	DocTitle       string  `json:"doc_title"`
	OfficialID     string  `json:"official_id"`
	URL            string  `json:"url"`
	Nature         string  `json:"nature"`
	AuthorityLevel string  `json:"authority_level"`
	Score          float64 `json:"score"`
}

// Search runs one hybrid query and returns the fused, reranked results.
// A zero limit defaults to 10; limits above 100 are rejected.
func (s *SearchService) Search(ctx context.Context, req models.SearchRequest) ([]SearchResult, error) {
	if err := ValidateQuery(req.Query); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 0 || limit > maxSearchLimit {
		return nil, ErrInvalidLimit
	}

	filter := models.SearchFilter{}
	if req.Filters != nil {
		filter.Area = req.Filters.Area
	}

	hits, err := s.searcher.HybridSearch(ctx, req.Query, filter, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		c := hit.Chunk
		results[i] = SearchResult{
			ID:             c.ID.String(),
			Label:          c.Label,
			Text:           truncateRunes(c.Text, displayTextCap),
			DocTitle:       c.Metadata.DocTitle,
			OfficialID:     c.Metadata.OfficialID,
			URL:            c.Metadata.URL,
			Nature:         string(c.Metadata.Nature),
			AuthorityLevel: c.Metadata.AuthorityLevel,
			Score:          hit.Score,
		}
	}
	return results, nil
}
