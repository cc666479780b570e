package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChunkKind identifies the structural origin of a chunk.
type ChunkKind string

const (
	KindArticle      ChunkKind = "article"
	KindSection      ChunkKind = "section"
	KindDisposition  ChunkKind = "disposition"
	KindConsulta     ChunkKind = "consulta"
	KindContestacion ChunkKind = "contestacion"
	KindFullText     ChunkKind = "full_text"
)

// LegalDocument is one successfully ingested source.
type LegalDocument struct {
	ID         uuid.UUID   `json:"id"`
	SourceID   int64       `json:"source_id"`
	Title      string      `json:"title"`
	OfficialID string      `json:"official_id"`
	URL        string      `json:"url"`
	Metadata   DocMetadata `json:"metadata"`
	CreatedAt  time.Time   `json:"created_at"`
}

// DocMetadata carries free-form provenance attributes of a document.
type DocMetadata struct {
	PublicationDate string `json:"publication_date,omitempty"`
	Section         string `json:"section,omitempty"`
	IssuingBody     string `json:"issuing_body,omitempty"`
	CELEX           string `json:"celex,omitempty"`
}

// Value implements driver.Valuer for JSONB.
func (m DocMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB.
func (m *DocMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// ChunkMetadata is the denormalised copy of source attributes stored with
// every chunk. Filtered searches rely on nature, area, priority and
// authority_level being present; the closed enums are validated when the
// catalog entry is parsed, not here.
type ChunkMetadata struct {
	Nature          Nature    `json:"nature"`
	Area            string    `json:"area,omitempty"`
	Priority        Priority  `json:"priority,omitempty"`
	AuthorityLevel  string    `json:"authority_level,omitempty"`
	Kind            ChunkKind `json:"kind"`
	Scope           string    `json:"scope,omitempty"`
	DocTitle        string    `json:"doc_title"`
	OfficialID      string    `json:"official_id"`
	URL             string    `json:"url,omitempty"`
	Position        int       `json:"position"`
	PublicationDate string    `json:"publication_date,omitempty"`
	IsFallback      bool      `json:"is_fallback,omitempty"`
}

// Value implements driver.Valuer for JSONB.
func (m ChunkMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB.
func (m *ChunkMetadata) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// DocumentChunk is the atomic retrievable unit. Each chunk is exclusively
// owned by one document; deleting the document cascades to its chunks.
type DocumentChunk struct {
	ID         uuid.UUID     `json:"id"`
	DocumentID uuid.UUID     `json:"document_id"`
	Kind       ChunkKind     `json:"kind"`
	Label      string        `json:"label"`
	Text       string        `json:"text"`
	Position   int           `json:"position"`
	Embedding  []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkHit is one search result: a chunk plus the score of the retriever
// that produced it. Distance is cosine distance (vector side); Rank is the
// ts_rank_cd value (lexical side); Score is the fused, reranked score.
type ChunkHit struct {
	Chunk    DocumentChunk `json:"chunk"`
	Distance float64       `json:"distance,omitempty"`
	Rank     float64       `json:"rank,omitempty"`
	Score    float64       `json:"score,omitempty"`
}

// SearchFilter is an AND of optional equality predicates on chunk
// metadata. Zero values mean no constraint on that dimension.
type SearchFilter struct {
	Nature         Nature
	Area           string
	Priority       Priority
	AuthorityLevel string
}

// scanJSON handles the value shapes pgx may hand back for JSONB columns.
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dest)
}
