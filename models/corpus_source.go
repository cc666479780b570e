package models

import (
	"fmt"
	"time"
)

// SourceState represents the ingestion lifecycle state of a corpus source.
// Transitions happen only through the ingestion orchestrator.
type SourceState string

const (
	StatePending   SourceState = "pending"
	StateIngesting SourceState = "ingesting"
	StateIngested  SourceState = "ingested"
	StateFailed    SourceState = "failed"
	StateSkipped   SourceState = "skipped"
)

// Nature is the legal-authority tier of a source. The hierarchical
// retriever partitions the corpus on this value, so it is a closed enum
// validated at parse time rather than a free string.
type Nature string

const (
	NatureNormativa      Nature = "Normativa"
	NatureDoctrina       Nature = "Doctrina"
	NatureJurisprudencia Nature = "Jurisprudencia"
)

// ParseNature validates a nature string against the closed enum.
func ParseNature(s string) (Nature, error) {
	switch Nature(s) {
	case NatureNormativa, NatureDoctrina, NatureJurisprudencia:
		return Nature(s), nil
	}
	return "", fmt.Errorf("invalid nature %q", s)
}

// Priority is the ingestion priority tier of a source.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// ParsePriority validates a priority string against the closed enum.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityP1, PriorityP2, PriorityP3:
		return Priority(s), nil
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

// Authority levels, highest first. The search engine reads the rerank
// multipliers from configuration; these constants name the known levels.
const (
	AuthorityConstitucion   = "Constitución"
	AuthorityLey            = "Ley"
	AuthorityRealDecretoLeg = "Real Decreto Legislativo"
	AuthorityRealDecreto    = "Real Decreto"
	AuthorityOrden          = "Orden"
	AuthorityDoctrinaAdmin  = "Doctrina administrativa"
	AuthorityJurisprudencia = "Jurisprudencia"
)

// CorpusSource is a catalog entry for one legal source to ingest.
type CorpusSource struct {
	ID             int64       `json:"id"`
	OfficialID     string      `json:"official_id"`
	Title          string      `json:"title"`
	SourceURL      string      `json:"source_url"`
	DocumentKind   string      `json:"document_kind"`
	Priority       Priority    `json:"priority"`
	Nature         Nature      `json:"nature"`
	Area           string      `json:"area"`
	Scope          string      `json:"scope"`
	AuthorityLevel string      `json:"authority_level"`
	State          SourceState `json:"state"`
	LastIngestedAt *time.Time  `json:"last_ingested_at,omitempty"`
	LastError      *string     `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// SourceFilter narrows catalog listings. Zero values mean no constraint.
type SourceFilter struct {
	Priority Priority
	Nature   Nature
	Area     string
	State    SourceState
}
