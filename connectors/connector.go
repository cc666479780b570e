// Package connectors fetches and parses official legal sources (BOE,
// EUR-Lex, DGT) into an intermediate structural representation that the
// normaliser turns into canonical chunks.
package connectors

import (
	"context"
	"errors"
	"fmt"

	"artelex-backend/models"
)

// StructuralUnit is one parsed unit of a source document: an article, a
// section, a disposition, or a ruling part. Text is already stripped of
// markup.
type StructuralUnit struct {
	Kind     models.ChunkKind
	Label    string
	Text     string
	Position int
}

// DocMeta carries document-level attributes extracted during parsing.
type DocMeta struct {
	Title           string
	PublicationDate string
	Section         string
	IssuingBody     string
	CELEX           string
}

// FetchRequest identifies one source to fetch. OfficialID is a hint the
// connector may need beyond the URL, e.g. to derive the canonical HTML
// rendering of a PDF link.
type FetchRequest struct {
	URL        string
	OfficialID string
}

// FetchResult is the connector output: the raw UTF-8 body, the parsed
// structural units, and document metadata. An empty unit list is not an
// error; the normaliser applies the fallback policy.
type FetchResult struct {
	RawHTML []byte
	Units   []StructuralUnit
	Meta    DocMeta
}

// Connector fetches one source and parses its structure.
type Connector interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// FetchError is a transport or HTTP failure. HTTP 404 and 410 are
// permanent; other statuses and transport errors are retryable.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Permanent reports whether retrying cannot help.
func (e *FetchError) Permanent() bool {
	switch e.StatusCode {
	case 404, 410:
		return true
	}
	// Other 4xx except 429 are permanent as well.
	if e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429 {
		return true
	}
	return false
}

// ErrParse is wrapped by connector parse failures.
var ErrParse = errors.New("parse failed")
