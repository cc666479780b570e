// Package ingest drives corpus sources through the fetch → parse →
// normalise → embed → store pipeline and owns the source state machine.
package ingest

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"artelex-backend/connectors"
	"artelex-backend/models"

	"github.com/PuerkitoBio/goquery"
)

// ErrEmptyDocument is returned when a source yields neither structure nor
// text. Permanent: the source goes straight to failed.
var ErrEmptyDocument = errors.New("document has no parseable structure and no text body")

// NormalisedDocument is the canonical form handed to the store: document
// attributes plus chunks whose metadata unions the source classification
// with the unit location. Embeddings are filled in by the orchestrator.
type NormalisedDocument struct {
	Title           string
	OfficialID      string
	URL             string
	PublicationDate string
	Meta            models.DocMetadata
	Chunks          []models.DocumentChunk
}

// Normalise maps a connector result into the canonical document form.
// When the structural unit list is empty but the raw body has text, it
// emits exactly one full_text fallback chunk labelled with the source
// title. When neither is available it returns ErrEmptyDocument.
func Normalise(src *models.CorpusSource, result *connectors.FetchResult) (*NormalisedDocument, error) {
	title := result.Meta.Title
	if title == "" {
		title = src.Title
	}

	doc := &NormalisedDocument{
		Title:           title,
		OfficialID:      src.OfficialID,
		URL:             src.SourceURL,
		PublicationDate: result.Meta.PublicationDate,
		Meta: models.DocMetadata{
			PublicationDate: result.Meta.PublicationDate,
			Section:         result.Meta.Section,
			IssuingBody:     result.Meta.IssuingBody,
			CELEX:           result.Meta.CELEX,
		},
	}

	baseMeta := models.ChunkMetadata{
		Nature:          src.Nature,
		Area:            src.Area,
		Priority:        src.Priority,
		AuthorityLevel:  src.AuthorityLevel,
		Scope:           src.Scope,
		DocTitle:        title,
		OfficialID:      src.OfficialID,
		URL:             src.SourceURL,
		PublicationDate: result.Meta.PublicationDate,
	}

	for _, unit := range result.Units {
		text := scrubText(unit.Text)
		if text == "" {
			continue
		}
		meta := baseMeta
		meta.Kind = unit.Kind
		meta.Position = len(doc.Chunks)
		doc.Chunks = append(doc.Chunks, models.DocumentChunk{
			Kind:     unit.Kind,
			Label:    unit.Label,
			Text:     text,
			Position: meta.Position,
			Metadata: meta,
		})
	}

	if len(doc.Chunks) > 0 {
		return doc, nil
	}

	// Fallback: one full_text chunk over the whole body.
	body := scrubText(htmlBodyText(result.RawHTML))
	if body == "" {
		return nil, ErrEmptyDocument
	}

	meta := baseMeta
	meta.Kind = models.KindFullText
	meta.Position = 0
	meta.IsFallback = true
	doc.Chunks = append(doc.Chunks, models.DocumentChunk{
		Kind:     models.KindFullText,
		Label:    src.Title,
		Text:     body,
		Position: 0,
		Metadata: meta,
	})
	return doc, nil
}

// htmlBodyText extracts the visible text of an HTML body.
func htmlBodyText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Find("body").Text()
}

var multiSpaceRe = regexp.MustCompile(`[ \t]+`)
var multiNewlineRe = regexp.MustCompile(`\n{3,}`)

// scrubText strips NUL and control bytes and collapses runs of
// whitespace. Chunk text must be non-empty, NUL-free UTF-8.
func scrubText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 || (r < 0x20 && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
