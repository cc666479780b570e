package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"artelex-backend/models"
	"artelex-backend/search"
)

var (
	// ErrRetrievalFailed maps to INTERNAL_ERROR at the service boundary.
	ErrRetrievalFailed = errors.New("failed to retrieve legal context")

	// ErrQueryTooShort / ErrQueryTooLong are the 400-level validation
	// failures; no retrieval is performed for them.
	ErrQueryTooShort = errors.New("query too short")
	ErrQueryTooLong  = errors.New("query too long")
)

const (
	minQueryLen = 10
	maxQueryLen = 500

	// Per-chunk character caps: promptChunkCap inside the prompt,
	// displayTextCap in the rendered source record.
	promptChunkCap = 900
	displayTextCap = 500
)

// Retriever is the search surface the orchestrator consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query, area string) (*search.Buckets, error)
}

// Generator completes a prompt into an answer.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Classifier routes a query to a legal area.
type Classifier interface {
	Classify(query string) string
	IsGreeting(query string) bool
}

// RAGService composes the end-to-end query contract: classify, retrieve
// hierarchically, assemble the hierarchy-aware prompt, generate, and
// format cited sources.
type RAGService struct {
	retriever  Retriever
	generator  Generator
	classifier Classifier
}

// RAGServiceOption is a functional option for RAGService.
type RAGServiceOption func(*RAGService)

// RAGWithRetriever sets the search engine.
func RAGWithRetriever(r Retriever) RAGServiceOption {
	return func(s *RAGService) { s.retriever = r }
}

// RAGWithGenerator sets the LLM generator.
func RAGWithGenerator(g Generator) RAGServiceOption {
	return func(s *RAGService) { s.generator = g }
}

// RAGWithClassifier sets the intent classifier.
func RAGWithClassifier(c Classifier) RAGServiceOption {
	return func(s *RAGService) { s.classifier = c }
}

// NewRAGService creates a new RAG orchestrator.
func NewRAGService(opts ...RAGServiceOption) *RAGService {
	s := &RAGService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateQuery enforces the query length contract.
func ValidateQuery(query string) error {
	n := len([]rune(strings.TrimSpace(query)))
	if n < minQueryLen {
		return ErrQueryTooShort
	}
	if n > maxQueryLen {
		return ErrQueryTooLong
	}
	return nil
}

const greetingAnswer = `¡Hola! Soy el asistente legal de ArteLex, especializado en la normativa española aplicable a artistas y profesionales de la cultura. Puedes preguntarme sobre fiscalidad, contratos, derechos de autor, subvenciones y trámites administrativos. ¿En qué puedo ayudarte?`

const noInformationAnswer = `## Resumen

Lo siento, no he encontrado información en las fuentes oficiales consultadas que responda a tu pregunta. No dispongo de normativa, criterios administrativos ni jurisprudencia aplicables a lo que planteas.

Te recomiendo reformular la consulta con más detalle o consultar directamente con un profesional colegiado.

---
*Esta respuesta es orientativa y no constituye asesoramiento legal. Consulta siempre con un profesional para tu caso concreto.*`

// AnswerQuery answers a user question with a structured, cited answer.
// areaOverride, when non-empty, skips classification.
func (s *RAGService) AnswerQuery(ctx context.Context, query, sessionID, areaOverride string) (*models.ChatResponse, error) {
	start := time.Now()

	resp := &models.ChatResponse{
		SessionID: sessionID,
		Sources:   []models.SourceRecord{},
		Metadata: models.ChatMetadata{
			Model:           s.generator.Model(),
			CountsPerBucket: map[string]int{"normativa": 0, "doctrina": 0, "jurisprudencia": 0},
		},
	}

	// Pure greetings skip retrieval and the LLM call entirely.
	if s.classifier.IsGreeting(query) {
		resp.Answer = greetingAnswer
		resp.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	area := areaOverride
	if area == "" {
		area = s.classifier.Classify(query)
	}
	resp.Metadata.Area = area

	buckets, err := s.retriever.Retrieve(ctx, query, area)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	resp.Metadata.CountsPerBucket["normativa"] = len(buckets.Normativa)
	resp.Metadata.CountsPerBucket["doctrina"] = len(buckets.Doctrina)
	resp.Metadata.CountsPerBucket["jurisprudencia"] = len(buckets.Jurisprudencia)

	// An answer without citations is never produced silently: when
	// retrieval comes back empty the response says so explicitly.
	if buckets.Total() == 0 {
		resp.Answer = noInformationAnswer
		resp.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	resp.Sources = formatSources(buckets)

	prompt := buildPrompt(query, buckets)
	answer, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Generator failures do not fail the request: the deterministic
		// fallback enumerates the retrieved sources instead.
		answer = fallbackAnswer(resp.Sources)
	}
	resp.Answer = answer
	resp.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// buildPrompt assembles the hierarchy-aware prompt: system role, the
// legal-hierarchy rule, the no-fabrication rule, the output template, the
// labelled source buckets, and the user query verbatim.
func buildPrompt(query string, buckets *search.Buckets) string {
	var b strings.Builder

	b.WriteString(`Eres el asistente legal de ArteLex, especializado en la normativa española aplicable a artistas y profesionales de la cultura. Respondes únicamente sobre cuestiones legales, fiscales, laborales y administrativas de ese ámbito.

JERARQUÍA NORMATIVA (OBLIGATORIA):
La Normativa (leyes y reglamentos) prevalece siempre sobre la Doctrina administrativa, y ésta sobre la Jurisprudencia. Ninguna fuente de rango inferior puede contradecir a una de rango superior en tu respuesta.

REGLA DE NO FABRICACIÓN (CRÍTICA):
Cada afirmación debe estar respaldada por alguna de las fuentes listadas abajo, citada con su etiqueta ([Fuente N1], [Fuente D1], [Fuente J1]...). Si las fuentes no respaldan una afirmación, declara que no dispones de información suficiente. No inventes artículos, cifras ni referencias.

FORMATO DE SALIDA (markdown, con estas secciones):
## Resumen
## Normativa aplicable
## Criterios administrativos
## Jurisprudencia relevante
## Requisitos y notas

Cierra siempre con esta advertencia literal:
*Esta respuesta es orientativa y no constituye asesoramiento legal. Consulta siempre con un profesional para tu caso concreto.*

`)

	writeBucket(&b, "FUENTES — NORMATIVA", "N", buckets.Normativa)
	writeBucket(&b, "FUENTES — DOCTRINA ADMINISTRATIVA", "D", buckets.Doctrina)
	writeBucket(&b, "FUENTES — JURISPRUDENCIA", "J", buckets.Jurisprudencia)

	b.WriteString("PREGUNTA DEL USUARIO:\n")
	b.WriteString(query)
	b.WriteString("\n\nRedacta ahora la respuesta:")

	return b.String()
}

func writeBucket(b *strings.Builder, heading, prefix string, hits []models.ChunkHit) {
	if len(hits) == 0 {
		return
	}
	b.WriteString(heading + ":\n")
	for i, hit := range hits {
		c := hit.Chunk
		fmt.Fprintf(b, "[Fuente %s%d] %s — %s (%s)\n%s\n\n",
			prefix, i+1, c.Metadata.DocTitle, c.Label, c.Metadata.AuthorityLevel,
			truncateRunes(c.Text, promptChunkCap))
	}
	b.WriteString("\n")
}

// formatSources renders retrieved chunks for the frontend. Reference
// labels (N1, D1, J1, ...) match the prompt's bucket numbering so the
// labels the model cites resolve to these records.
func formatSources(buckets *search.Buckets) []models.SourceRecord {
	records := make([]models.SourceRecord, 0, buckets.Total())
	add := func(category, prefix string, hits []models.ChunkHit) {
		for i, hit := range hits {
			c := hit.Chunk
			records = append(records, models.SourceRecord{
				ID:             c.ID.String(),
				Category:       category,
				ReferenceLabel: fmt.Sprintf("%s%d", prefix, i+1),
				Label:          c.Label,
				Text:           truncateRunes(c.Text, displayTextCap),
				FullText:       c.Text,
				DocTitle:       c.Metadata.DocTitle,
				OfficialID:     c.Metadata.OfficialID,
				URL:            c.Metadata.URL,
				AuthorityLevel: c.Metadata.AuthorityLevel,
				Nature:         string(c.Metadata.Nature),
				Similarity:     hit.Score,
			})
		}
	}
	add("normativa", "N", buckets.Normativa)
	add("doctrina", "D", buckets.Doctrina)
	add("jurisprudencia", "J", buckets.Jurisprudencia)
	return records
}

// fallbackAnswer is the deterministic answer used when the generator
// fails: it enumerates the retrieved sources and asks the user to consult
// them directly.
func fallbackAnswer(sources []models.SourceRecord) string {
	var b strings.Builder
	b.WriteString("## Resumen\n\n")
	b.WriteString("En este momento no puedo redactar una respuesta completa, pero he localizado las siguientes fuentes oficiales relevantes para tu consulta. Te recomiendo consultarlas directamente:\n\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "- [%s] %s — %s (%s)", src.ReferenceLabel, src.DocTitle, src.Label, src.AuthorityLevel)
		if src.URL != "" {
			fmt.Fprintf(&b, ": %s", src.URL)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n---\n*Esta respuesta es orientativa y no constituye asesoramiento legal. Consulta siempre con un profesional para tu caso concreto.*")
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
