package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"artelex-backend/models"
	"artelex-backend/search"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	buckets *search.Buckets
	err     error
}

func (r *stubRetriever) Retrieve(ctx context.Context, query, area string) (*search.Buckets, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.buckets, nil
}

type stubGenerator struct {
	answer     string
	err        error
	lastPrompt string
	calls      int
}

func (g *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *stubGenerator) Model() string { return "gemini-2.5-flash" }

func testChunk(nature models.Nature, level, label, text string) models.ChunkHit {
	return models.ChunkHit{
		Chunk: models.DocumentChunk{
			ID:    uuid.New(),
			Label: label,
			Text:  text,
			Metadata: models.ChunkMetadata{
				Nature:         nature,
				AuthorityLevel: level,
				DocTitle:       "Ley 35/2006 del IRPF",
				OfficialID:     "BOE-A-2006-20764",
				URL:            "https://www.boe.es/buscar/act.php?id=BOE-A-2006-20764",
			},
		},
		Score: 0.02,
	}
}

func fullBuckets() *search.Buckets {
	return &search.Buckets{
		Normativa: []models.ChunkHit{
			testChunk(models.NatureNormativa, models.AuthorityLey, "Artículo 27", "Rendimientos íntegros de actividades económicas."),
			testChunk(models.NatureNormativa, models.AuthorityLey, "Artículo 95", "Retenciones e ingresos a cuenta."),
		},
		Doctrina: []models.ChunkHit{
			testChunk(models.NatureDoctrina, models.AuthorityDoctrinaAdmin, "Contestación V0992-23", "Los rendimientos de actuaciones musicales son actividad económica."),
		},
		Jurisprudencia: []models.ChunkHit{
			testChunk(models.NatureJurisprudencia, models.AuthorityJurisprudencia, "STS 1234/2020", "El Tribunal Supremo confirma el criterio."),
		},
	}
}

func newTestRAG(r Retriever, g Generator) *RAGService {
	return NewRAGService(
		RAGWithRetriever(r),
		RAGWithGenerator(g),
		RAGWithClassifier(search.NewClassifier()),
	)
}

func TestAnswerQueryGreetingShortCircuit(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("must not be called")}
	gen := &stubGenerator{answer: "must not be called"}
	svc := newTestRAG(retriever, gen)

	resp, err := svc.AnswerQuery(context.Background(), "¡Hola, buenos días!", "s1", "")
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "ArteLex")
	assert.Empty(t, resp.Sources)
	assert.Zero(t, gen.calls, "generator must not run for greetings")
}

func TestAnswerQueryNoInformationGuard(t *testing.T) {
	retriever := &stubRetriever{buckets: &search.Buckets{}}
	gen := &stubGenerator{answer: "must not be called"}
	svc := newTestRAG(retriever, gen)

	resp, err := svc.AnswerQuery(context.Background(), "¿Qué IVA aplico a las clases de danza que imparto?", "s1", "")
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "no he encontrado")
	assert.Empty(t, resp.Sources)
	assert.Zero(t, gen.calls, "generator must not run with empty buckets")
	assert.Equal(t, 0, resp.Metadata.CountsPerBucket["normativa"])
}

func TestAnswerQueryPromptAndSources(t *testing.T) {
	buckets := fullBuckets()
	retriever := &stubRetriever{buckets: buckets}
	gen := &stubGenerator{answer: "## Resumen\nSegún [Fuente N1]..."}
	svc := newTestRAG(retriever, gen)

	resp, err := svc.AnswerQuery(context.Background(), "¿Cómo tributan mis conciertos en el IRPF?", "s1", "")
	require.NoError(t, err)

	// The prompt carries the hierarchy sections and the user query verbatim.
	assert.Contains(t, gen.lastPrompt, "[Fuente N1]")
	assert.Contains(t, gen.lastPrompt, "[Fuente N2]")
	assert.Contains(t, gen.lastPrompt, "[Fuente D1]")
	assert.Contains(t, gen.lastPrompt, "[Fuente J1]")
	assert.Contains(t, gen.lastPrompt, "JERARQUÍA NORMATIVA")
	assert.Contains(t, gen.lastPrompt, "¿Cómo tributan mis conciertos en el IRPF?")

	// Every prompt label resolves to a returned source record.
	require.Len(t, resp.Sources, 4)
	labels := make(map[string]bool)
	for _, s := range resp.Sources {
		labels[s.ReferenceLabel] = true
	}
	for _, want := range []string{"N1", "N2", "D1", "J1"} {
		assert.True(t, labels[want], "missing source %s", want)
	}

	assert.Equal(t, "Fiscal", resp.Metadata.Area)
	assert.Equal(t, 2, resp.Metadata.CountsPerBucket["normativa"])
	assert.Equal(t, 1, resp.Metadata.CountsPerBucket["doctrina"])
	assert.Equal(t, 1, resp.Metadata.CountsPerBucket["jurisprudencia"])
	assert.Equal(t, "gemini-2.5-flash", resp.Metadata.Model)
}

func TestAnswerQueryGeneratorFailureFallback(t *testing.T) {
	retriever := &stubRetriever{buckets: fullBuckets()}
	gen := &stubGenerator{err: errors.New("deadline exceeded")}
	svc := newTestRAG(retriever, gen)

	resp, err := svc.AnswerQuery(context.Background(), "¿Cómo tributan mis conciertos en el IRPF?", "s1", "")
	require.NoError(t, err, "generator failure must not fail the request")

	// The deterministic fallback enumerates the retrieved sources.
	assert.Contains(t, resp.Answer, "[N1]")
	assert.Contains(t, resp.Answer, "Ley 35/2006")
	assert.Contains(t, resp.Answer, "no constituye asesoramiento legal")
	assert.Len(t, resp.Sources, 4)
}

func TestAnswerQueryRetrievalFailure(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("connection refused")}
	svc := newTestRAG(retriever, &stubGenerator{})

	_, err := svc.AnswerQuery(context.Background(), "¿Cómo tributan mis conciertos en el IRPF?", "s1", "")
	assert.ErrorIs(t, err, ErrRetrievalFailed)
}

func TestAnswerQueryAreaOverride(t *testing.T) {
	retriever := &stubRetriever{buckets: fullBuckets()}
	svc := newTestRAG(retriever, &stubGenerator{answer: "ok"})

	resp, err := svc.AnswerQuery(context.Background(), "¿Cómo tributan mis conciertos en el IRPF?", "s1", "Laboral")
	require.NoError(t, err)
	assert.Equal(t, "Laboral", resp.Metadata.Area, "explicit filter wins over classification")
}

func TestAnswerQueryLongSourceTextTruncated(t *testing.T) {
	long := strings.Repeat("palabra ", 200) // ~1600 chars
	buckets := &search.Buckets{
		Normativa: []models.ChunkHit{
			testChunk(models.NatureNormativa, models.AuthorityLey, "Artículo 1", long),
		},
	}
	svc := newTestRAG(&stubRetriever{buckets: buckets}, &stubGenerator{answer: "ok"})

	resp, err := svc.AnswerQuery(context.Background(), "¿Cómo tributan mis conciertos en el IRPF?", "s1", "")
	require.NoError(t, err)

	require.Len(t, resp.Sources, 1)
	assert.LessOrEqual(t, len([]rune(resp.Sources[0].Text)), displayTextCap+1)
	assert.Equal(t, long, resp.Sources[0].FullText, "full text is preserved untruncated")
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"nine chars", "123456789", ErrQueryTooShort},
		{"ten chars", "1234567890", nil},
		{"five hundred chars", strings.Repeat("a", 500), nil},
		{"five hundred one chars", strings.Repeat("a", 501), ErrQueryTooLong},
		{"whitespace only", "         \t  ", ErrQueryTooShort},
		{"multibyte runes counted once", strings.Repeat("ñ", 10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuery(tt.query)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestSearchServiceLimits(t *testing.T) {
	searcher := &stubSearcher{}
	svc := NewSearchService(SearchWithSearcher(searcher))

	_, err := svc.Search(context.Background(), models.SearchRequest{Query: "derechos de autor de mi obra", Limit: 101})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = svc.Search(context.Background(), models.SearchRequest{Query: "derechos de autor de mi obra"})
	require.NoError(t, err)
	assert.Equal(t, defaultSearchLimit, searcher.lastK, "zero limit defaults to %d", defaultSearchLimit)
}

type stubSearcher struct {
	hits  []models.ChunkHit
	lastK int
}

func (s *stubSearcher) HybridSearch(ctx context.Context, query string, filter models.SearchFilter, k int) ([]models.ChunkHit, error) {
	s.lastK = k
	return s.hits, nil
}
