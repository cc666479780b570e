package ingest

import (
	"errors"
	"strings"
	"testing"

	"artelex-backend/connectors"
	"artelex-backend/models"
)

func testSource() *models.CorpusSource {
	return &models.CorpusSource{
		ID:             7,
		OfficialID:     "BOE-A-1985-17303",
		Title:          "Real Decreto 1435/1985",
		SourceURL:      "https://www.boe.es/buscar/act.php?id=BOE-A-1985-17303",
		Priority:       models.PriorityP1,
		Nature:         models.NatureNormativa,
		Area:           "Laboral",
		Scope:          "Estatal",
		AuthorityLevel: models.AuthorityRealDecreto,
	}
}

func TestNormaliseStructuredUnits(t *testing.T) {
	result := &connectors.FetchResult{
		RawHTML: []byte("<html><body>irrelevant</body></html>"),
		Units: []connectors.StructuralUnit{
			{Kind: models.KindArticle, Label: "Artículo 1", Text: "Ámbito de aplicación.", Position: 0},
			{Kind: models.KindArticle, Label: "Artículo 2", Text: "Capacidad para contratar.", Position: 1},
			{Kind: models.KindDisposition, Label: "Disposición final", Text: "Entrada en vigor.", Position: 2},
		},
		Meta: connectors.DocMeta{Title: "Real Decreto 1435/1985, de 1 de agosto", PublicationDate: "1985-08-01"},
	}

	doc, err := Normalise(testSource(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(doc.Chunks))
	}
	// The connector title wins over the catalog title.
	if doc.Title != "Real Decreto 1435/1985, de 1 de agosto" {
		t.Errorf("unexpected title: %q", doc.Title)
	}

	for i, c := range doc.Chunks {
		if c.Position != i || c.Metadata.Position != i {
			t.Errorf("chunk %d position mismatch: %d/%d", i, c.Position, c.Metadata.Position)
		}
		m := c.Metadata
		if m.Nature != models.NatureNormativa || m.Area != "Laboral" ||
			m.Priority != models.PriorityP1 || m.AuthorityLevel != models.AuthorityRealDecreto {
			t.Errorf("chunk %d metadata missing source classification: %+v", i, m)
		}
		if m.OfficialID != "BOE-A-1985-17303" || m.DocTitle != doc.Title {
			t.Errorf("chunk %d metadata missing provenance: %+v", i, m)
		}
		if m.IsFallback {
			t.Errorf("structured chunk %d marked as fallback", i)
		}
	}
	if doc.Chunks[2].Kind != models.KindDisposition {
		t.Errorf("unit kind not preserved: %q", doc.Chunks[2].Kind)
	}
}

func TestNormaliseFallbackChunk(t *testing.T) {
	result := &connectors.FetchResult{
		RawHTML: []byte(`<html><body>
<script>ignored();</script>
<p>Texto íntegro de la norma sin estructura de artículos.</p>
</body></html>`),
		Units: nil,
	}

	src := testSource()
	doc, err := Normalise(src, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Chunks) != 1 {
		t.Fatalf("expected exactly one fallback chunk, got %d", len(doc.Chunks))
	}
	c := doc.Chunks[0]
	if c.Kind != models.KindFullText {
		t.Errorf("expected full_text kind, got %q", c.Kind)
	}
	if c.Label != src.Title {
		t.Errorf("fallback label should be the source title, got %q", c.Label)
	}
	if !c.Metadata.IsFallback {
		t.Error("fallback chunk not marked")
	}
	if !strings.Contains(c.Text, "sin estructura de artículos") {
		t.Errorf("fallback text wrong: %q", c.Text)
	}
	if strings.Contains(c.Text, "ignored()") {
		t.Errorf("script content leaked into fallback text")
	}
}

func TestNormaliseEmptyDocument(t *testing.T) {
	result := &connectors.FetchResult{
		RawHTML: []byte("<html><body>   </body></html>"),
		Units:   nil,
	}

	_, err := Normalise(testSource(), result)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestNormaliseDropsEmptyUnits(t *testing.T) {
	result := &connectors.FetchResult{
		RawHTML: []byte("<html><body>x</body></html>"),
		Units: []connectors.StructuralUnit{
			{Kind: models.KindArticle, Label: "Artículo 1", Text: "   \x00  ", Position: 0},
			{Kind: models.KindArticle, Label: "Artículo 2", Text: "Contenido real.", Position: 1},
		},
	}

	doc, err := Normalise(testSource(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("expected the empty unit dropped, got %d chunks", len(doc.Chunks))
	}
	if doc.Chunks[0].Label != "Artículo 2" || doc.Chunks[0].Position != 0 {
		t.Errorf("positions not recomputed after drop: %+v", doc.Chunks[0])
	}
}

func TestScrubText(t *testing.T) {
	in := "Primera  línea\x00 con\tespacios\n\n\n\nSegunda línea"
	got := scrubText(in)
	if strings.ContainsRune(got, 0) {
		t.Error("NUL byte survived scrub")
	}
	if strings.Contains(got, "\n\n\n") {
		t.Error("newline runs not collapsed")
	}
	if !strings.HasPrefix(got, "Primera línea") {
		t.Errorf("spaces not collapsed: %q", got)
	}
}
