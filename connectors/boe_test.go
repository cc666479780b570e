package connectors

import (
	"strings"
	"testing"

	"artelex-backend/models"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

const boeSiblingHTML = `<html><head>
<title>Real Decreto 1435/1985</title>
<meta name="DC.date" content="1985-08-01">
<meta name="DC.creator" content="Ministerio de Trabajo">
</head><body>
<h1 class="documento-tit">Real Decreto 1435/1985, relación laboral especial de los artistas</h1>
<h4 class="articulo">Artículo 1. Ámbito de aplicación</h4>
<p class="parrafo">Uno. El presente Real Decreto regula la relación especial de trabajo de los artistas en espectáculos públicos.</p>
<p class="parrafo_2">Dos. Se entiende por relación especial de trabajo de los artistas la establecida entre un organizador y quienes se dediquen voluntariamente a la actividad artística.</p>
<h4 class="articulo">Artículo 2. Capacidad para contratar</h4>
<p class="parrafo">Los menores de dieciséis años requieren autorización de la autoridad laboral.</p>
<h5 class="articulo">Disposición final primera</h5>
<p class="parrafo">Se faculta al Ministerio de Trabajo para dictar las normas de desarrollo.</p>
</body></html>`

func TestParseBOESiblingLayout(t *testing.T) {
	units := parseBOESiblingLayout(docFromHTML(t, boeSiblingHTML))

	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	first := units[0]
	if first.Label != "Artículo 1. Ámbito de aplicación" {
		t.Errorf("unexpected label: %q", first.Label)
	}
	if first.Kind != models.KindArticle {
		t.Errorf("expected article kind, got %q", first.Kind)
	}
	if !strings.Contains(first.Text, "espectáculos públicos") || !strings.Contains(first.Text, "organizador") {
		t.Errorf("first article text missing paragraphs: %q", first.Text)
	}
	// Paragraphs after the next heading belong to the next unit.
	if strings.Contains(first.Text, "dieciséis años") {
		t.Errorf("first article absorbed the next article's text")
	}

	last := units[2]
	if last.Kind != models.KindDisposition {
		t.Errorf("expected disposition kind for %q, got %q", last.Label, last.Kind)
	}
	for i, u := range units {
		if u.Position != i {
			t.Errorf("unit %d has position %d", i, u.Position)
		}
	}
}

const boeContainerHTML = `<html><body>
<article id="art1">
  <h3>Artículo 1. Objeto</h3>
  <p>Esta ley tiene por objeto la protección de la propiedad intelectual.</p>
</article>
<article id="art2">
  <h3>Artículo 2. Contenido</h3>
  <p>La propiedad intelectual está integrada por derechos de carácter personal y patrimonial.</p>
  <p>Estos derechos atribuyen al autor la plena disposición de la obra.</p>
</article>
</body></html>`

func TestParseBOEContainerLayout(t *testing.T) {
	units := parseBOEContainerLayout(docFromHTML(t, boeContainerHTML))

	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Label != "Artículo 1. Objeto" {
		t.Errorf("unexpected label: %q", units[0].Label)
	}
	if strings.Count(units[1].Text, "\n") != 1 {
		t.Errorf("second article should join two paragraphs: %q", units[1].Text)
	}
}

func TestParseByHeadingsFallback(t *testing.T) {
	html := `<html><body>
<h2>Primera parte</h2>
<p>Texto de la primera parte.</p>
<h2>Segunda parte</h2>
<p>Texto de la segunda parte.</p>
</body></html>`

	units := parseByHeadings(docFromHTML(t, html))

	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Kind != models.KindSection {
		t.Errorf("fallback sections should have section kind, got %q", units[0].Kind)
	}
}

func TestCanonicalBOEURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		derived bool
	}{
		{
			url:     "https://www.boe.es/boe/dias/1985/08/05/pdfs/A24827-24829.pdf",
			want:    "https://www.boe.es/buscar/doc.php?id=BOE-A-1985-17303",
			derived: true,
		},
		{
			url:     "https://www.boe.es/diario_boe/txt.php?id=BOE-A-1985-17303&formato=pdf/extra",
			want:    "https://www.boe.es/diario_boe/txt.php?id=BOE-A-1985-17303&formato=pdf/extra",
			derived: false,
		},
		{
			url:     "https://www.boe.es/buscar/act.php?id=BOE-A-1985-17303",
			want:    "https://www.boe.es/buscar/act.php?id=BOE-A-1985-17303",
			derived: false,
		},
	}

	for _, tt := range tests {
		got, derived := canonicalBOEURL(tt.url, "BOE-A-1985-17303")
		if got != tt.want || derived != tt.derived {
			t.Errorf("canonicalBOEURL(%q) = (%q, %v), want (%q, %v)", tt.url, got, derived, tt.want, tt.derived)
		}
	}
}

func TestBOEMetadata(t *testing.T) {
	doc := docFromHTML(t, boeSiblingHTML)

	if got := boeTitle(doc); !strings.HasPrefix(got, "Real Decreto 1435/1985") {
		t.Errorf("unexpected title: %q", got)
	}
	if got := metaContent(doc, "DC.date", "fechaActualizacion"); got != "1985-08-01" {
		t.Errorf("unexpected date: %q", got)
	}
	if got := metaContent(doc, "DC.creator", "departamento"); got != "Ministerio de Trabajo" {
		t.Errorf("unexpected issuing body: %q", got)
	}
}

func TestCleanText(t *testing.T) {
	in := "  Artículo   1.\n\nObjeto \x00y fin  "
	want := "Artículo 1. Objeto y fin"
	if got := cleanText(in); got != want {
		t.Errorf("cleanText(%q) = %q, want %q", in, got, want)
	}
}

func TestFetchErrorPermanent(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{404, true},
		{410, true},
		{400, true},
		{403, true},
		{429, false},
		{500, false},
		{503, false},
		{0, false}, // transport error
	}

	for _, tt := range tests {
		fe := &FetchError{URL: "https://www.boe.es/x", StatusCode: tt.status}
		if got := fe.Permanent(); got != tt.want {
			t.Errorf("Permanent() with status %d = %v, want %v", tt.status, got, tt.want)
		}
	}
}
