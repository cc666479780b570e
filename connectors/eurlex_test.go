package connectors

import (
	"strings"
	"testing"
)

func TestSpanishRendering(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{
			url:  "https://eur-lex.europa.eu/legal-content/EN/TXT/?uri=CELEX:32019L0790",
			want: "https://eur-lex.europa.eu/legal-content/ES/TXT/?uri=CELEX:32019L0790",
		},
		{
			url:  "https://eur-lex.europa.eu/legal-content/FR/TXT/HTML/?uri=CELEX:32019L0790",
			want: "https://eur-lex.europa.eu/legal-content/ES/TXT/HTML/?uri=CELEX:32019L0790",
		},
		{
			url:  "https://eur-lex.europa.eu/legal-content/ES/TXT/?uri=CELEX:32019L0790",
			want: "https://eur-lex.europa.eu/legal-content/ES/TXT/?uri=CELEX:32019L0790",
		},
		{
			url:  "https://eur-lex.europa.eu/eli/dir/2019/790/oj?locale=en",
			want: "https://eur-lex.europa.eu/eli/dir/2019/790/oj?locale=es",
		},
	}

	for _, tt := range tests {
		if got := spanishRendering(tt.url); got != tt.want {
			t.Errorf("spanishRendering(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

const eurlexELIHTML = `<html><head>
<meta name="WT.z_docID" content="32019L0790">
<title>Directiva (UE) 2019/790</title>
</head><body>
<p class="oj-doc-ti">Directiva (UE) 2019/790 sobre los derechos de autor en el mercado único digital</p>
<div class="eli-subdivision" data-type="article" id="art_1">
  <p class="oj-ti-art">Artículo 1</p>
  <p>La presente Directiva establece normas sobre los derechos de autor en el mercado único digital.</p>
</div>
<div class="eli-subdivision" data-type="article" id="art_2">
  <p class="oj-ti-art">Artículo 2</p>
  <p>A efectos de la presente Directiva se entenderá por organismo de investigación una entidad sin ánimo de lucro.</p>
  <p>Los prestadores de servicios quedan definidos en el apartado 6.</p>
</div>
</body></html>`

func TestParseELISubdivisions(t *testing.T) {
	units := parseELISubdivisions(docFromHTML(t, eurlexELIHTML))

	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Label != "Artículo 1" {
		t.Errorf("unexpected label: %q", units[0].Label)
	}
	// The article title paragraph is the label, not body text.
	if strings.Contains(units[0].Text, "Artículo 1") {
		t.Errorf("label leaked into text: %q", units[0].Text)
	}
	if !strings.Contains(units[1].Text, "organismo de investigación") {
		t.Errorf("second article text wrong: %q", units[1].Text)
	}
}

func TestParseELISubdivisionsLegacyIDs(t *testing.T) {
	html := `<html><body>
<div class="eli-subdivision" id="art_3">
  <h2>Artículo 3. Minería de textos y datos</h2>
  <p>Los Estados miembros establecerán una excepción a los derechos.</p>
</div>
</body></html>`

	units := parseELISubdivisions(docFromHTML(t, html))

	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].Label != "Artículo 3. Minería de textos y datos" {
		t.Errorf("unexpected label: %q", units[0].Label)
	}
}

func TestCELEXID(t *testing.T) {
	if got := celexID(docFromHTML(t, eurlexELIHTML)); got != "32019L0790" {
		t.Errorf("celexID = %q, want 32019L0790", got)
	}
}
