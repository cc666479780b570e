package connectors

import (
	"strings"
	"testing"
)

func TestRulingCode(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://petete.tributos.hacienda.gob.es/consultas/?num_consulta=V0992-23", "V0992-23"},
		{"https://petete.tributos.hacienda.gob.es/consultas/V2456-19.html", "V2456-19"},
		{"https://petete.tributos.hacienda.gob.es/consultas/", ""},
		{"://bad url", ""},
	}

	for _, tt := range tests {
		if got := rulingCode(tt.url); got != tt.want {
			t.Errorf("rulingCode(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

const dgtRulingHTML = `<html><body>
<dl>
  <dt>Descripción de hechos</dt>
  <dd>El consultante es un músico que actúa esporádicamente en salas de conciertos.</dd>
  <dt>Cuestión planteada</dt>
  <dd>Si los ingresos obtenidos deben declararse como rendimientos de actividades económicas.</dd>
  <dt>Contestación completa</dt>
  <dd>Los rendimientos derivados de actuaciones musicales tienen la consideración de rendimientos de actividades económicas conforme al artículo 27 de la Ley 35/2006.</dd>
</dl>
</body></html>`

func TestParseRuling(t *testing.T) {
	consulta, contestacion := parseRuling(docFromHTML(t, dgtRulingHTML))

	if !strings.Contains(consulta, "músico") {
		t.Errorf("consulta missing the facts block: %q", consulta)
	}
	if !strings.Contains(consulta, "rendimientos de actividades económicas") {
		t.Errorf("consulta missing the question block: %q", consulta)
	}
	if !strings.Contains(contestacion, "artículo 27 de la Ley 35/2006") {
		t.Errorf("contestacion wrong: %q", contestacion)
	}
	if strings.Contains(contestacion, "esporádicamente") {
		t.Errorf("contestacion absorbed the facts block")
	}
}

func TestParseRulingFallbackWholeBody(t *testing.T) {
	html := `<html><body><p>Texto completo de la consulta sin estructura reconocible.</p></body></html>`

	consulta, contestacion := parseRuling(docFromHTML(t, html))

	if consulta != "" {
		t.Errorf("expected empty consulta, got %q", consulta)
	}
	if !strings.Contains(contestacion, "sin estructura reconocible") {
		t.Errorf("expected whole body as contestación, got %q", contestacion)
	}
}
