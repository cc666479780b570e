// Package search implements hybrid retrieval: vector plus lexical search
// fused by Reciprocal Rank Fusion, reranked by legal-authority weight, and
// bucketed by the Normativa → Doctrina → Jurisprudencia hierarchy. It also
// hosts the keyword intent classifier that routes queries to a legal area.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Legal areas the classifier can route to.
const (
	AreaFiscal               = "Fiscal"
	AreaLaboral              = "Laboral"
	AreaPropiedadIntelectual = "Propiedad Intelectual"
	AreaContabilidad         = "Contabilidad"
	AreaSubvenciones         = "Subvenciones"
	AreaSocietario           = "Societario"
	AreaAdministrativo       = "Administrativo"
)

// areaKeywords maps each area to its curated Spanish keyword list. Matches
// are prefix/substring, case- and accent-insensitive, so entries are stored
// folded (lowercase, no accents).
var areaKeywords = map[string][]string{
	AreaFiscal: {
		"irpf", "iva", "impuesto", "hacienda", "deduccion", "deducir",
		"retencion", "declaracion", "tributacion", "tributar", "fiscal",
		"gastos deducibles", "modelo 130", "modelo 303", "modelo 036",
		"epigrafe", "estimacion directa", "estimacion objetiva", "factura",
		"exencion", "autonomo", "cuota", "base imponible", "renta",
	},
	AreaLaboral: {
		"contrato", "laboral", "seguridad social", "cotizacion", "cotizar",
		"alta", "baja", "despido", "indemnizacion", "nomina", "salario",
		"convenio colectivo", "jornada", "vacaciones", "reta",
		"regimen de artistas", "intermitencia", "prestacion", "desempleo",
		"paro", "jubilacion", "incapacidad", "empleador",
	},
	AreaPropiedadIntelectual: {
		"derechos de autor", "propiedad intelectual", "copyright", "obra",
		"autoria", "plagio", "licencia", "cesion", "royalties", "regalias",
		"sgae", "vegap", "cedro", "explotacion", "reproduccion",
		"comunicacion publica", "transformacion", "dominio publico",
		"registro de la propiedad", "canon", "remuneracion compensatoria",
	},
	AreaContabilidad: {
		"contabilidad", "libro registro", "asiento", "balance",
		"cuenta de resultados", "amortizacion", "inmovilizado", "ingresos",
		"gastos", "facturacion", "libro de ventas", "libro de compras",
		"plan general contable", "ejercicio contable", "inventario",
		"provision", "partida",
	},
	AreaSubvenciones: {
		"subvencion", "ayuda", "beca", "convocatoria", "solicitud",
		"justificacion", "reintegro", "bases reguladoras", "concesion",
		"beneficiario", "fondo", "financiacion", "patrocinio", "mecenazgo",
		"residencia artistica", "inaem", "ayuntamiento", "comunidad autonoma",
	},
	AreaSocietario: {
		"sociedad", "cooperativa", "asociacion", "fundacion", "estatutos",
		"constitucion de sociedad", "socio", "participacion",
		"responsabilidad limitada", "mercantil", "registro mercantil",
		"administrador", "junta", "capital social", "disolucion",
		"entidad sin animo de lucro",
	},
	AreaAdministrativo: {
		"licencia de actividad", "permiso", "tasa", "procedimiento",
		"recurso de alzada", "recurso de reposicion", "administracion",
		"registro", "certificado", "espacio publico", "via publica",
		"ocupacion", "expediente", "silencio administrativo", "plazo",
		"notificacion", "sancion",
	},
}

// spanishStopwords used by ExtractKeywords.
var spanishStopwords = map[string]bool{
	"para": true, "como": true, "pero": true, "este": true, "esta": true,
	"estos": true, "estas": true, "donde": true, "cuando": true, "sobre": true,
	"entre": true, "desde": true, "hasta": true, "puedo": true, "puede": true,
	"tengo": true, "tiene": true, "hacer": true, "quiero": true, "saber": true,
	"necesito": true, "debo": true, "debe": true, "sido": true, "haber": true,
	"estar": true, "porque": true, "aunque": true, "mucho": true, "poco": true,
	"todo": true, "todos": true, "cada": true, "unos": true, "unas": true,
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips accents so "deducción" matches "deduccion".
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Classifier routes a query to a legal area by keyword score.
type Classifier struct{}

// NewClassifier creates an intent classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the area whose keywords score highest against the
// query, or "" when no keyword matches. Sub-millisecond, no external calls.
func (c *Classifier) Classify(query string) string {
	folded := fold(query)

	best := ""
	bestScore := 0
	for _, area := range []string{
		AreaFiscal, AreaLaboral, AreaPropiedadIntelectual, AreaContabilidad,
		AreaSubvenciones, AreaSocietario, AreaAdministrativo,
	} {
		score := 0
		for _, kw := range areaKeywords[area] {
			if strings.Contains(folded, kw) {
				score++
			}
		}
		if score > bestScore {
			best = area
			bestScore = score
		}
	}
	return best
}

// ExtractKeywords tokenises a query, folds case and accents, drops common
// Spanish stopwords and tokens shorter than 4 characters. Debugging aid
// only; the query pipeline consumes Classify.
func (c *Classifier) ExtractKeywords(query string) []string {
	var out []string
	for _, tok := range strings.Fields(fold(query)) {
		tok = strings.Trim(tok, ".,;:¿?¡!()\"'")
		if len([]rune(tok)) < 4 || spanishStopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// greetingTerms are pure-greeting markers for the chat short-circuit.
var greetingTerms = []string{
	"hola", "buenas", "buenos dias", "buenas tardes", "buenas noches",
	"que tal", "saludos", "hey", "gracias",
}

// IsGreeting reports whether a query is a pure greeting with no legal
// content. Used to skip retrieval and generation entirely.
func (c *Classifier) IsGreeting(query string) bool {
	folded := fold(query)
	if c.Classify(query) != "" {
		return false
	}
	for _, g := range greetingTerms {
		if strings.Contains(folded, g) {
			return true
		}
	}
	return false
}
