package connectors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"artelex-backend/models"

	"github.com/PuerkitoBio/goquery"
)

// EURLexConnector fetches documents from the EU Official Journal. It
// prefers the Spanish-language HTML rendering and extracts articles from
// the ELI subdivision containers.
type EURLexConnector struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewEURLexConnector creates a EUR-Lex connector.
func NewEURLexConnector(fetcher *Fetcher, logger *slog.Logger) *EURLexConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &EURLexConnector{fetcher: fetcher, logger: logger}
}

// spanishRendering rewrites a EUR-Lex URL to its Spanish-language variant
// when the language segment is recognisable. URLs without a language
// segment are left untouched; EUR-Lex content negotiation then honours the
// Accept-Language header the fetcher sends.
func spanishRendering(rawURL string) string {
	for _, lang := range []string{"/EN/", "/FR/", "/DE/", "/IT/", "/PT/"} {
		if strings.Contains(rawURL, lang) {
			return strings.Replace(rawURL, lang, "/ES/", 1)
		}
	}
	if strings.Contains(rawURL, "locale=") && !strings.Contains(rawURL, "locale=es") {
		return rawURL[:strings.Index(rawURL, "locale=")] + "locale=es"
	}
	return rawURL
}

// Fetch retrieves and parses one EUR-Lex document.
func (c *EURLexConnector) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	url := spanishRendering(req.URL)

	body, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	units := parseELISubdivisions(doc)
	if len(units) == 0 {
		units = parseByHeadings(doc)
	}

	c.logger.Info("parsed EUR-Lex document",
		"component", "connector_eurlex", "official_id", req.OfficialID,
		"stage", "parse", "units", len(units))

	return &FetchResult{
		RawHTML: body,
		Units:   units,
		Meta: DocMeta{
			Title: cleanText(doc.Find("p.oj-doc-ti, div.eli-main-title, title").First().Text()),
			CELEX: celexID(doc),
		},
	}, nil
}

// parseELISubdivisions extracts articles from the ELI rendering: each
// article is a div with data-type="article" (older renderings use the
// eli-subdivision class alone).
func parseELISubdivisions(doc *goquery.Document) []StructuralUnit {
	var units []StructuralUnit

	sel := doc.Find(`.eli-subdivision[data-type="article"]`)
	if sel.Length() == 0 {
		sel = doc.Find(`div.eli-subdivision[id^="art"]`)
	}

	sel.Each(func(i int, art *goquery.Selection) {
		label := cleanText(art.Find("p.oj-ti-art, p.ti-art, h2, h3").First().Text())
		var paras []string
		art.Find("p").Each(func(_ int, p *goquery.Selection) {
			if p.HasClass("oj-ti-art") || p.HasClass("ti-art") {
				return
			}
			if t := cleanText(p.Text()); t != "" {
				paras = append(paras, t)
			}
		})
		if label == "" || len(paras) == 0 {
			return
		}
		units = append(units, StructuralUnit{
			Kind:     models.KindArticle,
			Label:    label,
			Text:     strings.Join(paras, "\n"),
			Position: len(units),
		})
	})
	return units
}

// celexID pulls the CELEX identifier from page metadata, falling back to
// the hidden technical block some renderings embed.
func celexID(doc *goquery.Document) string {
	if v := metaContent(doc, "WT.z_docID", "DC.identifier"); v != "" {
		return v
	}
	return cleanText(doc.Find("#celexEntry, .DocumentTitle span.celex").First().Text())
}
