package connectors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"artelex-backend/models"

	"github.com/PuerkitoBio/goquery"
)

// BOEConnector fetches documents from the Spanish Official Bulletin. Two
// HTML layouts coexist on boe.es: the classic doc.php rendering where an
// article heading is followed by sibling paragraphs, and the ELI rendering
// where each article lives in its own container element. The connector
// probes the sibling form first and falls back to the container form, then
// to heading-based sectioning.
type BOEConnector struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewBOEConnector creates a BOE connector.
func NewBOEConnector(fetcher *Fetcher, logger *slog.Logger) *BOEConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &BOEConnector{fetcher: fetcher, logger: logger}
}

var dispositionRe = regexp.MustCompile(`(?i)^disposici[oó]n`)

// canonicalBOEURL derives the doc.php HTML rendering for a PDF link. The
// official_id comes from the catalog entry, not from the URL: BOE PDF
// paths do not always carry it.
func canonicalBOEURL(rawURL, officialID string) (string, bool) {
	lower := strings.ToLower(rawURL)
	if strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "/pdf/") {
		return "https://www.boe.es/buscar/doc.php?id=" + officialID, true
	}
	return rawURL, false
}

// Fetch retrieves and parses one BOE document.
func (c *BOEConnector) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	url, derived := canonicalBOEURL(req.URL, req.OfficialID)
	if derived {
		c.logger.Info("derived canonical HTML URL for PDF source",
			"component", "connector_boe", "official_id", req.OfficialID, "url", url)
	}

	body, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	units := parseBOESiblingLayout(doc)
	layout := "sibling"
	if len(units) == 0 {
		units = parseBOEContainerLayout(doc)
		layout = "container"
	}
	if len(units) == 0 {
		units = parseByHeadings(doc)
		layout = "headings"
	}

	c.logger.Info("parsed BOE document",
		"component", "connector_boe", "official_id", req.OfficialID,
		"stage", "parse", "layout", layout, "units", len(units))

	return &FetchResult{
		RawHTML: body,
		Units:   units,
		Meta: DocMeta{
			Title:           boeTitle(doc),
			PublicationDate: metaContent(doc, "DC.date", "fechaActualizacion"),
			IssuingBody:     metaContent(doc, "DC.creator", "departamento"),
		},
	}, nil
}

// parseBOESiblingLayout handles the doc.php format: article headings are
// h3/h4/h5 elements with class "articulo"; the body is the run of sibling
// <p class="parrafo"> elements up to the next article heading.
func parseBOESiblingLayout(doc *goquery.Document) []StructuralUnit {
	const headingSel = "h3.articulo, h4.articulo, h5.articulo"

	var units []StructuralUnit
	doc.Find(headingSel).Each(func(i int, h *goquery.Selection) {
		label := cleanText(h.Text())
		var paras []string
		h.NextUntil(headingSel).Each(func(_ int, sib *goquery.Selection) {
			if sib.Is("p.parrafo, p.parrafo_2") {
				if t := cleanText(sib.Text()); t != "" {
					paras = append(paras, t)
				}
			}
		})
		if label == "" || len(paras) == 0 {
			return
		}
		units = append(units, StructuralUnit{
			Kind:     unitKindForLabel(label),
			Label:    label,
			Text:     strings.Join(paras, "\n"),
			Position: len(units),
		})
	})
	return units
}

// parseBOEContainerLayout handles the ELI format: each article is an
// <article id="art..."> container with the heading and paragraphs nested
// inside it.
func parseBOEContainerLayout(doc *goquery.Document) []StructuralUnit {
	var units []StructuralUnit
	doc.Find(`article[id^="art"], div[id^="art"]`).Each(func(i int, art *goquery.Selection) {
		label := cleanText(art.Find("h1, h2, h3, h4, h5, h6").First().Text())
		var paras []string
		art.Find("p").Each(func(_ int, p *goquery.Selection) {
			if t := cleanText(p.Text()); t != "" && t != label {
				paras = append(paras, t)
			}
		})
		if label == "" || len(paras) == 0 {
			return
		}
		units = append(units, StructuralUnit{
			Kind:     unitKindForLabel(label),
			Label:    label,
			Text:     strings.Join(paras, "\n"),
			Position: len(units),
		})
	})
	return units
}

// parseByHeadings is the last-resort sectioning: any h2/h3/h4 heading
// opens a section that runs to the next heading.
func parseByHeadings(doc *goquery.Document) []StructuralUnit {
	const headingSel = "h2, h3, h4"

	var units []StructuralUnit
	doc.Find(headingSel).Each(func(i int, h *goquery.Selection) {
		label := cleanText(h.Text())
		var paras []string
		h.NextUntil(headingSel).Each(func(_ int, sib *goquery.Selection) {
			if sib.Is("p") {
				if t := cleanText(sib.Text()); t != "" {
					paras = append(paras, t)
				}
			}
		})
		if label == "" || len(paras) == 0 {
			return
		}
		units = append(units, StructuralUnit{
			Kind:     models.KindSection,
			Label:    label,
			Text:     strings.Join(paras, "\n"),
			Position: len(units),
		})
	})
	return units
}

func unitKindForLabel(label string) models.ChunkKind {
	if dispositionRe.MatchString(label) {
		return models.KindDisposition
	}
	return models.KindArticle
}

func boeTitle(doc *goquery.Document) string {
	if t := cleanText(doc.Find("h1.documento-tit, h2.documento-tit").First().Text()); t != "" {
		return t
	}
	return cleanText(doc.Find("title").First().Text())
}

func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		if v, ok := doc.Find(`meta[name="` + name + `"]`).First().Attr("content"); ok && v != "" {
			return v
		}
	}
	return ""
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// cleanText collapses whitespace and strips control bytes from extracted
// text.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 || (r < 0x20 && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
