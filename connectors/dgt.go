package connectors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"artelex-backend/models"

	"github.com/PuerkitoBio/goquery"
)

// DGTConnector fetches binding tax rulings (consultas vinculantes) from
// the Dirección General de Tributos database. Rulings are short; each one
// yields exactly two chunks, the question (consulta) and the answer
// (contestación).
type DGTConnector struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewDGTConnector creates a DGT connector.
func NewDGTConnector(fetcher *Fetcher, logger *slog.Logger) *DGTConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DGTConnector{fetcher: fetcher, logger: logger}
}

// Ruling codes look like V0992-23 or V2456-19.
var rulingCodeRe = regexp.MustCompile(`V\d{4}-\d{2}`)

// rulingCode extracts the ruling code from the URL path.
func rulingCode(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return rulingCodeRe.FindString(parsed.Path + "?" + parsed.RawQuery)
}

// Fetch retrieves and parses one DGT ruling.
func (c *DGTConnector) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	body, err := c.fetcher.Get(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	code := rulingCode(req.URL)
	if code == "" {
		code = req.OfficialID
	}

	consulta, contestacion := parseRuling(doc)

	var units []StructuralUnit
	if consulta != "" {
		units = append(units, StructuralUnit{
			Kind:     models.KindConsulta,
			Label:    "Consulta " + code,
			Text:     consulta,
			Position: 0,
		})
	}
	if contestacion != "" {
		units = append(units, StructuralUnit{
			Kind:     models.KindContestacion,
			Label:    "Contestación " + code,
			Text:     contestacion,
			Position: len(units),
		})
	}

	c.logger.Info("parsed DGT ruling",
		"component", "connector_dgt", "official_id", req.OfficialID,
		"stage", "parse", "ruling_code", code, "units", len(units))

	return &FetchResult{
		RawHTML: body,
		Units:   units,
		Meta: DocMeta{
			Title:       "Consulta vinculante " + code,
			IssuingBody: "Dirección General de Tributos",
		},
	}, nil
}

// parseRuling splits a ruling page into the question and answer bodies.
// The DGT rendering labels the two blocks with field headings; when those
// are missing the whole body becomes the contestación and the normaliser
// handles the single-chunk case.
func parseRuling(doc *goquery.Document) (consulta, contestacion string) {
	// Field-labelled layout: dt/dd or th/td pairs.
	doc.Find("dt, th, p strong, span.campo").Each(func(_ int, s *goquery.Selection) {
		heading := strings.ToLower(cleanText(s.Text()))
		var value string
		switch {
		case s.Is("dt"):
			value = cleanText(s.Next().Text())
		case s.Is("th"):
			value = cleanText(s.Parent().Find("td").Text())
		default:
			value = cleanText(s.Parent().NextUntil("p:has(strong)").Text())
			if value == "" {
				value = cleanText(s.Parent().Next().Text())
			}
		}
		switch {
		case strings.Contains(heading, "cuestión") || strings.Contains(heading, "descripción"):
			if consulta == "" {
				consulta = value
			} else if value != "" {
				consulta += "\n" + value
			}
		case strings.Contains(heading, "contestación"):
			if contestacion == "" {
				contestacion = value
			}
		}
	})

	if consulta == "" && contestacion == "" {
		contestacion = cleanText(doc.Find("body").Text())
	}
	return consulta, contestacion
}
