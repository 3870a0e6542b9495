package report

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/seaward/tidereport/internal/models"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

//go:embed assets/logo.png
var logoPNG []byte

// The logo travels inside every message, so a stable cid is fine.
const logoContentID = "<logo@tidereport>"

// Report is one rendered run: an HTML body, a plain-text alternative,
// and the inline images the HTML references by cid.
type Report struct {
	HTML      string
	PlainText string
	Logo      models.MapImage
	Stations  []*models.Station
}

type templateData struct {
	Logo     models.MapImage
	Stations []*models.Station
}

// cid strips the angle brackets a content id carries in message headers;
// HTML references use the bare form.
func cid(contentID string) string {
	return strings.Trim(contentID, "<>")
}

// Render produces the report for a set of hydrated stations.
func Render(stations []*models.Station) (*Report, error) {
	logo := models.MapImage{Bytes: logoPNG, ContentID: logoContentID}

	tmpl, err := template.New("report.html.tmpl").
		Funcs(template.FuncMap{"cid": cid}).
		ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}

	var html strings.Builder
	data := templateData{Logo: logo, Stations: stations}
	if err := tmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	return &Report{
		HTML:      html.String(),
		PlainText: plainText(stations),
		Logo:      logo,
		Stations:  stations,
	}, nil
}

// plainText is the HTML-free alternative body.
func plainText(stations []*models.Station) string {
	var b strings.Builder
	for i, station := range stations {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "ID# %s: %s (%.6f, %.6f)",
			station.ExternalID, station.Name, station.Latitude, station.Longitude)
		for _, tide := range station.Tides {
			b.WriteString("\n\t")
			b.WriteString(tide.String())
		}
	}
	return b.String()
}
