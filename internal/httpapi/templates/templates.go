// Package templates renders the diagnostics status page for browser
// clients of the httpapi server.
package templates

import (
	"embed"
	"html/template"
	"io"

	"clipbot/internal/models"
)

//go:embed status.html
var files embed.FS

var parsedTemplates = template.Must(template.ParseFS(files, "status.html"))

// StatusPageData is the view model fed to status.html.
type StatusPageData struct {
	PlaybackState string
	QueueLength   int
	ActiveSource  string
	Components    []models.ComponentHealth
}

// RenderStatusPage executes the status template against data.
func RenderStatusPage(w io.Writer, data StatusPageData) error {
	return parsedTemplates.ExecuteTemplate(w, "status.html", data)
}
