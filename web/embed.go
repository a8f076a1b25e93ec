// Package web holds the page templates and the browser glue that drives
// the map engine.
package web

import "embed"

//go:embed templates static
var FS embed.FS

// TemplatePatterns matches every page and fragment template in FS.
var TemplatePatterns = []string{"templates/*.html"}
