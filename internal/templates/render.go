// Package templates renders HTML pages and Datastar SSE fragments.
package templates

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"sync"
)

// funcMap provides template functions.
var funcMap = template.FuncMap{
	// json renders v for a data-* attribute.
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// Renderer manages HTML page and fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
	fsys      fs.FS
	patterns  []string
}

// New parses every template matching patterns in fsys.
func New(fsys fs.FS, patterns ...string) (*Renderer, error) {
	tmpl, err := parse(fsys, patterns)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, fsys: fsys, patterns: patterns}, nil
}

func parse(fsys fs.FS, patterns []string) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, patterns...)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.Execute(buf, name, data)
}

// Execute renders a named template to w.
func (r *Renderer) Execute(w io.Writer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(w, name, data)
}

// Reload re-parses the templates from the same fs.FS. Paired with os.DirFS
// it picks up edits without a restart.
func (r *Renderer) Reload() error {
	tmpl, err := parse(r.fsys, r.patterns)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
