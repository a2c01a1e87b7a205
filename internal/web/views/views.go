package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

//go:embed layout.html pages/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	},
	"upper": func(v any) string {
		return strings.ToUpper(fmt.Sprint(v))
	},
}

// Engine renders the embedded pages. Pages under pages/ are wrapped in
// layout.html.
type Engine struct {
	templates map[string]*template.Template
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	layoutTmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	entries, err := fs.ReadDir(templatesFS, "pages")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		baseName := strings.TrimSuffix(name, path.Ext(name))
		file := path.Join("pages", name)

		tmpl, err := layoutTmpl.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.ParseFS(templatesFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		e.templates[baseName] = tmpl
	}

	return e, nil
}

// Render executes a page inside the layout
func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}
