// Package mail renders task emails and delivers them over SMTP or to the log.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var builtinTemplates embed.FS

// Renderer holds the parsed message templates, keyed by file name without extension.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer loads the built-in templates and then any *.txt files in dir,
// which replace built-ins of the same name.
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	entries, err := builtinTemplates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		body, err := builtinTemplates.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := r.add(e.Name(), string(body)); err != nil {
			return nil, err
		}
	}

	if dir == "" {
		return r, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		body, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", f, err)
		}
		if err := r.add(filepath.Base(f), string(body)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Renderer) add(file, body string) error {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", file, err)
	}
	r.templates[name] = tmpl
	return nil
}

func (r *Renderer) Render(name string, data map[string]interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
