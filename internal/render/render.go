// Package render turns a validated metadata record into the files written
// next to a dataset: meta.md, meta.json and optionally meta.yaml.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/meta"
)

// DefaultTemplate is used when the configured template cannot be found.
const DefaultTemplate = "default.md.tmpl"

//go:embed templates/*.tmpl
var embedded embed.FS

// Artifact file names by output format.
var filenames = map[string]string{
	"markdown": "meta.md",
	"json":     "meta.json",
	"yaml":     "meta.yaml",
}

var funcs = template.FuncMap{
	"join": func(items []string, sep string) string { return strings.Join(items, sep) },
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
}

// Renderer produces artifacts from a metadata record.
type Renderer struct {
	dir      string
	template string
	log      *zap.Logger
}

// New builds a Renderer from the output config section.
func New(cfg config.Output, log *zap.Logger) *Renderer {
	name := cfg.DefaultTemplate
	if name == "" {
		name = DefaultTemplate
	}
	return &Renderer{dir: cfg.TemplateDir, template: name, log: log}
}

// SetTemplate selects the markdown template by file name.
func (r *Renderer) SetTemplate(name string) {
	if name != "" {
		r.template = name
	}
}

// Render produces one artifact per requested format. Unknown formats are
// skipped with a warning; an empty list means markdown and json.
func (r *Renderer) Render(md meta.Metadata, formats []string) (map[string]dataset.Artifact, error) {
	if len(formats) == 0 {
		formats = []string{"markdown", "json"}
	}

	out := make(map[string]dataset.Artifact, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "md" {
			f = "markdown"
		}

		var content []byte
		var err error
		switch f {
		case "markdown":
			content, err = r.markdown(md)
		case "json":
			content, err = dataset.MarshalJSON(md)
		case "yaml":
			content, err = yaml.Marshal(md)
		default:
			r.log.Warn("unknown output format", zap.String("format", f))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		out[f] = dataset.Artifact{Filename: filenames[f], Format: f, Content: content}
	}
	return out, nil
}

func (r *Renderer) markdown(md meta.Metadata) ([]byte, error) {
	name, src, err := r.load()
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, md); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// load finds the template source: the template directory first, then the
// embedded set, then the embedded default.
func (r *Renderer) load() (string, string, error) {
	if r.dir != "" {
		if data, err := os.ReadFile(filepath.Join(r.dir, r.template)); err == nil {
			return r.template, string(data), nil
		}
	}
	if data, err := embedded.ReadFile("templates/" + r.template); err == nil {
		return r.template, string(data), nil
	}
	r.log.Warn("template not found, using default", zap.String("template", r.template))
	data, err := embedded.ReadFile("templates/" + DefaultTemplate)
	if err != nil {
		return "", "", fmt.Errorf("read embedded default template: %w", err)
	}
	return DefaultTemplate, string(data), nil
}

// Templates lists the embedded template names.
func Templates() []string {
	entries, err := embedded.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
