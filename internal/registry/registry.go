// Package registry holds the built-in memory bank templates. Templates
// are YAML documents embedded into the binary; each one describes the
// directories and files a generation run materializes.
package registry

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/zacfermanis/memory-banks/internal/pipeline"
	"github.com/zacfermanis/memory-banks/internal/template"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// Template is one installable memory bank layout.
type Template struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Defaults    map[string]any            `yaml:"defaults,omitempty"`
	Directories []string                  `yaml:"directories,omitempty"`
	Files       []pipeline.FileDefinition `yaml:"files"`
}

// Registry indexes the embedded templates by ID.
type Registry struct {
	templates map[string]*Template
}

// Load parses every embedded template. A malformed embedded template is
// a build defect, so errors here abort the caller.
func Load() (*Registry, error) {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("reading embedded templates: %w", err)
	}

	r := &Registry{templates: make(map[string]*Template, len(entries))}
	for _, entry := range entries {
		data, err := templatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", entry.Name(), err)
		}

		var tmpl Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}
		if tmpl.ID == "" {
			return nil, fmt.Errorf("template %s has no id", entry.Name())
		}
		if _, dup := r.templates[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", tmpl.ID)
		}
		r.templates[tmpl.ID] = &tmpl
	}
	return r, nil
}

// Variables converts the template's defaults into a variable bag.
// Caller-supplied variables are merged on top, overriding defaults at
// the top level.
func (t *Template) Variables(overrides template.Bag) template.Bag {
	bag := template.BagFromAny(t.Defaults)
	for k, v := range overrides {
		bag[k] = v
	}
	return bag
}

// Get returns the template with the given ID.
func (r *Registry) Get(id string) (*Template, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("unknown template %q (available: %v)", id, r.IDs())
	}
	return tmpl, nil
}

// IDs returns all template IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all templates in ID order.
func (r *Registry) List() []*Template {
	list := make([]*Template, 0, len(r.templates))
	for _, id := range r.IDs() {
		list = append(list, r.templates[id])
	}
	return list
}
