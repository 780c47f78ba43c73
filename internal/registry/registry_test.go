package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zacfermanis/memory-banks/internal/template"
)

func TestLoad(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"minimal", "standard"}, r.IDs())

	list := r.List()
	require.Len(t, list, 2)
	for _, tmpl := range list {
		assert.NotEmpty(t, tmpl.Name, tmpl.ID)
		assert.NotEmpty(t, tmpl.Description, tmpl.ID)
		assert.NotEmpty(t, tmpl.Files, tmpl.ID)
	}
}

func TestGet(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	tmpl, err := r.Get("standard")
	require.NoError(t, err)
	assert.Equal(t, "standard", tmpl.ID)
	assert.Len(t, tmpl.Files, 6)

	_, err = r.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestEmbeddedTemplatesValidate(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	renderer := template.NewRenderer()
	for _, tmpl := range r.List() {
		for _, f := range tmpl.Files {
			assert.NoError(t, renderer.Validate(f.Path), "%s: %s", tmpl.ID, f.Path)
			assert.NoError(t, renderer.Validate(f.Content), "%s: %s", tmpl.ID, f.Path)
		}
	}
}

func TestVariables(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	tmpl, err := r.Get("standard")
	require.NoError(t, err)

	vars := tmpl.Variables(template.Bag{
		"project": template.Map(map[string]template.Value{
			"name": template.String("demo"),
		}),
	})

	dir, ok := vars.Lookup("bank.dir")
	require.True(t, ok)
	assert.Equal(t, "memory-bank", dir.String())

	name, ok := vars.Lookup("project.name")
	require.True(t, ok)
	assert.Equal(t, "demo", name.String())

	flag, ok := vars.Lookup("includeProgress")
	require.True(t, ok)
	assert.True(t, flag.Truthy())
}
