package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitution(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name     string
		pattern  string
		vars     Bag
		expected string
	}{
		{
			name:     "simple substitution",
			pattern:  "Hello {{name}}!",
			vars:     Bag{"name": String("World")},
			expected: "Hello World!",
		},
		{
			name:     "missing variable left verbatim",
			pattern:  "Hello {{name}}!",
			vars:     Bag{},
			expected: "Hello {{name}}!",
		},
		{
			name:     "whitespace inside marker",
			pattern:  "Hello {{ name }}!",
			vars:     Bag{"name": String("World")},
			expected: "Hello World!",
		},
		{
			name:    "nested map lookup",
			pattern: "{{project.name}} v{{project.version}}",
			vars: Bag{"project": Map(map[string]Value{
				"name":    String("membank"),
				"version": String("1.2.0"),
			})},
			expected: "membank v1.2.0",
		},
		{
			name:     "list index lookup",
			pattern:  "first: {{langs.0}}",
			vars:     Bag{"langs": List(String("go"), String("ts"))},
			expected: "first: go",
		},
		{
			name:     "missing leaf left verbatim",
			pattern:  "{{project.license}}",
			vars:     Bag{"project": Map(map[string]Value{"name": String("x")})},
			expected: "{{project.license}}",
		},
		{
			name:     "number renders without trailing zeros",
			pattern:  "{{count}}",
			vars:     Bag{"count": Number(42)},
			expected: "42",
		},
		{
			name:     "null renders empty",
			pattern:  "[{{nothing}}]",
			vars:     Bag{"nothing": Null()},
			expected: "[]",
		},
		{
			name:     "non-path expression left verbatim",
			pattern:  "{{a + b}}",
			vars:     Bag{"a": Number(1)},
			expected: "{{a + b}}",
		},
		{
			name:     "lone braces pass through",
			pattern:  "func() { return }",
			vars:     Bag{},
			expected: "func() { return }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Render(tt.pattern, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Content)
			assert.False(t, result.CacheHit)
		})
	}
}

func TestRenderBlocks(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name     string
		pattern  string
		vars     Bag
		expected string
	}{
		{
			name:     "if truthy",
			pattern:  "{% if ready %}go{% endif %}",
			vars:     Bag{"ready": Bool(true)},
			expected: "go",
		},
		{
			name:     "if falsy bool",
			pattern:  "{% if ready %}go{% endif %}",
			vars:     Bag{"ready": Bool(false)},
			expected: "",
		},
		{
			name:     "if undefined is falsy",
			pattern:  "a{% if missing %}b{% endif %}c",
			vars:     Bag{},
			expected: "ac",
		},
		{
			name:     "if zero is falsy",
			pattern:  "{% if count %}some{% endif %}",
			vars:     Bag{"count": Number(0)},
			expected: "",
		},
		{
			name:     "if empty string is falsy",
			pattern:  "{% if title %}t{% endif %}",
			vars:     Bag{"title": String("")},
			expected: "",
		},
		{
			name:     "if null is falsy",
			pattern:  "{% if v %}t{% endif %}",
			vars:     Bag{"v": Null()},
			expected: "",
		},
		{
			name:    "for exposes item and loop",
			pattern: "{% for lang in langs %}{{loop.index}}:{{lang}}{% if loop.last %}.{% endif %} {% endfor %}",
			vars: Bag{
				"langs": List(String("go"), String("ts"), String("py")),
			},
			expected: "1:go 2:ts 3:py. ",
		},
		{
			name:     "for over missing collection renders nothing",
			pattern:  "[{% for x in xs %}{{x}}{% endfor %}]",
			vars:     Bag{},
			expected: "[]",
		},
		{
			name:    "nested for and if",
			pattern: "{% for m in modules %}{% if m.enabled %}{{m.name}};{% endif %}{% endfor %}",
			vars: Bag{
				"modules": List(
					Map(map[string]Value{"name": String("core"), "enabled": Bool(true)}),
					Map(map[string]Value{"name": String("extra"), "enabled": Bool(false)}),
					Map(map[string]Value{"name": String("docs"), "enabled": Bool(true)}),
				),
			},
			expected: "core;docs;",
		},
		{
			name:    "interleaved same-named blocks",
			pattern: "{% if a %}1{% if a %}2{% endif %}3{% endif %}",
			vars:    Bag{"a": Bool(true)},
			expected: "123",
		},
		{
			name:    "nested loops with shadowed loop variable",
			pattern: "{% for row in grid %}{% for cell in row %}{{cell}}{% if loop.last %}|{% endif %}{% endfor %}{% endfor %}",
			vars: Bag{
				"grid": List(
					List(String("a"), String("b")),
					List(String("c")),
				),
			},
			expected: "ab|c|",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Render(tt.pattern, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Content)
		})
	}
}

func TestRenderUnterminatedMarkers(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name    string
		pattern string
	}{
		{"unterminated variable", "Hello {{name"},
		{"unterminated block", "{% if ready %}go{% endif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(tt.pattern, Bag{})
			require.Error(t, err)
			var rerr *RenderError
			assert.ErrorAs(t, err, &rerr)
		})
	}
}

func TestRenderUnclosedBlockIsLenient(t *testing.T) {
	// Unclosed blocks are a validation-time problem; render treats the
	// rest of the input as the block body.
	r := NewRenderer()

	result, err := r.Render("{% if ready %}go", Bag{"ready": Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, "go", result.Content)
}

func TestValidate(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"valid pattern", "{% for x in xs %}{{x}}{% endfor %}", false},
		{"plain text", "nothing to see", false},
		{"unclosed if", "{% if ready %}go", true},
		{"unclosed for", "{% for x in xs %}{{x}}", true},
		{"mismatched end", "{% if a %}x{% endfor %}", true},
		{"stray endif", "x{% endif %}", true},
		{"unterminated marker", "{{name", true},
		{"unknown tag", "{% include other %}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRenderDeterminism(t *testing.T) {
	r := NewRenderer()
	vars := Bag{
		"name":    String("demo"),
		"modules": List(String("a"), String("b")),
		"meta":    Map(map[string]Value{"x": Number(1), "y": Number(2)}),
	}
	pattern := "{{name}}: {{meta}} {% for m in modules %}{{m}}{% endfor %}"

	first, err := r.Render(pattern, vars)
	require.NoError(t, err)
	second, err := r.Render(pattern, vars)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
}
