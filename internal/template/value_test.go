package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{
		"name":  "demo",
		"count": 3,
		"ratio": 0.5,
		"on":    true,
		"none":  nil,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"owner": "me"},
	})

	require.Equal(t, KindMap, v.Kind())

	name, ok := v.Get("name")
	require.True(t, ok)
	assert.Equal(t, "demo", name.String())

	count, _ := v.Get("count")
	assert.Equal(t, KindNumber, count.Kind())
	assert.Equal(t, "3", count.String())

	none, _ := v.Get("none")
	assert.True(t, none.IsNull())

	tags, _ := v.Get("tags")
	assert.Equal(t, 2, tags.Len())

	meta, _ := v.Get("meta")
	owner, ok := meta.Get("owner")
	require.True(t, ok)
	assert.Equal(t, "me", owner.String())
}

func TestLookup(t *testing.T) {
	bag := Bag{
		"project": Map(map[string]Value{
			"name": String("demo"),
			"contributors": List(
				Map(map[string]Value{"name": String("ada")}),
				Map(map[string]Value{"name": String("alan")}),
			),
		}),
		"flag": Bool(true),
	}

	tests := []struct {
		path     string
		found    bool
		expected string
	}{
		{"project.name", true, "demo"},
		{"project.contributors.1.name", true, "alan"},
		{"project.contributors.2.name", false, ""},
		{"project.missing", false, ""},
		{"flag", true, "true"},
		{"flag.nested", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			val, ok := bag.Lookup(tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.expected, val.String())
			}
		})
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		truthy bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Number(0), false},
		{"nonzero", Number(-1), true},
		{"empty string", String(""), false},
		{"string", String("x"), true},
		{"empty list", List(), true},
		{"list", List(Number(1)), true},
		{"map", Map(map[string]Value{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.truthy, tt.value.Truthy())
		})
	}
}

func TestBagSet(t *testing.T) {
	bag := Bag{
		"project": Map(map[string]Value{"name": String("old"), "lang": String("go")}),
	}

	bag.Set("project.name", String("new"))
	bag.Set("project.meta.year", Number(2026))
	bag.Set("flag", Bool(true))

	name, ok := bag.Lookup("project.name")
	require.True(t, ok)
	assert.Equal(t, "new", name.String())

	// Sibling keys survive a nested Set.
	lang, ok := bag.Lookup("project.lang")
	require.True(t, ok)
	assert.Equal(t, "go", lang.String())

	year, ok := bag.Lookup("project.meta.year")
	require.True(t, ok)
	assert.Equal(t, "2026", year.String())

	flag, ok := bag.Lookup("flag")
	require.True(t, ok)
	assert.True(t, flag.Truthy())
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := Bag{"x": Number(1), "y": String("s"), "z": List(Bool(true))}
	b := Bag{"z": List(Bool(true)), "y": String("s"), "x": Number(1)}
	assert.Equal(t, a.canonical(), b.canonical())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "1.5", Number(1.5).String())
	assert.Equal(t, "100", Number(100).String())
	assert.Equal(t, `["a", "b"]`, List(String("a"), String("b")).String())
	assert.Equal(t, `{"a": 1, "b": null}`,
		Map(map[string]Value{"b": Null(), "a": Number(1)}).String())
}
