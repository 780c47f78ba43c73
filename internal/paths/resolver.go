// Package paths normalizes and validates the relative paths produced by
// template rendering, rejecting anything that would escape the output
// directory before a single filesystem call is made.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/zacfermanis/memory-banks/internal/template"
)

// ValidationError reports a structurally invalid path. It is never
// retried; the definition that produced it is reported and skipped.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Msg)
}

// Resolver renders path patterns and resolves them inside an output
// directory. All internal comparisons use forward slashes; platform
// separators are materialized only at I/O time.
type Resolver struct {
	renderer *template.Renderer
}

// NewResolver creates a resolver using the given renderer for path
// pattern substitution.
func NewResolver(renderer *template.Renderer) *Resolver {
	return &Resolver{renderer: renderer}
}

// Resolve renders pathPattern against vars and returns the absolute
// destination path. It fails when the normalized result is not a
// descendant of outputDir, or when the rendered path carries null
// bytes, control characters, or platform-reserved names. No filesystem
// access happens here; the check is purely lexical.
func (r *Resolver) Resolve(outputDir, pathPattern string, vars template.Bag) (string, error) {
	rendered, err := r.renderer.Render(pathPattern, vars)
	if err != nil {
		return "", err
	}
	return r.ResolveRendered(outputDir, rendered.Content)
}

// ResolveRendered resolves an already-rendered relative path.
func (r *Resolver) ResolveRendered(outputDir, rel string) (string, error) {
	if rel == "" {
		return "", &ValidationError{Path: rel, Msg: "empty path"}
	}
	if err := checkCharacters(rel); err != nil {
		return "", err
	}

	// Normalize to forward slashes and collapse '.' and '..'.
	normalized := path.Clean(strings.ReplaceAll(rel, "\\", "/"))

	if path.IsAbs(normalized) || hasVolumePrefix(normalized) {
		return "", &ValidationError{Path: rel, Msg: "absolute paths are not allowed"}
	}
	if normalized == ".." || strings.HasPrefix(normalized, "../") {
		return "", &ValidationError{Path: rel, Msg: "path escapes the output directory"}
	}
	if normalized == "." {
		return "", &ValidationError{Path: rel, Msg: "path resolves to the output directory itself"}
	}

	for _, segment := range strings.Split(normalized, "/") {
		if isReservedName(segment) {
			return "", &ValidationError{Path: rel, Msg: fmt.Sprintf("%q is a reserved name", segment)}
		}
	}

	base, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}

	return filepath.Join(base, filepath.FromSlash(normalized)), nil
}

// checkCharacters rejects null bytes and other control characters,
// which are invalid on at least one supported platform.
func checkCharacters(rel string) error {
	for _, r := range rel {
		if r == 0 {
			return &ValidationError{Path: rel, Msg: "null byte in path"}
		}
		if r < 0x20 || r == 0x7f {
			return &ValidationError{Path: rel, Msg: "control character in path"}
		}
	}
	return nil
}

// hasVolumePrefix detects Windows-style drive or UNC prefixes, which
// must be rejected on every platform for portability.
func hasVolumePrefix(p string) bool {
	if strings.HasPrefix(p, "//") {
		return true
	}
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	return false
}

// reservedNames are Windows device names, invalid as file names with or
// without an extension.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

func isReservedName(segment string) bool {
	name := strings.ToLower(segment)
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		name = name[:dot]
	}
	_, ok := reservedNames[name]
	return ok
}
