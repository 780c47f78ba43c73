package template

import (
	"fmt"
	"strings"
	"time"
)

// RenderResult carries rendered content plus render metadata.
type RenderResult struct {
	Content  string
	Duration time.Duration
	CacheHit bool
}

// RenderError reports malformed template syntax. Only unterminated
// marker pairs produce one at render time; unclosed blocks are reported
// by Validate instead.
type RenderError struct {
	Offset int
	Msg    string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Renderer renders path and content patterns against a variable bag.
//
// The language is deliberately small: `{{dotted.path}}` substitution,
// `{% if expr %}…{% endif %}` truthiness blocks and
// `{% for item in collection %}…{% endfor %}` loops. Unknown variables
// are left as the literal placeholder so partial bags degrade visibly.
type Renderer struct {
	cache *Cache
}

// NewRenderer creates a renderer without a cache.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// NewRendererWithCache creates a renderer backed by the given cache.
// The cache is an explicit collaborator with its own lifecycle; renderers
// never share hidden global state.
func NewRendererWithCache(c *Cache) *Renderer {
	return &Renderer{cache: c}
}

// Render renders pattern against vars. A cache hit returns content
// byte-identical to a fresh render.
func (r *Renderer) Render(pattern string, vars Bag) (RenderResult, error) {
	start := time.Now()

	var key string
	if r.cache != nil {
		key = cacheKey(pattern, vars)
		if content, ok := r.cache.get(key); ok {
			return RenderResult{Content: content, Duration: time.Since(start), CacheHit: true}, nil
		}
	}

	nodes, err := parse(pattern, false)
	if err != nil {
		return RenderResult{}, err
	}

	var sb strings.Builder
	renderNodes(&sb, nodes, vars)
	content := sb.String()

	if r.cache != nil {
		r.cache.put(key, content)
	}

	return RenderResult{Content: content, Duration: time.Since(start)}, nil
}

// Validate checks pattern for syntax problems without rendering it.
// Unlike Render, unclosed and mismatched blocks are errors here.
func (r *Renderer) Validate(pattern string) error {
	_, err := parse(pattern, true)
	return err
}

// node kinds

type node interface{ isNode() }

type textNode string

type substNode struct {
	raw  string // original marker text, emitted verbatim on a missing path
	path string // empty when the expression is not a dotted path
}

type ifNode struct {
	path string
	body []node
}

type forNode struct {
	item string
	path string
	body []node
}

func (textNode) isNode()  {}
func (substNode) isNode() {}
func (*ifNode) isNode()   {}
func (*forNode) isNode()  {}

// blockFrame tracks one open block on the parse stack. The stack is
// keyed by nesting position, so interleaved blocks over the same path
// never collide.
type blockFrame struct {
	tag    string // "if" or "for"
	node   node
	body   *[]node
	offset int
}

// parse tokenizes and builds the node tree. In strict mode (Validate)
// unclosed and mismatched blocks are errors; in render mode unclosed
// blocks are implicitly closed at end of input and mismatched end tags
// pass through as literal text.
func parse(pattern string, strict bool) ([]node, error) {
	root := make([]node, 0, 4)
	stack := []blockFrame{}
	current := &root

	pos := 0
	for pos < len(pattern) {
		next := strings.IndexAny(pattern[pos:], "{")
		if next < 0 {
			*current = append(*current, textNode(pattern[pos:]))
			break
		}
		next += pos

		marker := ""
		if next+1 < len(pattern) {
			marker = pattern[next : next+2]
		}
		if marker != "{{" && marker != "{%" {
			*current = append(*current, textNode(pattern[pos:next+1]))
			pos = next + 1
			continue
		}

		if next > pos {
			*current = append(*current, textNode(pattern[pos:next]))
		}

		if marker == "{{" {
			end := strings.Index(pattern[next+2:], "}}")
			if end < 0 {
				return nil, &RenderError{Offset: next, Msg: "unterminated variable marker '{{'"}
			}
			raw := pattern[next : next+2+end+2]
			expr := strings.TrimSpace(pattern[next+2 : next+2+end])
			n := substNode{raw: raw}
			if isPath(expr) {
				n.path = expr
			}
			*current = append(*current, n)
			pos = next + 2 + end + 2
			continue
		}

		// "{%"
		end := strings.Index(pattern[next+2:], "%}")
		if end < 0 {
			return nil, &RenderError{Offset: next, Msg: "unterminated block marker '{%'"}
		}
		raw := pattern[next : next+2+end+2]
		tag := strings.Fields(pattern[next+2 : next+2+end])
		pos = next + 2 + end + 2

		switch {
		case len(tag) == 2 && tag[0] == "if" && isPath(tag[1]):
			n := &ifNode{path: tag[1]}
			*current = append(*current, n)
			stack = append(stack, blockFrame{tag: "if", node: n, body: current, offset: next})
			current = &n.body

		case len(tag) == 4 && tag[0] == "for" && tag[2] == "in" && isIdent(tag[1]) && isPath(tag[3]):
			n := &forNode{item: tag[1], path: tag[3]}
			*current = append(*current, n)
			stack = append(stack, blockFrame{tag: "for", node: n, body: current, offset: next})
			current = &n.body

		case len(tag) == 1 && (tag[0] == "endif" || tag[0] == "endfor"):
			want := strings.TrimPrefix(tag[0], "end")
			if len(stack) == 0 || stack[len(stack)-1].tag != want {
				if strict {
					return nil, &RenderError{Offset: next, Msg: fmt.Sprintf("'{%% %s %%}' without matching open block", tag[0])}
				}
				*current = append(*current, textNode(raw))
				continue
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			current = frame.body

		default:
			// Unrecognized tags pass through verbatim, mirroring the
			// unknown-variable behavior.
			if strict {
				return nil, &RenderError{Offset: next, Msg: fmt.Sprintf("unrecognized block tag %q", strings.Join(tag, " "))}
			}
			*current = append(*current, textNode(raw))
		}
	}

	if strict && len(stack) > 0 {
		frame := stack[len(stack)-1]
		return nil, &RenderError{Offset: frame.offset, Msg: fmt.Sprintf("unclosed '{%% %s %%}' block", frame.tag)}
	}

	return root, nil
}

func renderNodes(sb *strings.Builder, nodes []node, vars Bag) {
	for _, n := range nodes {
		switch x := n.(type) {
		case textNode:
			sb.WriteString(string(x))

		case substNode:
			if x.path == "" {
				sb.WriteString(x.raw)
				continue
			}
			val, ok := vars.Lookup(x.path)
			if !ok {
				// Missing leaf: leave the placeholder verbatim.
				sb.WriteString(x.raw)
				continue
			}
			sb.WriteString(val.String())

		case *ifNode:
			val, _ := vars.Lookup(x.path)
			if val.Truthy() {
				renderNodes(sb, x.body, vars)
			}

		case *forNode:
			coll, ok := vars.Lookup(x.path)
			if !ok || coll.Kind() != KindList {
				continue
			}
			items := coll.Items()
			for i, item := range items {
				scope := make(Bag, len(vars)+2)
				for k, v := range vars {
					scope[k] = v
				}
				scope[x.item] = item
				scope["loop"] = Map(map[string]Value{
					"index": Number(float64(i + 1)),
					"last":  Bool(i == len(items)-1),
				})
				renderNodes(sb, x.body, scope)
			}
		}
	}
}

// isIdent reports whether s is a single path segment.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		ok := r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// isPath reports whether s is a dotted lookup path.
func isPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if !isIdent(seg) {
			return false
		}
	}
	return true
}

func cacheKey(pattern string, vars Bag) string {
	return pattern + "\x00" + vars.canonical()
}
