package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the dynamic types a template variable can hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged union over the types a variable bag can carry.
// Modeling the bag this way keeps dotted-path lookup and truthiness
// exhaustive without reflection.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// Bag is a resolved variable bag, as produced by the config and prompt layers.
type Bag map[string]Value

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a number.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps an ordered sequence.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map wraps a nested map.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// FromAny converts loosely-typed data (JSON/YAML decoding, viper output)
// into a Value. Unsupported types are stringified via fmt.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return List(items...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromAny(item)
		}
		return Map(m)
	case map[any]any:
		// yaml.v2-style maps
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[fmt.Sprintf("%v", k)] = FromAny(item)
		}
		return Map(m)
	case Value:
		return x
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// BagFromAny converts a loosely-typed map into a Bag.
func BagFromAny(vars map[string]any) Bag {
	bag := make(Bag, len(vars))
	for k, v := range vars {
		bag[k] = FromAny(v)
	}
	return bag
}

// Kind reports the value's dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Truthy implements template truthiness: null, false, 0 and the empty
// string are falsy; everything else (including empty lists and maps,
// matching the original engine) is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// Items returns the elements of a list value, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Len returns the element count for lists and maps, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Get looks up a key on a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.m[key]
	return val, ok
}

// Index looks up an element on a list value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// String renders the value for substitution into template output.
// Numbers drop trailing zeros, null renders as the empty string, and
// composites render as compact JSON-like text with sorted map keys so
// the output is deterministic.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.quoted()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + v.m[k].quoted()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// quoted renders the value for embedding inside composite output.
func (v Value) quoted() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNull:
		return "null"
	default:
		return v.String()
	}
}

// Lookup resolves a dotted path against the bag. Path segments address
// map keys; numeric segments address list indices. The second return is
// false when any segment is missing.
func (b Bag) Lookup(path string) (Value, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return Value{}, false
	}

	current, ok := b[segments[0]]
	if !ok {
		return Value{}, false
	}

	for _, seg := range segments[1:] {
		switch current.kind {
		case KindMap:
			current, ok = current.Get(seg)
			if !ok {
				return Value{}, false
			}
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return Value{}, false
			}
			current, ok = current.Index(idx)
			if !ok {
				return Value{}, false
			}
		default:
			return Value{}, false
		}
	}

	return current, true
}

// Set writes a value at a dotted path, creating intermediate maps as
// needed. Intermediate segments that already exist but are not maps are
// replaced. List indices are not addressable through Set.
func (b Bag) Set(path string, val Value) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return
	}
	if len(segments) == 1 {
		b[segments[0]] = val
		return
	}
	b[segments[0]] = setIn(b[segments[0]], segments[1:], val)
}

func setIn(current Value, segments []string, val Value) Value {
	m := make(map[string]Value, 1)
	if current.kind == KindMap {
		for k, v := range current.m {
			m[k] = v
		}
	}
	if len(segments) == 1 {
		m[segments[0]] = val
	} else {
		m[segments[0]] = setIn(m[segments[0]], segments[1:], val)
	}
	return Map(m)
}

// canonical writes a deterministic serialization of the bag, used for
// cache keys. Two bags with equal contents always serialize identically.
func (b Bag) canonical() string {
	var sb strings.Builder
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('=')
		sb.WriteString(b[k].canonical())
		sb.WriteByte(';')
	}
	return sb.String()
}

func (v Value) canonical() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return "s" + strconv.Quote(v.str)
	case KindBool:
		return "b" + strconv.FormatBool(v.b)
	case KindNumber:
		return "n" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.canonical()
		}
		return "l[" + strings.Join(parts, ",") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ":" + v.m[k].canonical()
		}
		return "m{" + strings.Join(parts, ",") + "}"
	}
	return ""
}
