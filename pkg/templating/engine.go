// Package templating resolves {{step.path}} placeholders against a session store.
//
// A placeholder names a store key followed by an optional dotted path into the
// stored value:
//
//	http://api.example.com/users/{{login.data.id}}
//	Bearer {{token.data.access_token}}
//
// Unresolvable placeholders become empty strings. ValidateString and
// ValidateValue report them without substituting anything.
package templating

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/systemstart/pipecall/pkg/session"
)

var placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// unrenderable replaces a structured value that cannot be encoded as JSON.
const unrenderable = "[object Object]"

// Engine resolves placeholders against a live store handle.
type Engine struct {
	store *session.Store
}

// New creates an engine bound to store. The store is shared, not copied.
func New(store *session.Store) *Engine {
	return &Engine{store: store}
}

// ResolveValue rewrites every string leaf of v. Maps and slices are rebuilt,
// so v itself is left untouched. Other values pass through unchanged.
func (e *Engine) ResolveValue(v any) any {
	switch t := v.(type) {
	case string:
		return e.ResolveString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.ResolveValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.ResolveValue(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = e.ResolveString(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = e.ResolveString(val)
		}
		return out
	default:
		return v
	}
}

// ResolveString substitutes every placeholder in s. Strings without
// placeholders are returned as is.
func (e *Engine) ResolveString(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		v, ok := e.lookup(match)
		if !ok {
			return ""
		}
		return stringify(v)
	})
}

// ValidateString returns the placeholders in s that cannot be resolved, in
// order of appearance.
func (e *Engine) ValidateString(s string) []string {
	var unresolved []string
	for _, match := range placeholderPattern.FindAllString(s, -1) {
		if _, ok := e.lookup(match); !ok {
			unresolved = append(unresolved, match)
		}
	}
	return unresolved
}

// ValidateValue walks v like ResolveValue and collects unresolved placeholders.
func (e *Engine) ValidateValue(v any) []string {
	var unresolved []string
	var walk func(any)
	walk = func(item any) {
		switch t := item.(type) {
		case string:
			unresolved = append(unresolved, e.ValidateString(t)...)
		case map[string]any:
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		case map[string]string:
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		case []string:
			for _, val := range t {
				walk(val)
			}
		}
	}
	walk(v)
	return unresolved
}

// lookup resolves a single "{{key.path}}" match.
func (e *Engine) lookup(match string) (any, bool) {
	capture := strings.TrimSpace(match[2 : len(match)-2])
	key, path, _ := strings.Cut(capture, ".")

	root, ok := e.store.Get(key)
	if !ok {
		return nil, false
	}
	return GetNestedValue(root, path)
}

// GetNestedValue walks a dotted path through obj. Each segment must be a key
// present in a string-keyed map or a valid index into a slice. The boolean is
// false as soon as a segment is missing; a present nil or zero value is found.
func GetNestedValue(obj any, path string) (any, bool) {
	if path == "" {
		return obj, true
	}

	current := obj
	for _, segment := range strings.Split(path, ".") {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func child(v any, segment string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		val, ok := t[segment]
		return val, ok
	case map[string]string:
		val, ok := t[segment]
		return val, ok
	case []any:
		i, ok := index(segment, len(t))
		if !ok {
			return nil, false
		}
		return t[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := index(segment, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	default:
		return nil, false
	}
}

func index(segment string, length int) (int, bool) {
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// stringify renders a resolved value for substitution into text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		// Cyclic or unencodable values; fmt would recurse without bound on cycles.
		return unrenderable
	}
	return string(b)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
