package templating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemstart/pipecall/pkg/session"
)

func newEngine(entries map[string]any) (*Engine, *session.Store) {
	store := session.New()
	for k, v := range entries {
		store.Set(k, v)
	}
	return New(store), store
}

func TestResolveString_IdentityWithoutPlaceholders(t *testing.T) {
	e, _ := newEngine(map[string]any{"a": "x"})

	for _, s := range []string{"", "plain", "http://x/users/1", "{ not a placeholder }", "{{unterminated", "a}}b"} {
		assert.Equal(t, s, e.ResolveString(s))
	}
}

func TestResolveString(t *testing.T) {
	e, _ := newEngine(map[string]any{
		"login": map[string]any{
			"data": map[string]any{
				"id":     float64(42),
				"name":   "bob",
				"active": false,
				"score":  0.5,
				"tags":   []any{"a", "b"},
				"empty":  "",
				"none":   nil,
			},
			"status": 200,
		},
		"token": "abc",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nested number", "http://x/users/{{login.data.id}}", "http://x/users/42"},
		{"whitespace in capture", "{{ login.data.name }}", "bob"},
		{"whole entry", "Bearer {{token}}", "Bearer abc"},
		{"int", "{{login.status}}", "200"},
		{"float", "{{login.data.score}}", "0.5"},
		{"false is resolved", "{{login.data.active}}", "false"},
		{"slice index", "{{login.data.tags.1}}", "b"},
		{"slice as json", "{{login.data.tags}}", `["a","b"]`},
		{"empty string", "[{{login.data.empty}}]", "[]"},
		{"null", "[{{login.data.none}}]", "[]"},
		{"missing entry", "{{a.b.c}}", ""},
		{"missing segment", "x{{login.data.nope}}y", "xy"},
		{"index out of range", "{{login.data.tags.5}}", ""},
		{"path through scalar", "{{token.length}}", ""},
		{"multiple", "{{login.data.name}}-{{login.data.id}}-{{nope}}", "bob-42-"},
		{"non greedy", "{{token}}}}", "abc}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ResolveString(tt.in))
		})
	}
}

func TestResolveString_NestedMapAsJSON(t *testing.T) {
	e, _ := newEngine(map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}})
	assert.Equal(t, `{"c":1}`, e.ResolveString("{{a.b}}"))
}

func TestResolveValue(t *testing.T) {
	e, _ := newEngine(map[string]any{"login": map[string]any{"data": map[string]any{"sid": "s1"}}})

	in := map[string]any{
		"sid":    "{{login.data.sid}}",
		"count":  3,
		"flag":   true,
		"none":   nil,
		"list":   []any{"{{login.data.sid}}", 1.5, map[string]any{"deep": "x-{{login.data.sid}}"}},
		"absent": "{{nope.x}}",
	}

	out := e.ResolveValue(in)

	assert.Equal(t, map[string]any{
		"sid":    "s1",
		"count":  3,
		"flag":   true,
		"none":   nil,
		"list":   []any{"s1", 1.5, map[string]any{"deep": "x-s1"}},
		"absent": "",
	}, out)
	assert.Equal(t, "{{login.data.sid}}", in["sid"], "input must not be mutated")
}

func TestResolveValue_Scalars(t *testing.T) {
	e, _ := newEngine(nil)

	assert.Nil(t, e.ResolveValue(nil))
	assert.Equal(t, 7, e.ResolveValue(7))
	assert.Equal(t, false, e.ResolveValue(false))
	assert.Equal(t, map[string]string{"h": ""}, e.ResolveValue(map[string]string{"h": "{{x}}"}))
}

func TestGetNestedValue(t *testing.T) {
	obj := map[string]any{
		"data": map[string]any{
			"zero":  0,
			"false": false,
			"null":  nil,
			"items": []any{map[string]any{"id": "first"}},
		},
		"headers": map[string]string{"Content-Type": "application/json"},
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"", obj, true},
		{"data.zero", 0, true},
		{"data.false", false, true},
		{"data.null", nil, true},
		{"data.items.0.id", "first", true},
		{"headers.Content-Type", "application/json", true},
		{"data.missing", nil, false},
		{"data.zero.deeper", nil, false},
		{"data.null.deeper", nil, false},
		{"data.items.x", nil, false},
		{"data.items.-1", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, found := GetNestedValue(obj, tt.path)
			require.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetNestedValue_TypedContainers(t *testing.T) {
	type labels map[string]int
	obj := map[string]any{
		"labels": labels{"a": 1},
		"ids":    []int{10, 20},
	}

	v, ok := GetNestedValue(obj, "labels.a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = GetNestedValue(obj, "ids.1")
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestValidateString(t *testing.T) {
	e, _ := newEngine(map[string]any{
		"login": map[string]any{"data": map[string]any{"id": 1, "ok": false}},
	})

	assert.Empty(t, e.ValidateString("no placeholders"))
	assert.Empty(t, e.ValidateString("{{login.data.id}}"))
	assert.Empty(t, e.ValidateString("{{login.data.ok}}"), "present falsy values are resolvable")
	assert.Equal(t, []string{"{{a.b.c}}"}, e.ValidateString("http://x/{{a.b.c}}"))
	assert.Equal(t,
		[]string{"{{login.data.missing}}", "{{ other }}"},
		e.ValidateString("{{login.data.id}}/{{login.data.missing}}/{{ other }}"))
}

func TestValidateValue(t *testing.T) {
	e, store := newEngine(map[string]any{"a": map[string]any{"b": "x"}})

	body := map[string]any{
		"ok":   "{{a.b}}",
		"bad":  "{{a.c}}",
		"list": []any{"{{z}}", 3, nil},
	}
	before := store.Snapshot()

	got := e.ValidateValue(body)

	assert.ElementsMatch(t, []string{"{{a.c}}", "{{z}}"}, got)
	assert.Equal(t, "{{a.c}}", body["bad"], "validation must not substitute")
	assert.Equal(t, before, store.Snapshot(), "validation must not touch the store")
	assert.Empty(t, e.ValidateValue(nil))
	assert.Empty(t, e.ValidateValue(12))
}

func TestEngine_SeesLiveStore(t *testing.T) {
	e, store := newEngine(nil)

	assert.Equal(t, "", e.ResolveString("{{late.v}}"))

	store.Set("late", map[string]any{"v": "now"})
	assert.Equal(t, "now", e.ResolveString("{{late.v}}"))

	store.Clear()
	assert.Equal(t, []string{"{{late.v}}"}, e.ValidateString("{{late.v}}"))
}

func TestResolveString_CyclicValue(t *testing.T) {
	cyclic := map[string]any{"a": 1}
	cyclic["self"] = cyclic
	e, store := newEngine(map[string]any{"c": cyclic})
	store.Set("store", store.Map())

	assert.Equal(t, "x/[object Object]", e.ResolveString("x/{{c}}"))
	assert.Equal(t, "1", e.ResolveString("{{c.self.self.a}}"))
	assert.Equal(t, "[object Object]", e.ResolveString("{{store}}"))
	assert.Empty(t, e.ValidateString("{{store.c.self.a}}"))
}
