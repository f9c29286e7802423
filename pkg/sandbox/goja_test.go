package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemstart/pipecall/pkg/session"
)

func evaluate(t *testing.T, source string, store *session.Store) (any, error) {
	t.Helper()
	if store == nil {
		store = session.New()
	}
	return NewGoja().Evaluate(context.Background(), t.Name(), source, store)
}

func TestGoja_ReturnValues(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   any
	}{
		{"integer", "return 1 + 2;", int64(3)},
		{"float", "return 1.5;", 1.5},
		{"string", `return "ok";`, "ok"},
		{"bool", "return false;", false},
		{"undefined", "const x = 1;", nil},
		{"null", "return null;", nil},
		{"object", `return {a: 1, b: "x"};`, map[string]any{"a": int64(1), "b": "x"}},
		{"array", "return [1, 2];", []any{int64(1), int64(2)}},
		{"multi line", "const a = 2;\nconst b = 3;\nreturn a * b;", int64(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(t, tt.source, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGoja_StoreBinding(t *testing.T) {
	store := session.New()
	store.Set("login", map[string]any{"data": map[string]any{"id": 42}})

	got, err := evaluate(t, `
sessionStore.derived = { next: sessionStore.login.data.id + 1 };
return sessionStore.login.data.id;
`, store)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	derived, ok := store.Get("derived")
	require.True(t, ok, "script writes must land in the store")
	assert.Equal(t, map[string]any{"next": int64(43)}, derived)
}

func TestGoja_Promises(t *testing.T) {
	got, err := evaluate(t, "return (async () => { const v = await Promise.resolve(5); return v * 2; })();", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	_, err = evaluate(t, `return Promise.reject(new Error("nope"));`, nil)
	require.Error(t, err)
	assert.Equal(t, "nope", err.Error())

	_, err = evaluate(t, "return new Promise(() => {});", nil)
	assert.ErrorIs(t, err, ErrUnsettledPromise)
}

func TestGoja_Faults(t *testing.T) {
	_, err := evaluate(t, `throw new Error("boom");`, nil)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())

	_, err = evaluate(t, `throw "plain";`, nil)
	require.Error(t, err)
	assert.Equal(t, "plain", err.Error())

	_, err = evaluate(t, "return undefinedVariable.field;", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefinedVariable")

	_, err = evaluate(t, "return (;", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile")
}

func TestGoja_ContextCancellationInterrupts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewGoja().Evaluate(ctx, "loop", "while (true) {}", session.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
