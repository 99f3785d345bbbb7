package reversal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/testutil/world"
)

func TestCompileFilter_NoRequireIsIdentity(t *testing.T) {
	reg := world.Registry(t)
	finder := &stubFinder{}
	compiler := New(reg, finder)
	person := mustEntity(t, reg, "Person")

	raw, err := filter.Parse([]byte(`{"where":{"name":"John"},"limit":5}`))
	require.NoError(t, err)
	got, err := compiler.CompileFilter(context.Background(), person, raw)
	require.NoError(t, err)
	if got != raw {
		t.Fatalf("expected the same filter back")
	}

	empty, err := filter.Parse([]byte(`{"require":{}}`))
	require.NoError(t, err)
	got, err = compiler.CompileFilter(context.Background(), person, empty)
	require.NoError(t, err)
	assert.Same(t, empty, got)

	assert.Empty(t, finder.calls)
}

func TestCompileFilter_MergesInRequireOrder(t *testing.T) {
	store, reg := newWorldStore(t)
	compiler := New(reg, store)
	person := mustEntity(t, reg, "Person")

	raw, err := filter.Parse([]byte(`{
		"where": {"name": {"like": "J%"}},
		"require": {
			"products": {"name": {"inq": ["A1", "B2"]}},
			"city.country": {"name": "NZ"}
		},
		"order": "name",
		"limit": 10
	}`))
	require.NoError(t, err)

	compiled, err := compiler.CompileFilter(context.Background(), person, raw)
	require.NoError(t, err)
	assert.False(t, compiled.HasRequire())

	want := filter.Condition{"and": []any{
		filter.Condition{"name": map[string]any{"like": "J%"}},
		filter.Condition{"id": map[string]any{"in": []any{111, 122}}},
		filter.Condition{"cityId": map[string]any{"in": []any{110, 120}}},
	}}
	assert.Equal(t, want, compiled.Where)

	limit, ok := compiled.Raw(filter.KeyLimit)
	require.True(t, ok, "other keys are carried over")
	assert.JSONEq(t, `10`, string(limit))

	opts, err := datastore.OptionsFromFilter(compiled)
	require.NoError(t, err)
	people, err := store.Find(context.Background(), person, opts)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Jane", people[0]["name"])
	assert.Equal(t, "John", people[1]["name"])
}

func TestCompileFilter_WithoutWhere(t *testing.T) {
	store, reg := newWorldStore(t)
	compiler := New(reg, store)

	raw, err := filter.Parse([]byte(`{"require":{"cities.people":{"name":"Seth"}}}`))
	require.NoError(t, err)

	compiled, err := compiler.CompileFilter(context.Background(), mustEntity(t, reg, "Country"), raw)
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"and": []any{
		filter.Condition{"id": map[string]any{"in": []any{200}}},
	}}, compiled.Where)

	out, err := json.Marshal(compiled)
	require.NoError(t, err)
	assert.JSONEq(t, `{"where":{"and":[{"id":{"in":[200]}}]}}`, string(out))
}

func TestCompileFilter_EmptyWhereIsKept(t *testing.T) {
	store, reg := newWorldStore(t)
	compiler := New(reg, store)

	raw := &filter.Filter{
		Where:   filter.Condition{},
		Require: []filter.Requirement{{Path: "city", Condition: filter.Condition{"name": "Sydney"}}},
	}
	compiled, err := compiler.CompileFilter(context.Background(), mustEntity(t, reg, "Person"), raw)
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"and": []any{
		filter.Condition{},
		filter.Condition{"cityId": map[string]any{"in": []any{220}}},
	}}, compiled.Where)
}

func TestCompileFilter_AllOrNothing(t *testing.T) {
	reg := world.Registry(t)
	boom := errors.New("country table locked")
	finder := &stubFinder{
		nodes: map[string][]datastore.Node{"Product": {{"personId": 111}}},
		errs:  map[string]error{"Country": boom},
	}
	compiler := New(reg, finder)

	raw := &filter.Filter{
		Where: filter.Condition{"name": "John"},
		Require: []filter.Requirement{
			{Path: "products", Condition: filter.Condition{"name": "A1"}},
			{Path: "city.country", Condition: filter.Condition{"name": "NZ"}},
		},
	}
	compiled, err := compiler.CompileFilter(context.Background(), mustEntity(t, reg, "Person"), raw)
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	assert.Nil(t, compiled)
	assert.Len(t, raw.Require, 2, "input filter is not modified")
	assert.Equal(t, filter.Condition{"name": "John"}, raw.Where)
}

func TestCompileFilter_ClientErrors(t *testing.T) {
	store, reg := newWorldStore(t)
	compiler := New(reg, store, WithPolicy(Policy{
		AllowPaths: map[string][]string{"Person": {"city*"}},
	}))
	person := mustEntity(t, reg, "Person")

	tests := []struct {
		path string
		want error
	}{
		{"city.mayor", ErrUnknownRelation},
		{"products", ErrPathNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			raw := &filter.Filter{Require: []filter.Requirement{
				{Path: "city", Condition: filter.Condition{"name": "Auckland"}},
				{Path: tt.path, Condition: filter.Condition{}},
			}}
			_, err := compiler.CompileFilter(context.Background(), person, raw)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestCompileFilter_Span(t *testing.T) {
	recorder, cleanup := installSpanRecorder(t)
	defer cleanup()

	store, reg := newWorldStore(t)
	compiler := New(reg, store)
	raw := &filter.Filter{Require: []filter.Requirement{
		{Path: "city", Condition: filter.Condition{"name": "Auckland"}},
		{Path: "products", Condition: filter.Condition{"name": "A1"}},
	}}
	_, err := compiler.CompileFilter(context.Background(), mustEntity(t, reg, "Person"), raw)
	require.NoError(t, err)

	spans := recorder.Ended()
	compile := findEndedSpanByName(spans, "reversal.compile_filter")
	if compile == nil {
		t.Fatalf("expected reversal.compile_filter span")
	}
	assert.Equal(t, int64(2), readSpanInt(compile.Attributes(), "relfind.require_entries"))
	assert.Equal(t, "success", readSpanString(compile.Attributes(), "relfind.outcome"))

	children := 0
	for _, s := range spans {
		if s.Name() == "reversal.reverse_condition" {
			assert.Equal(t, compile.SpanContext().SpanID(), s.Parent().SpanID())
			children++
		}
	}
	assert.Equal(t, 2, children)
}
