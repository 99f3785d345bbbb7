package reversal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/schemagraph"
	"relfind/internal/testutil/world"
)

type findCall struct {
	entity string
	opts   datastore.FindOptions
}

// stubFinder returns canned nodes per entity and records every call.
type stubFinder struct {
	mu    sync.Mutex
	nodes map[string][]datastore.Node
	errs  map[string]error
	calls []findCall
}

func (f *stubFinder) Find(_ context.Context, entity *schemagraph.Entity, opts datastore.FindOptions) ([]datastore.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, findCall{entity: entity.Name, opts: opts})
	if err := f.errs[entity.Name]; err != nil {
		return nil, err
	}
	return f.nodes[entity.Name], nil
}

func newWorldStore(t *testing.T) (*datastore.MemoryStore, *schemagraph.Registry) {
	t.Helper()
	reg := world.Registry(t)
	store := datastore.NewMemoryStore(reg, nil)
	for name, rows := range world.Records() {
		require.NoError(t, store.Insert(name, rows...))
	}
	return store, reg
}

func TestReverseCondition_SingleBelongsTo(t *testing.T) {
	reg := world.Registry(t)
	finder := &stubFinder{nodes: map[string][]datastore.Node{
		"City": {{"id": 110}, {"id": 120}},
	}}
	r := NewReverser(reg, finder)

	got, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "city", filter.Condition{"name": "Auckland"})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"cityId": map[string]any{"in": []any{110, 120}}}, got)

	require.Len(t, finder.calls, 1)
	assert.Equal(t, "City", finder.calls[0].entity)
	assert.Equal(t, filter.Condition{"name": "Auckland"}, finder.calls[0].opts.Where)
	assert.Empty(t, finder.calls[0].opts.Include)
}

func TestReverseCondition_SingleHasMany(t *testing.T) {
	reg := world.Registry(t)
	finder := &stubFinder{nodes: map[string][]datastore.Node{
		"Product": {{"id": 1110, "personId": 111}, {"id": 1111, "personId": 111}, {"id": 1220, "personId": 122}},
	}}
	r := NewReverser(reg, finder)

	got, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "products", filter.Condition{"name": map[string]any{"like": "A%"}})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"id": map[string]any{"in": []any{111, 122}}}, got)
	assert.Equal(t, "Product", finder.calls[0].entity)
}

func TestReverseCondition_MultiHopQueryShape(t *testing.T) {
	reg := world.Registry(t)
	finder := &stubFinder{}
	r := NewReverser(reg, finder)

	got, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Product"), "person.city.country", filter.Condition{"name": "NZ"})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"personId": map[string]any{"in": []any{}}}, got)

	require.Len(t, finder.calls, 1)
	call := finder.calls[0]
	assert.Equal(t, "Country", call.entity)
	assert.Equal(t, []filter.Include{{
		Relation: "cities",
		Scope:    &filter.Scope{Include: []filter.Include{{Relation: "people"}}},
	}}, call.opts.Include)
}

func TestReverseCondition_WorldFixture(t *testing.T) {
	store, reg := newWorldStore(t)
	r := NewReverser(reg, store)
	ctx := context.Background()

	tests := []struct {
		name string
		root string
		path string
		cond filter.Condition
		want filter.Condition
	}{
		{
			name: "products of people in Auckland",
			root: "Product",
			path: "person.city",
			cond: filter.Condition{"name": "Auckland"},
			want: filter.Condition{"personId": map[string]any{"in": []any{111, 112}}},
		},
		{
			name: "country with a person named Seth",
			root: "Country",
			path: "cities.people",
			cond: filter.Condition{"name": "Seth"},
			want: filter.Condition{"id": map[string]any{"in": []any{200}}},
		},
		{
			name: "people in NZ",
			root: "Person",
			path: "city.country",
			cond: filter.Condition{"name": "NZ"},
			want: filter.Condition{"cityId": map[string]any{"in": []any{110, 120}}},
		},
		{
			name: "people owning A1",
			root: "Person",
			path: "products",
			cond: filter.Condition{"name": "A1"},
			want: filter.Condition{"id": map[string]any{"in": []any{111}}},
		},
		{
			name: "hasMany ids are deduplicated",
			root: "Country",
			path: "cities",
			cond: filter.Condition{"name": map[string]any{"neq": "Nowhere"}},
			want: filter.Condition{"id": map[string]any{"in": []any{100, 200}}},
		},
		{
			name: "nothing matches",
			root: "Person",
			path: "city",
			cond: filter.Condition{"name": "Atlantis"},
			want: filter.Condition{"cityId": map[string]any{"in": []any{}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ReverseCondition(ctx, mustEntity(t, reg, tt.root), tt.path, tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReverseCondition_ThreeLevelChain(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Root", Relations: []schemagraph.Relation{
			{Name: "mid", Kind: schemagraph.BelongsTo, Target: "Mid", ForeignKey: "midId"},
		}},
		{Name: "Mid", Relations: []schemagraph.Relation{
			{Name: "leaf", Kind: schemagraph.BelongsTo, Target: "Leaf", ForeignKey: "leafId"},
			{Name: "roots", Kind: schemagraph.HasMany, Target: "Root", ForeignKey: "midId"},
		}},
		{Name: "Leaf", Relations: []schemagraph.Relation{
			{Name: "mids", Kind: schemagraph.HasMany, Target: "Mid", ForeignKey: "leafId"},
		}},
	})
	require.NoError(t, err)

	store := datastore.NewMemoryStore(reg, nil)
	require.NoError(t, store.Insert("Leaf", datastore.Node{"id": 100, "name": "x"}, datastore.Node{"id": 200, "name": "y"}))
	require.NoError(t, store.Insert("Mid",
		datastore.Node{"id": 10, "leafId": 100},
		datastore.Node{"id": 20, "leafId": 100},
		datastore.Node{"id": 30, "leafId": 200},
	))
	require.NoError(t, store.Insert("Root",
		datastore.Node{"id": 1, "midId": 10},
		datastore.Node{"id": 2, "midId": 10},
		datastore.Node{"id": 3, "midId": 20},
		datastore.Node{"id": 4, "midId": 30},
	))

	root := mustEntity(t, reg, "Root")
	compiler := New(reg, store)
	raw := &filter.Filter{Require: []filter.Requirement{{Path: "mid.leaf", Condition: filter.Condition{"name": "x"}}}}

	compiled, err := compiler.CompileFilter(context.Background(), root, raw)
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"and": []any{
		filter.Condition{"midId": map[string]any{"in": []any{10, 20}}},
	}}, compiled.Where)

	roots, err := store.Find(context.Background(), root, datastore.FindOptions{Where: compiled.Where})
	require.NoError(t, err)
	got := make([]any, len(roots))
	for i, n := range roots {
		got[i] = n["id"]
	}
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestReverseCondition_Errors(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Student", Relations: []schemagraph.Relation{
			{Name: "courses", Kind: "hasAndBelongsToMany", Target: "Course", ForeignKey: "courseId"},
			{Name: "school", Kind: schemagraph.BelongsTo, Target: "School", ForeignKey: "schoolId"},
		}},
		{Name: "Course"},
		{Name: "School"},
	})
	require.NoError(t, err)
	student := mustEntity(t, reg, "Student")

	finder := &stubFinder{}
	r := NewReverser(reg, finder, WithPolicy(Policy{
		MaxPathDepth: 1,
		AllowPaths:   map[string][]string{"Student": {"courses", "school", "school.*", "advisor"}},
	}))
	ctx := context.Background()

	_, err = r.ReverseCondition(ctx, student, "courses", filter.Condition{})
	assert.ErrorIs(t, err, ErrUnsupportedRelationKind)

	_, err = r.ReverseCondition(ctx, student, "advisor", filter.Condition{})
	assert.ErrorIs(t, err, ErrUnknownRelation)

	_, err = r.ReverseCondition(ctx, student, "school.students", filter.Condition{})
	assert.ErrorIs(t, err, ErrPathTooDeep)

	_, err = r.ReverseCondition(ctx, student, "principal", filter.Condition{})
	assert.ErrorIs(t, err, ErrPathNotAllowed)

	// School has no relation back to Student, which a belongsTo segment does
	// not need when it is the only one.
	r = NewReverser(reg, finder)
	_, err = r.ReverseCondition(ctx, student, "school", filter.Condition{})
	assert.NoError(t, err)

	assert.Empty(t, finder.callsFor("Course"), "unsupported kinds must fail before fetching")
}

func TestReverseCondition_MissingBackRelation(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Order", Relations: []schemagraph.Relation{
			{Name: "customer", Kind: schemagraph.BelongsTo, Target: "Customer", ForeignKey: "customerId"},
		}},
		{Name: "Customer", Relations: []schemagraph.Relation{
			{Name: "region", Kind: schemagraph.BelongsTo, Target: "Region", ForeignKey: "regionId"},
		}},
		{Name: "Region"},
	})
	require.NoError(t, err)

	r := NewReverser(reg, &stubFinder{})
	_, err = r.ReverseCondition(context.Background(), mustEntity(t, reg, "Order"), "customer.region", filter.Condition{})
	assert.ErrorIs(t, err, ErrAmbiguousOrMissingRelation)
	assert.True(t, IsClientError(err))
}

func TestReverseCondition_HasManyReadsBackRelationKey(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Person", Relations: []schemagraph.Relation{
			{Name: "products", Kind: schemagraph.HasMany, Target: "Product", ForeignKey: "personId"},
		}},
		{Name: "Product", Relations: []schemagraph.Relation{
			{Name: "owner", Kind: schemagraph.BelongsTo, Target: "Person", ForeignKey: "ownerId"},
		}},
	})
	require.NoError(t, err)

	finder := &stubFinder{nodes: map[string][]datastore.Node{
		"Product": {{"id": 1, "ownerId": 7, "personId": 9}},
	}}
	r := NewReverser(reg, finder)

	got, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "products", filter.Condition{})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"id": map[string]any{"in": []any{7}}}, got)
}

func TestReverseCondition_HasManyWithoutBackRelation(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Person", Relations: []schemagraph.Relation{
			{Name: "products", Kind: schemagraph.HasMany, Target: "Product", ForeignKey: "personId"},
		}},
		{Name: "Product"},
	})
	require.NoError(t, err)

	finder := &stubFinder{nodes: map[string][]datastore.Node{
		"Product": {{"id": 1, "personId": 9}},
	}}
	r := NewReverser(reg, finder)

	_, err = r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "products", filter.Condition{})
	assert.ErrorIs(t, err, ErrAmbiguousOrMissingRelation)
	assert.True(t, IsClientError(err))
	assert.Empty(t, finder.callsFor("Product"))
}

func TestReverseCondition_BelongsToUsesFirstRelationToTarget(t *testing.T) {
	reg, err := schemagraph.Build([]schemagraph.EntityDef{
		{Name: "Article", Relations: []schemagraph.Relation{
			{Name: "author", Kind: schemagraph.BelongsTo, Target: "Person", ForeignKey: "authorId"},
			{Name: "editor", Kind: schemagraph.BelongsTo, Target: "Person", ForeignKey: "editorId"},
		}},
		{Name: "Person"},
	})
	require.NoError(t, err)

	finder := &stubFinder{nodes: map[string][]datastore.Node{
		"Person": {{"id": 5}},
	}}
	r := NewReverser(reg, finder)

	got, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Article"), "editor", filter.Condition{})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{"authorId": map[string]any{"in": []any{5}}}, got)
}

func TestReverseCondition_StoreErrorUnchanged(t *testing.T) {
	reg := world.Registry(t)
	boom := errors.New("store unavailable")
	r := NewReverser(reg, &stubFinder{errs: map[string]error{"City": boom}})

	_, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "city", filter.Condition{})
	if err != boom {
		t.Fatalf("expected the store error unchanged, got %v", err)
	}
	assert.False(t, IsClientError(err))
}

func TestReverseCondition_Span(t *testing.T) {
	recorder, cleanup := installSpanRecorder(t)
	defer cleanup()

	store, reg := newWorldStore(t)
	r := NewReverser(reg, store)
	_, err := r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "city.country", filter.Condition{"name": "NZ"})
	require.NoError(t, err)

	span := findEndedSpanByName(recorder.Ended(), "reversal.reverse_condition")
	if span == nil {
		t.Fatalf("expected reversal.reverse_condition span")
	}
	attrs := span.Attributes()
	assert.Equal(t, "Person", readSpanString(attrs, "relfind.entity"))
	assert.Equal(t, "city.country", readSpanString(attrs, "relfind.path"))
	assert.Equal(t, "belongsTo", readSpanString(attrs, "relfind.relation_kind"))
	assert.Equal(t, "success", readSpanString(attrs, "relfind.outcome"))
	assert.Equal(t, int64(2), readSpanInt(attrs, "relfind.extracted_ids"))

	_, err = r.ReverseCondition(context.Background(), mustEntity(t, reg, "Person"), "planet", filter.Condition{})
	require.Error(t, err)
	var failed sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "reversal.reverse_condition" && readSpanString(s.Attributes(), "relfind.path") == "planet" {
			failed = s
		}
	}
	if failed == nil {
		t.Fatalf("expected span for failed reversal")
	}
	assert.Equal(t, "error", readSpanString(failed.Attributes(), "relfind.outcome"))
}

func (f *stubFinder) callsFor(entity string) []findCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []findCall
	for _, c := range f.calls {
		if c.entity == entity {
			out = append(out, c)
		}
	}
	return out
}

func installSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)

	oldProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	return recorder, func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(oldProvider)
	}
}

func findEndedSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func readSpanString(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func readSpanInt(attrs []attribute.KeyValue, key string) int64 {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsInt64()
		}
	}
	return -1
}
