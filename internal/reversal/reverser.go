// Package reversal rewrites relation-path requirements into conditions on the
// queried entity's own fields.
//
// A requirement such as {"city.country": {"name": "NZ"}} on Person is answered
// by fetching the matching Country records with their cities included, pulling
// the city ids out of the result tree and producing {"cityId": {"in": [...]}}.
package reversal

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/observability"
	"relfind/internal/schemagraph"
)

// Finder fetches records of one entity with optional nested includes.
type Finder interface {
	Find(ctx context.Context, entity *schemagraph.Entity, opts datastore.FindOptions) ([]datastore.Node, error)
}

// Option configures a Reverser or Compiler.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *observability.FilterMetrics
	policy  Policy
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records reversal and compile metrics.
func WithMetrics(m *observability.FilterMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPolicy restricts the paths that may be reversed.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Reverser turns one (path, condition) requirement into a root-local condition.
// It holds no per-call state and is safe for concurrent use.
type Reverser struct {
	registry *schemagraph.Registry
	finder   Finder
	options
}

// NewReverser creates a Reverser over an immutable registry.
func NewReverser(reg *schemagraph.Registry, finder Finder, opts ...Option) *Reverser {
	return &Reverser{
		registry: reg,
		finder:   finder,
		options:  buildOptions(opts),
	}
}

// ReverseCondition rewrites a condition on the entity at the end of
// relationPath into a condition on root. A hasMany root relation yields
// {<root id>: {in: ids}}; a belongsTo root relation yields {<fk>: {in: ids}}.
// Store errors are returned unchanged.
func (r *Reverser) ReverseCondition(ctx context.Context, root *schemagraph.Entity, relationPath string, cond filter.Condition) (result filter.Condition, err error) {
	ctx, span := startSpan(ctx, "reversal.reverse_condition",
		attribute.String("relfind.entity", root.Name),
		attribute.String("relfind.path", relationPath),
	)
	kind := "unknown"
	ids := 0
	defer func() {
		finishSpan(span, err)
		span.End()
		r.metrics.RecordReversal(ctx, root.Name, kind, ids, err)
	}()

	if !r.policy.Allows(root.Name, relationPath) {
		return nil, fmt.Errorf("%w: %s on %s", ErrPathNotAllowed, relationPath, root.Name)
	}

	entities, err := ResolveModels(r.registry, root, relationPath, r.policy.maxDepth())
	if err != nil {
		return nil, err
	}
	adjacent := entities[0]

	// The first segment resolved above, so the relation exists.
	rootRel, _ := root.Relation(SplitPath(relationPath)[0])
	kind = string(rootRel.Kind)
	span.SetAttributes(attribute.String("relfind.relation_kind", kind))

	// Walk back from the furthest entity toward the adjacent one.
	reversed := make([]*schemagraph.Entity, len(entities))
	for i, e := range entities {
		reversed[len(entities)-1-i] = e
	}
	furthest := reversed[0]
	names, err := ResolveRelationNames(furthest, reversed[1:])
	if err != nil {
		return nil, err
	}

	var idField, target string
	switch rootRel.Kind {
	case schemagraph.HasMany:
		// The adjacent records hold root ids under the key of their own
		// relation back to root.
		back, ok := adjacent.RelationTo(root.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s to %s", ErrAmbiguousOrMissingRelation, adjacent.Name, root.Name)
		}
		idField = back.ForeignKey
		target = root.IDField
	case schemagraph.BelongsTo:
		// First relation from root to the adjacent entity, in declared order.
		forward, _ := root.RelationTo(adjacent.Name)
		idField = adjacent.IDField
		target = forward.ForeignKey
	default:
		return nil, fmt.Errorf("%w: %s.%s is %q", ErrUnsupportedRelationKind, root.Name, rootRel.Name, rootRel.Kind)
	}

	opts := datastore.FindOptions{Where: cond}
	if scope := BuildIncludeScope(names); scope != nil {
		opts.Include = []filter.Include{*scope}
	}

	r.logger.Debug("reversing require condition",
		slog.String("entity", root.Name),
		slog.String("path", relationPath),
		slog.String("relation_kind", kind),
		slog.String("find_entity", furthest.Name),
		slog.Any("extract_path", names),
		slog.String("id_field", idField),
	)

	nodes, err := r.finder.Find(ctx, furthest, opts)
	if err != nil {
		return nil, err
	}

	var extracted []any
	for _, node := range nodes {
		extracted = append(extracted, ExtractLeafIDs(node, names, idField)...)
	}
	unique := dedupeIDs(extracted)
	ids = len(unique)
	span.SetAttributes(
		attribute.Int("relfind.matched_records", len(nodes)),
		attribute.Int("relfind.extracted_ids", ids),
	)

	return filter.In(target, unique), nil
}
