package datastore

import (
	"context"

	"relfind/internal/filter"
	"relfind/internal/schemagraph"
)

// fetchFunc loads records of one entity matching where, without includes.
type fetchFunc func(ctx context.Context, entity *schemagraph.Entity, where filter.Condition) ([]Node, error)

// includeLoader attaches included relations to already-fetched records.
// Each include level costs one batched fetch regardless of how many parents
// it serves.
type includeLoader struct {
	registry *schemagraph.Registry
	fetch    fetchFunc
}

func (l *includeLoader) load(ctx context.Context, entity *schemagraph.Entity, nodes []Node, includes []filter.Include) error {
	for _, inc := range includes {
		if err := l.loadOne(ctx, entity, nodes, inc); err != nil {
			return err
		}
	}
	return nil
}

func (l *includeLoader) loadOne(ctx context.Context, entity *schemagraph.Entity, nodes []Node, inc filter.Include) error {
	rel, ok := entity.Relation(inc.Relation)
	if !ok {
		return invalid("%s has no relation %q", entity.Name, inc.Relation)
	}
	target, err := l.registry.Entity(rel.Target)
	if err != nil {
		return err
	}

	var scopeWhere filter.Condition
	var nested []filter.Include
	if inc.Scope != nil {
		scopeWhere = inc.Scope.Where
		nested = inc.Scope.Include
	}

	switch rel.Kind {
	case schemagraph.BelongsTo:
		keys := distinctValues(nodes, rel.ForeignKey)
		related, err := l.fetchRelated(ctx, target, target.IDField, keys, scopeWhere, nested)
		if err != nil {
			return err
		}
		byID := make(map[any]Node, len(related))
		for _, r := range related {
			byID[KeyOf(r[target.IDField])] = r
		}
		for _, n := range nodes {
			fk := n[rel.ForeignKey]
			if fk == nil {
				n[inc.Relation] = nil
				continue
			}
			if r, ok := byID[KeyOf(fk)]; ok {
				n[inc.Relation] = r
			} else {
				n[inc.Relation] = nil
			}
		}
	case schemagraph.HasMany:
		keys := distinctValues(nodes, entity.IDField)
		related, err := l.fetchRelated(ctx, target, rel.ForeignKey, keys, scopeWhere, nested)
		if err != nil {
			return err
		}
		byParent := make(map[any][]Node)
		for _, r := range related {
			k := KeyOf(r[rel.ForeignKey])
			byParent[k] = append(byParent[k], r)
		}
		for _, n := range nodes {
			children := byParent[KeyOf(n[entity.IDField])]
			if children == nil {
				children = []Node{}
			}
			n[inc.Relation] = children
		}
	default:
		return invalid("relation %s.%s has unsupported kind %q", entity.Name, rel.Name, rel.Kind)
	}
	return nil
}

func (l *includeLoader) fetchRelated(ctx context.Context, target *schemagraph.Entity, field string, keys []any, scopeWhere filter.Condition, nested []filter.Include) ([]Node, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	where := filter.In(field, keys)
	if len(scopeWhere) > 0 {
		where = filter.And(where, scopeWhere)
	}
	related, err := l.fetch(ctx, target, where)
	if err != nil {
		return nil, err
	}
	if len(nested) > 0 && len(related) > 0 {
		if err := l.load(ctx, target, related, nested); err != nil {
			return nil, err
		}
	}
	return related, nil
}

// distinctValues collects non-nil values of field across nodes, first
// occurrence wins.
func distinctValues(nodes []Node, field string) []any {
	seen := make(map[any]struct{}, len(nodes))
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		v := n[field]
		if v == nil {
			continue
		}
		k := KeyOf(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
