package reversal

import (
	"fmt"
	"strings"

	"relfind/internal/schemagraph"
)

// DefaultMaxPathDepth bounds path length when no policy sets one.
const DefaultMaxPathDepth = 8

// SplitPath splits a dotted relation path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// ResolveModels walks path from root and returns the entity reached by each
// segment, in order. The result has one entry per segment and ends at the
// furthest entity. maxDepth <= 0 disables the length bound.
func ResolveModels(reg *schemagraph.Registry, root *schemagraph.Entity, path string, maxDepth int) ([]*schemagraph.Entity, error) {
	steps := SplitPath(path)
	if maxDepth > 0 && len(steps) > maxDepth {
		return nil, fmt.Errorf("%w: %q has %d segments, limit is %d", ErrPathTooDeep, path, len(steps), maxDepth)
	}

	entities := make([]*schemagraph.Entity, 0, len(steps))
	current := root
	for _, step := range steps {
		rel, ok := current.Relation(step)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no relation %q", ErrUnknownRelation, current.Name, step)
		}
		next, err := reg.Entity(rel.Target)
		if err != nil {
			return nil, fmt.Errorf("relation %s.%s: %w", current.Name, step, err)
		}
		entities = append(entities, next)
		current = next
	}
	return entities, nil
}

// ResolveRelationNames returns, for each consecutive pair in start followed by
// entities, the name of the first declared relation on the left entity whose
// target is the right entity.
func ResolveRelationNames(start *schemagraph.Entity, entities []*schemagraph.Entity) ([]string, error) {
	names := make([]string, 0, len(entities))
	current := start
	for _, next := range entities {
		rel, ok := current.RelationTo(next.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s to %s", ErrAmbiguousOrMissingRelation, current.Name, next.Name)
		}
		names = append(names, rel.Name)
		current = next
	}
	return names, nil
}
