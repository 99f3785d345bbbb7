// Package schemagraph holds the read-only entity/relation graph that relation
// paths are resolved against. A Registry is built once and never mutated.
package schemagraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the direction of a relation as seen from its owning entity.
type Kind string

const (
	// HasMany means the foreign key lives on the target's records and holds the owner's id.
	HasMany Kind = "hasMany"
	// BelongsTo means the foreign key lives on the owner's records and holds the target's id.
	BelongsTo Kind = "belongsTo"
)

// DefaultIDField is the identifier field used when an entity does not declare one.
const DefaultIDField = "id"

// ErrUnknownEntity is returned when an entity name is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// Relation is a directional edge from an owning entity to a target entity.
type Relation struct {
	Name       string
	Kind       Kind
	Target     string
	ForeignKey string
}

// Entity is a named schema node.
type Entity struct {
	Name string
	// Plural is the collection name used for routing (e.g. "People").
	Plural string
	// Table is the backing table name for SQL stores.
	Table   string
	IDField string

	relations map[string]Relation
	order     []string
	columns   map[string]string
	fields    map[string]string
}

// Column returns the backing column for a field. Entities without a column
// map use field names as column names; entities with one reject unknown fields.
func (e *Entity) Column(field string) (string, bool) {
	if e.columns == nil {
		return field, true
	}
	col, ok := e.columns[field]
	return col, ok
}

// Field returns the field name for a backing column.
func (e *Entity) Field(column string) string {
	if name, ok := e.fields[column]; ok {
		return name
	}
	return column
}

// Columns returns the mapped columns sorted by field name, or nil when the
// entity has no column map.
func (e *Entity) Columns() []string {
	if e.columns == nil {
		return nil
	}
	names := make([]string, 0, len(e.columns))
	for f := range e.columns {
		names = append(names, f)
	}
	sort.Strings(names)
	cols := make([]string, len(names))
	for i, f := range names {
		cols[i] = e.columns[f]
	}
	return cols
}

// Relation returns the relation with the given name.
func (e *Entity) Relation(name string) (Relation, bool) {
	rel, ok := e.relations[name]
	return rel, ok
}

// Relations returns relations in declared order.
func (e *Entity) Relations() []Relation {
	out := make([]Relation, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.relations[name])
	}
	return out
}

// RelationTo returns the first relation, in declared order, whose target is the named entity.
func (e *Entity) RelationTo(target string) (Relation, bool) {
	for _, name := range e.order {
		rel := e.relations[name]
		if rel.Target == target {
			return rel, true
		}
	}
	return Relation{}, false
}

// Registry is an immutable set of entities.
type Registry struct {
	entities map[string]*Entity
	byPlural map[string]*Entity
	names    []string
}

// Entity returns the named entity.
func (r *Registry) Entity(name string) (*Entity, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// EntityByPlural returns the entity routed under the given collection name.
// Matching is case-insensitive.
func (r *Registry) EntityByPlural(plural string) (*Entity, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.byPlural[strings.ToLower(plural)]
	return e, ok
}

// Names returns entity names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

// EntityDef declares an entity for Build.
type EntityDef struct {
	Name      string
	Plural    string
	Table     string
	IDField   string
	Relations []Relation
	// Columns maps field names to backing columns. Nil means identity.
	Columns map[string]string
}

// Build validates the definitions and returns a Registry.
// Relation targets must name declared entities and relation names must be unique per entity.
func Build(defs []EntityDef) (*Registry, error) {
	reg := &Registry{
		entities: make(map[string]*Entity, len(defs)),
		byPlural: make(map[string]*Entity, len(defs)),
	}

	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("entity name is required")
		}
		if _, exists := reg.entities[name]; exists {
			return nil, fmt.Errorf("duplicate entity %q", name)
		}

		e := &Entity{
			Name:      name,
			Plural:    def.Plural,
			Table:     def.Table,
			IDField:   def.IDField,
			relations: make(map[string]Relation, len(def.Relations)),
		}
		if e.Plural == "" {
			e.Plural = name
		}
		if e.Table == "" {
			e.Table = name
		}
		if e.IDField == "" {
			e.IDField = DefaultIDField
		}
		if def.Columns != nil {
			e.columns = make(map[string]string, len(def.Columns))
			e.fields = make(map[string]string, len(def.Columns))
			for field, col := range def.Columns {
				e.columns[field] = col
				e.fields[col] = field
			}
			if _, ok := e.columns[e.IDField]; !ok {
				return nil, fmt.Errorf("entity %s: id field %q has no column", name, e.IDField)
			}
		}

		for _, rel := range def.Relations {
			if rel.Name == "" {
				return nil, fmt.Errorf("entity %s: relation name is required", name)
			}
			if _, exists := e.relations[rel.Name]; exists {
				return nil, fmt.Errorf("entity %s: duplicate relation %q", name, rel.Name)
			}
			if rel.ForeignKey == "" {
				return nil, fmt.Errorf("entity %s: relation %s has no foreign key", name, rel.Name)
			}
			e.relations[rel.Name] = rel
			e.order = append(e.order, rel.Name)
		}

		reg.entities[name] = e
		plural := strings.ToLower(e.Plural)
		if other, exists := reg.byPlural[plural]; exists {
			return nil, fmt.Errorf("entities %s and %s share collection name %q", other.Name, name, e.Plural)
		}
		reg.byPlural[plural] = e
		reg.names = append(reg.names, name)
	}

	for _, e := range reg.entities {
		for _, rel := range e.relations {
			if _, ok := reg.entities[rel.Target]; !ok {
				return nil, fmt.Errorf("entity %s: relation %s targets %w %q", e.Name, rel.Name, ErrUnknownEntity, rel.Target)
			}
		}
	}

	sort.Strings(reg.names)
	return reg, nil
}
