package schemagraph

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"relfind/internal/naming"
)

// ModelFile is the on-disk model definition format.
type ModelFile struct {
	Models []ModelDef `yaml:"models"`
}

// ModelDef declares one entity in a model file.
type ModelDef struct {
	// Name is the entity name (e.g. "Person").
	Name string `yaml:"name"`
	// Plural overrides the collection name; defaults to the pluralized name.
	Plural string `yaml:"plural,omitempty"`
	// Table overrides the backing table; defaults to the snake_case plural.
	Table string `yaml:"table,omitempty"`
	// ID overrides the identifier field; defaults to "id".
	ID        string        `yaml:"id,omitempty"`
	Relations []RelationDef `yaml:"relations,omitempty"`
	// Fields maps field names to columns when they differ. When set, every
	// queryable field must be listed.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// RelationDef declares one relation in a model file.
type RelationDef struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	ForeignKey string `yaml:"foreignKey,omitempty"`
}

// LoadFile reads a YAML model file and builds a Registry.
func LoadFile(path string, namer *naming.Namer) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %q: %w", path, err)
	}
	reg, err := Parse(data, namer)
	if err != nil {
		return nil, fmt.Errorf("model file %q: %w", path, err)
	}
	return reg, nil
}

// Parse decodes YAML model definitions and builds a Registry.
// Unknown keys are rejected.
func Parse(data []byte, namer *naming.Namer) (*Registry, error) {
	if namer == nil {
		namer = naming.Default()
	}

	var file ModelFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	defs := make([]EntityDef, 0, len(file.Models))
	for _, m := range file.Models {
		def := EntityDef{
			Name:    m.Name,
			Plural:  m.Plural,
			Table:   m.Table,
			IDField: m.ID,
			Columns: m.Fields,
		}
		if def.Plural == "" {
			def.Plural = namer.CollectionName(m.Name)
		}
		if def.Table == "" {
			def.Table = namer.TableName(m.Name)
		}
		for _, r := range m.Relations {
			kind := Kind(strings.TrimSpace(r.Type))
			fk := r.ForeignKey
			if fk == "" {
				fk = defaultForeignKey(kind, m.Name, r.Name, namer)
			}
			def.Relations = append(def.Relations, Relation{
				Name:       r.Name,
				Kind:       kind,
				Target:     r.Model,
				ForeignKey: fk,
			})
		}
		defs = append(defs, def)
	}

	return Build(defs)
}

// defaultForeignKey follows the usual convention: a belongsTo relation "city"
// keys on "cityId"; a hasMany relation owned by "Person" keys on "personId".
func defaultForeignKey(kind Kind, owner, relation string, namer *naming.Namer) string {
	switch kind {
	case BelongsTo:
		return relation + "Id"
	default:
		return namer.ToFieldName(owner) + "Id"
	}
}
