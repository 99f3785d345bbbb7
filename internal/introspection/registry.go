package introspection

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"relfind/internal/naming"
	"relfind/internal/schemagraph"
)

type tableEntity struct {
	table    *Table
	name     string
	idColumn string
	// fields maps column name to field name.
	fields map[string]string
	def    schemagraph.EntityDef
}

type pendingHasMany struct {
	owner      *tableEntity
	referenced *tableEntity
	column     string
	constraint string
	onlyFK     bool
}

// BuildRegistry turns an introspected schema into an entity registry. Each
// table with a single-column primary key becomes an entity; each
// single-column foreign key onto such a key yields a belongsTo relation on
// the owning entity and a hasMany relation on the referenced one. Tables and
// keys that cannot be represented are skipped with a warning.
func BuildRegistry(ctx context.Context, schema *Schema, namer *naming.Namer, logger *slog.Logger) (*schemagraph.Registry, error) {
	_, span := startSpan(ctx, "introspection.build_registry")
	defer span.End()

	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	namer.Reset()

	var tables []*Table
	if schema != nil {
		for i := range schema.Tables {
			tables = append(tables, &schema.Tables[i])
		}
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	entities := make([]*tableEntity, 0, len(tables))
	byTable := make(map[string]*tableEntity, len(tables))
	for _, table := range tables {
		if table.IsView {
			logger.Debug("skipping view", slog.String("table", table.Name))
			continue
		}
		idCol, err := IdentityColumn(*table)
		if err != nil {
			logger.Warn("skipping table", slog.String("table", table.Name), slog.String("reason", err.Error()))
			continue
		}

		te := &tableEntity{
			table:    table,
			name:     namer.RegisterEntity(table.Name),
			idColumn: idCol.Name,
			fields:   make(map[string]string, len(table.Columns)),
		}
		columns := make(map[string]string, len(table.Columns))
		for _, col := range table.Columns {
			field := namer.RegisterColumn(te.name, namer.ToFieldName(col.Name))
			te.fields[col.Name] = field
			columns[field] = col.Name
		}
		te.def = schemagraph.EntityDef{
			Name:    te.name,
			Plural:  namer.CollectionName(te.name),
			Table:   table.Name,
			IDField: te.fields[idCol.Name],
			Columns: columns,
		}
		entities = append(entities, te)
		byTable[table.Name] = te
	}

	// Belongs-to names are registered first so the owning side keeps the
	// plain name when both directions collide.
	var hasMany []pendingHasMany
	for _, owner := range entities {
		constraints := ForeignKeyConstraints(*owner.table)
		refCounts := make(map[string]int, len(constraints))
		for _, c := range constraints {
			refCounts[c.ReferencedTable]++
		}

		for _, c := range constraints {
			if !c.SingleColumn() {
				logger.Warn("skipping composite foreign key",
					slog.String("table", owner.table.Name),
					slog.String("constraint", c.ConstraintName),
				)
				continue
			}
			referenced, ok := byTable[c.ReferencedTable]
			if !ok {
				logger.Debug("skipping foreign key to unmapped table",
					slog.String("table", owner.table.Name),
					slog.String("referenced_table", c.ReferencedTable),
				)
				continue
			}
			if c.ReferencedColumns[0] != referenced.idColumn {
				logger.Warn("skipping foreign key that does not reference the primary key",
					slog.String("table", owner.table.Name),
					slog.String("constraint", c.ConstraintName),
					slog.String("referenced_column", c.ReferencedColumns[0]),
				)
				continue
			}
			column := c.ColumnNames[0]
			fkField, ok := owner.fields[column]
			if !ok {
				continue
			}

			name := namer.RegisterRelation(owner.name, namer.BelongsToName(column), owner.table.Name+"."+c.ConstraintName, true)
			owner.def.Relations = append(owner.def.Relations, schemagraph.Relation{
				Name:       name,
				Kind:       schemagraph.BelongsTo,
				Target:     referenced.name,
				ForeignKey: fkField,
			})
			hasMany = append(hasMany, pendingHasMany{
				owner:      owner,
				referenced: referenced,
				column:     column,
				constraint: c.ConstraintName,
				onlyFK:     refCounts[c.ReferencedTable] == 1,
			})
		}
	}

	for _, p := range hasMany {
		name := namer.RegisterRelation(p.referenced.name,
			namer.HasManyName(p.owner.table.Name, p.column, p.onlyFK),
			p.owner.table.Name+"."+p.constraint, false)
		p.referenced.def.Relations = append(p.referenced.def.Relations, schemagraph.Relation{
			Name:       name,
			Kind:       schemagraph.HasMany,
			Target:     p.owner.name,
			ForeignKey: p.owner.fields[p.column],
		})
	}

	defs := make([]schemagraph.EntityDef, 0, len(entities))
	relations := 0
	for _, te := range entities {
		defs = append(defs, te.def)
		relations += len(te.def.Relations)
	}
	span.SetAttributes(
		attribute.Int("relfind.entities", len(defs)),
		attribute.Int("relfind.relations", relations),
	)

	reg, err := schemagraph.Build(defs)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return reg, nil
}
