// Package schemafilter applies allow/deny filters to introspected schemas
// before they become entities.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"relfind/internal/introspection"
)

// Config controls allow/deny filters for tables and columns.
// Patterns are case-insensitive path.Match globs.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
}

// Apply filters tables, columns and foreign keys in place.
// Missing allow lists default to allow-all; deny rules always win. Primary
// key columns are never removed, since an entity cannot exist without one.
// A foreign key survives only when both of its ends survive.
func Apply(schema *introspection.Schema, cfg Config) {
	if schema == nil {
		return
	}

	filtered := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.IsView && !cfg.ScanViewsEnabled {
			continue
		}
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}

		columns := make([]introspection.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if column.IsPrimaryKey || columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				columns = append(columns, column)
			}
		}
		if len(columns) == 0 {
			continue
		}
		table.Columns = columns
		filtered = append(filtered, table)
	}

	allowedColumnsByTable := make(map[string]map[string]bool, len(filtered))
	for _, table := range filtered {
		cols := make(map[string]bool, len(table.Columns))
		for _, c := range table.Columns {
			cols[c.Name] = true
		}
		allowedColumnsByTable[table.Name] = cols
	}
	for i := range filtered {
		filtered[i].ForeignKeys = filterForeignKeys(filtered[i].ForeignKeys, allowedColumnsByTable[filtered[i].Name], allowedColumnsByTable)
	}

	schema.Tables = filtered
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	if matchesAny(column, mergePatterns(deny, table)) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func filterForeignKeys(fks []introspection.ForeignKey, allowedColumns map[string]bool, allowedColumnsByTable map[string]map[string]bool) []introspection.ForeignKey {
	var kept []introspection.ForeignKey
	for _, fk := range fks {
		if !allowedColumns[fk.ColumnName] {
			continue
		}
		remoteColumns := allowedColumnsByTable[fk.ReferencedTable]
		if remoteColumns == nil || !remoteColumns[fk.ReferencedColumn] {
			continue
		}
		kept = append(kept, fk)
	}
	return kept
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
