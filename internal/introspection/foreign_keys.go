package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into an ordered FK constraint mapping.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// SingleColumn reports whether the constraint maps exactly one column.
func (c ForeignKeyConstraint) SingleColumn() bool {
	return len(c.ColumnNames) == 1 && len(c.ReferencedColumns) == 1
}

// ForeignKeyConstraints returns FK constraints for a table ordered by
// constraint name, with columns in ordinal order.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type row struct {
		key   string
		fk    ForeignKey
		index int
	}
	rows := make([]row, 0, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			// Unnamed rows never merge.
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		rows = append(rows, row{key: key, fk: fk, index: i})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		if rows[i].fk.OrdinalPosition != rows[j].fk.OrdinalPosition {
			return rows[i].fk.OrdinalPosition < rows[j].fk.OrdinalPosition
		}
		return rows[i].index < rows[j].index
	})

	var result []ForeignKeyConstraint
	lastKey := ""
	for _, item := range rows {
		if len(result) == 0 || item.key != lastKey {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  item.fk.ConstraintName,
				ReferencedTable: item.fk.ReferencedTable,
			})
			lastKey = item.key
		}
		group := &result[len(result)-1]
		group.ColumnNames = append(group.ColumnNames, item.fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, item.fk.ReferencedColumn)
	}
	return result
}
