package introspection

import "fmt"

// PrimaryKeyColumns returns all primary key columns for a table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// IdentityColumn returns the column used as the entity id. Relation reversal
// collects single values, so only tables with a one-column primary key have one.
func IdentityColumn(table Table) (*Column, error) {
	pks := PrimaryKeyColumns(table)
	switch len(pks) {
	case 0:
		return nil, fmt.Errorf("table %s has no primary key", table.Name)
	case 1:
		return &pks[0], nil
	default:
		return nil, fmt.Errorf("table %s has a composite primary key (%d columns)", table.Name, len(pks))
	}
}
