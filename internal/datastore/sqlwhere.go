package datastore

import (
	"encoding/json"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"relfind/internal/filter"
	"relfind/internal/schemagraph"
	"relfind/internal/sqlutil"
)

// buildSQLCondition translates a condition into a squirrel predicate on
// entity's columns. It returns nil for an empty condition.
func buildSQLCondition(entity *schemagraph.Entity, dialect sqlutil.Dialect, cond filter.Condition) (sq.Sqlizer, error) {
	conditions := []sq.Sqlizer{}
	keys := make([]string, 0, len(cond))
	for key := range cond {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := cond[key]
		switch key {
		case filter.KeyAnd, filter.KeyOr:
			items, err := conditionList(key, value)
			if err != nil {
				return nil, err
			}
			parts := []sq.Sqlizer{}
			for _, item := range items {
				part, err := buildSQLCondition(entity, dialect, item)
				if err != nil {
					return nil, err
				}
				if part != nil {
					parts = append(parts, part)
				}
			}
			if key == filter.KeyAnd {
				conditions = append(conditions, sq.And(parts))
			} else {
				conditions = append(conditions, sq.Or(parts))
			}
		default:
			col, ok := entity.Column(key)
			if !ok {
				return nil, invalid("unknown field %s on %s", key, entity.Name)
			}
			colConditions, err := buildSQLColumnFilter(dialect.QuoteIdentifier(col), key, value)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, colConditions...)
		}
	}

	if len(conditions) == 0 {
		return nil, nil
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return sq.And(conditions), nil
}

func buildSQLColumnFilter(quotedColumn, field string, value any) ([]sq.Sqlizer, error) {
	ops, ok := isOperatorObject(value)
	if !ok {
		return []sq.Sqlizer{sq.Eq{quotedColumn: sqlArg(value)}}, nil
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	conditions := []sq.Sqlizer{}
	for _, op := range names {
		operand := ops[op]
		switch op {
		case filter.OpEq:
			conditions = append(conditions, sq.Eq{quotedColumn: sqlArg(operand)})
		case filter.OpNeq:
			conditions = append(conditions, sq.NotEq{quotedColumn: sqlArg(operand)})
		case filter.OpLt:
			conditions = append(conditions, sq.Lt{quotedColumn: sqlArg(operand)})
		case filter.OpLte:
			conditions = append(conditions, sq.LtOrEq{quotedColumn: sqlArg(operand)})
		case filter.OpGt:
			conditions = append(conditions, sq.Gt{quotedColumn: sqlArg(operand)})
		case filter.OpGte:
			conditions = append(conditions, sq.GtOrEq{quotedColumn: sqlArg(operand)})
		case filter.OpIn, filter.OpInq:
			arr, ok := operand.([]any)
			if !ok {
				return nil, invalid("%s operator on %s requires an array", op, field)
			}
			conditions = append(conditions, sq.Eq{quotedColumn: sqlArgs(arr)})
		case filter.OpNin:
			arr, ok := operand.([]any)
			if !ok {
				return nil, invalid("nin operator on %s requires an array", field)
			}
			conditions = append(conditions, sq.NotEq{quotedColumn: sqlArgs(arr)})
		case filter.OpLike:
			conditions = append(conditions, sq.Like{quotedColumn: sqlArg(operand)})
		case filter.OpNlike:
			conditions = append(conditions, sq.NotLike{quotedColumn: sqlArg(operand)})
		case filter.OpBetween:
			arr, ok := operand.([]any)
			if !ok || len(arr) != 2 {
				return nil, invalid("between operator on %s requires a two-element array", field)
			}
			conditions = append(conditions, sq.And{
				sq.GtOrEq{quotedColumn: sqlArg(arr[0])},
				sq.LtOrEq{quotedColumn: sqlArg(arr[1])},
			})
		case filter.OpExists:
			want, ok := operand.(bool)
			if !ok {
				return nil, invalid("exists operator on %s requires a boolean", field)
			}
			if want {
				conditions = append(conditions, sq.NotEq{quotedColumn: nil})
			} else {
				conditions = append(conditions, sq.Eq{quotedColumn: nil})
			}
		default:
			return nil, invalid("unknown operator %q on %s", op, field)
		}
	}
	return conditions, nil
}

// sqlArg converts decoded JSON numbers into driver-friendly values.
func sqlArg(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func sqlArgs(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = sqlArg(v)
	}
	return out
}
