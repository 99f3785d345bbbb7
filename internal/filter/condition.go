package filter

// Condition is a where expression: field names map to a value (equality) or
// to an operator object such as {"in": [...]}, and the keys "and"/"or" hold
// lists of nested conditions. It is a plain map so decoded JSON can be used
// without conversion.
type Condition = map[string]any

// Logical keys.
const (
	KeyAnd = "and"
	KeyOr  = "or"
)

// Operators understood by the data stores.
const (
	OpEq      = "eq"
	OpNeq     = "neq"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpIn      = "in"
	OpInq     = "inq"
	OpNin     = "nin"
	OpLike    = "like"
	OpNlike   = "nlike"
	OpBetween = "between"
	OpExists  = "exists"
)

// In returns {field: {"in": values}}. The slice is copied.
func In(field string, values []any) Condition {
	vals := make([]any, len(values))
	copy(vals, values)
	return Condition{field: map[string]any{OpIn: vals}}
}

// And returns {"and": conds}. Nil conditions are dropped.
func And(conds ...Condition) Condition {
	items := make([]any, 0, len(conds))
	for _, c := range conds {
		if c == nil {
			continue
		}
		items = append(items, c)
	}
	return Condition{KeyAnd: items}
}
