package reversal

import "relfind/internal/datastore"

// ExtractLeafIDs descends node along path and returns idField from every
// leaf reached. Lists are flattened at any depth in encounter order. Nil or
// missing intermediate nodes and nil leaf values are skipped.
func ExtractLeafIDs(node any, path []string, idField string) []any {
	var out []any
	collectLeafIDs(node, path, idField, &out)
	return out
}

func collectLeafIDs(node any, path []string, idField string, out *[]any) {
	switch n := node.(type) {
	case nil:
		return
	case []map[string]any:
		for _, item := range n {
			collectLeafIDs(item, path, idField, out)
		}
	case []any:
		for _, item := range n {
			collectLeafIDs(item, path, idField, out)
		}
	case map[string]any:
		if len(path) == 0 {
			if v, ok := n[idField]; ok && v != nil {
				*out = append(*out, v)
			}
			return
		}
		collectLeafIDs(n[path[0]], path[1:], idField, out)
	}
}

// dedupeIDs drops repeated identifiers, keeping the first occurrence.
// Numeric values compare by value regardless of their Go type.
func dedupeIDs(ids []any) []any {
	seen := make(map[any]struct{}, len(ids))
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		key := datastore.KeyOf(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
