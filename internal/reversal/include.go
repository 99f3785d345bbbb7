package reversal

import "relfind/internal/filter"

// BuildIncludeScope nests names into an include chain with the first name
// outermost. It returns nil for an empty list.
func BuildIncludeScope(names []string) *filter.Include {
	if len(names) == 0 {
		return nil
	}
	inc := &filter.Include{Relation: names[0]}
	if inner := BuildIncludeScope(names[1:]); inner != nil {
		inc.Scope = &filter.Scope{Include: []filter.Include{*inner}}
	}
	return inc
}
