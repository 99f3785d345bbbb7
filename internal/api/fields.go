package api

import (
	"encoding/json"
	"fmt"

	"relfind/internal/datastore"
	"relfind/internal/filter"
)

// projection selects which top-level fields of a record are returned.
// Included relations are never projected away.
type projection struct {
	only    map[string]bool
	exclude map[string]bool
}

// parseFields reads the "fields" filter key. It accepts a list of field names
// or an object of field -> bool. An object with any true value keeps only the
// true fields; otherwise it drops the false ones.
func parseFields(f *filter.Filter) (*projection, error) {
	raw, ok := f.Raw(filter.KeyFields)
	if !ok {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: fields: %v", filter.ErrMalformedFilter, err)
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		p := &projection{only: make(map[string]bool, len(val))}
		for _, item := range val {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: fields list must contain strings", filter.ErrMalformedFilter)
			}
			p.only[name] = true
		}
		return p, nil
	case map[string]any:
		p := &projection{}
		for name, flag := range val {
			keep, ok := flag.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: fields.%s must be a boolean", filter.ErrMalformedFilter, name)
			}
			if keep {
				if p.only == nil {
					p.only = make(map[string]bool)
				}
				p.only[name] = true
			} else {
				if p.exclude == nil {
					p.exclude = make(map[string]bool)
				}
				p.exclude[name] = true
			}
		}
		if p.only != nil {
			p.exclude = nil
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: fields must be a list or an object", filter.ErrMalformedFilter)
	}
}

func (p *projection) apply(nodes []datastore.Node, relations map[string]bool) {
	if p == nil {
		return
	}
	for _, node := range nodes {
		for key := range node {
			if relations[key] {
				continue
			}
			if p.only != nil && !p.only[key] {
				delete(node, key)
				continue
			}
			if p.exclude[key] {
				delete(node, key)
			}
		}
	}
}

// includedRelations returns the top-level relation names an include list loads.
func includedRelations(incs []filter.Include) map[string]bool {
	out := make(map[string]bool, len(incs))
	for _, inc := range incs {
		out[inc.Relation] = true
	}
	return out
}
