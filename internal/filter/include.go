package filter

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Include asks the data layer to eager-load a relation, optionally with a
// nested scope.
type Include struct {
	Relation string `json:"relation"`
	Scope    *Scope `json:"scope,omitempty"`
}

// Scope narrows an included relation and may nest further includes.
type Scope struct {
	Where   Condition `json:"where,omitempty"`
	Include []Include `json:"include,omitempty"`
}

// ParseInclude decodes an include value in any of its accepted shapes:
//
//	"city"
//	["city", "products"]
//	{"relation": "city", "scope": {"include": "country"}}
//	{"city": "country"}
func ParseInclude(data []byte) ([]Include, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("include: %v", err)
	}
	return includesFromValue(v)
}

func includesFromValue(v any) ([]Include, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, malformed("include relation name is empty")
		}
		return []Include{{Relation: val}}, nil
	case []any:
		var out []Include
		for _, item := range val {
			incs, err := includesFromValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, incs...)
		}
		return out, nil
	case map[string]any:
		if rel, ok := val["relation"]; ok {
			inc, err := includeFromObject(rel, val["scope"])
			if err != nil {
				return nil, err
			}
			return []Include{inc}, nil
		}
		// Shorthand {"relation": nested}.
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]Include, 0, len(names))
		for _, name := range names {
			nested, err := includesFromValue(val[name])
			if err != nil {
				return nil, err
			}
			inc := Include{Relation: name}
			if len(nested) > 0 {
				inc.Scope = &Scope{Include: nested}
			}
			out = append(out, inc)
		}
		return out, nil
	default:
		return nil, malformed("include must be a string, array or object")
	}
}

func includeFromObject(rel, scope any) (Include, error) {
	name, ok := rel.(string)
	if !ok || name == "" {
		return Include{}, malformed("include relation must be a non-empty string")
	}
	inc := Include{Relation: name}
	if scope == nil {
		return inc, nil
	}
	m, ok := scope.(map[string]any)
	if !ok {
		return Include{}, malformed("include scope for %q must be an object", name)
	}
	s := &Scope{}
	if w, ok := m[KeyWhere]; ok && w != nil {
		cond, ok := w.(map[string]any)
		if !ok {
			return Include{}, malformed("include scope where for %q must be an object", name)
		}
		s.Where = cond
	}
	if nested, ok := m[KeyInclude]; ok {
		incs, err := includesFromValue(nested)
		if err != nil {
			return Include{}, err
		}
		s.Include = incs
	}
	inc.Scope = s
	return inc, nil
}
