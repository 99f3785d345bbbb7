package filter

import (
	"bytes"
	"encoding/json"
	"strings"
)

// OrderBy is one sort key.
type OrderBy struct {
	Field string
	Desc  bool
}

// ParseOrder decodes "field [ASC|DESC]" or a list of such strings.
func ParseOrder(data []byte) ([]OrderBy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("order: %v", err)
	}

	var specs []string
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		specs = []string{val}
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, malformed("order entries must be strings")
			}
			specs = append(specs, s)
		}
	default:
		return nil, malformed("order must be a string or an array of strings")
	}

	out := make([]OrderBy, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Fields(spec)
		switch len(parts) {
		case 1:
			out = append(out, OrderBy{Field: parts[0]})
		case 2:
			switch strings.ToUpper(parts[1]) {
			case "ASC":
				out = append(out, OrderBy{Field: parts[0]})
			case "DESC":
				out = append(out, OrderBy{Field: parts[0], Desc: true})
			default:
				return nil, malformed("order direction %q", parts[1])
			}
		default:
			return nil, malformed("order %q", spec)
		}
	}
	return out, nil
}
