// Package datastore executes find queries with where conditions and nested
// includes against either an in-memory record set or a SQL database.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"relfind/internal/filter"
	"relfind/internal/schemagraph"
)

// Node is one record. Included relations appear under the relation name as a
// nested Node, nil, or []Node.
type Node = map[string]any

// ErrInvalidQuery is returned for conditions or includes the store cannot
// evaluate: unknown operators, unknown relations, malformed operands.
var ErrInvalidQuery = errors.New("invalid query")

// FindOptions describes one find call.
type FindOptions struct {
	Where   filter.Condition
	Include []filter.Include
	Order   []filter.OrderBy
	// Limit of 0 means unlimited.
	Limit int
	Skip  int
}

// Store is the data-access interface used by the API and by relation-path
// reversal.
type Store interface {
	Find(ctx context.Context, entity *schemagraph.Entity, opts FindOptions) ([]Node, error)
}

// OptionsFromFilter maps a filter onto FindOptions. "offset" is accepted as an
// alias of "skip"; numeric paging values may be given as strings.
func OptionsFromFilter(f *filter.Filter) (FindOptions, error) {
	var opts FindOptions
	if f == nil {
		return opts, nil
	}
	opts.Where = f.Where

	if raw, ok := f.Raw(filter.KeyInclude); ok {
		incs, err := filter.ParseInclude(raw)
		if err != nil {
			return opts, err
		}
		opts.Include = incs
	}
	if raw, ok := f.Raw(filter.KeyOrder); ok {
		order, err := filter.ParseOrder(raw)
		if err != nil {
			return opts, err
		}
		opts.Order = order
	}

	var err error
	if opts.Limit, err = pagingValue(f, filter.KeyLimit); err != nil {
		return opts, err
	}
	if opts.Skip, err = pagingValue(f, filter.KeySkip); err != nil {
		return opts, err
	}
	if opts.Skip == 0 {
		if opts.Skip, err = pagingValue(f, filter.KeyOffset); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func pagingValue(f *filter.Filter, key string) (int, error) {
	raw, ok := f.Raw(key)
	if !ok {
		return 0, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", filter.ErrMalformedFilter, key, err)
	}

	var n int
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("%w: %s must be an integer", filter.ErrMalformedFilter, key)
		}
		n = int(val)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", filter.ErrMalformedFilter, key)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", filter.ErrMalformedFilter, key)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", filter.ErrMalformedFilter, key)
	}
	return n, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
