package datastore

import (
	"sort"

	"relfind/internal/filter"
)

// sortNodes orders nodes in place. Nil sorts before any value. With no
// explicit order, nodes sort by idField ascending.
func sortNodes(nodes []Node, order []filter.OrderBy, idField string) {
	if len(order) == 0 {
		order = []filter.OrderBy{{Field: idField}}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		for _, o := range order {
			c := compareForSort(nodes[i][o.Field], nodes[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareForSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return 0
}

// page applies skip and limit. A zero limit means unlimited.
func page(nodes []Node, skip, limit int) []Node {
	if skip >= len(nodes) {
		return []Node{}
	}
	nodes = nodes[skip:]
	if limit > 0 && limit < len(nodes) {
		nodes = nodes[:limit]
	}
	return nodes
}
