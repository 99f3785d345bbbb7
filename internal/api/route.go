// Package api serves the find and findOne endpoints for every entity in a
// registry.
package api

import (
	"strings"
)

// API methods. Their names match the require.methods configuration values.
const (
	MethodFind    = "find"
	MethodFindOne = "findOne"
)

// FilterParam is the query parameter holding the JSON filter.
const FilterParam = "filter"

// Route identifies the collection and method a request path addresses.
type Route struct {
	Collection string
	Method     string
}

// ParseRoute maps a URL path under basePath onto a Route:
// {base}/{collection} is find, {base}/{collection}/findOne is findOne.
func ParseRoute(basePath, urlPath string) (Route, bool) {
	base := strings.TrimRight(basePath, "/")
	rest, ok := strings.CutPrefix(urlPath, base+"/")
	if !ok || rest == "" {
		return Route{}, false
	}

	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return Route{Collection: parts[0], Method: MethodFind}, true
	case len(parts) == 2 && parts[0] != "" && parts[1] == MethodFindOne:
		return Route{Collection: parts[0], Method: MethodFindOne}, true
	default:
		return Route{}, false
	}
}
