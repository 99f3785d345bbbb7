package naming

import "strings"

// filterKeywords are keys with meaning inside a filter or condition object.
// A relation or entity carrying one of these names could never be addressed.
var filterKeywords = map[string]bool{
	"and":     true,
	"or":      true,
	"where":   true,
	"require": true,
	"include": true,
	"scope":   true,
	"order":   true,
	"limit":   true,
	"skip":    true,
	"offset":  true,
	"fields":  true,
}

// isReservedName checks if a name collides with a filter keyword.
func isReservedName(name string) bool {
	return filterKeywords[strings.ToLower(name)]
}
