package reversal

import (
	"path"
	"strings"
)

// Policy restricts which relation paths may be reversed.
type Policy struct {
	// MaxPathDepth bounds the number of path segments. Zero uses DefaultMaxPathDepth;
	// a negative value disables the bound.
	MaxPathDepth int
	// AllowPaths maps entity-name globs to relation-path globs. A path is
	// allowed when some entry matching the root entity has a matching path
	// glob. A nil map allows every path.
	AllowPaths map[string][]string
}

func (p Policy) maxDepth() int {
	switch {
	case p.MaxPathDepth == 0:
		return DefaultMaxPathDepth
	case p.MaxPathDepth < 0:
		return 0
	default:
		return p.MaxPathDepth
	}
}

// Allows reports whether relationPath may be reversed from entity. Entity
// globs match case-insensitively; path globs are exact.
func (p Policy) Allows(entity, relationPath string) bool {
	if p.AllowPaths == nil {
		return true
	}
	for entityGlob, pathGlobs := range p.AllowPaths {
		if !matchGlob(strings.ToLower(entityGlob), strings.ToLower(entity)) {
			continue
		}
		for _, g := range pathGlobs {
			if matchGlob(g, relationPath) {
				return true
			}
		}
	}
	return false
}

func matchGlob(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
