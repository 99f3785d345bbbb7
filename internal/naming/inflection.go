package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Overrides are matched case-insensitively and keep the word's leading case.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if override, ok := overrides[word]; ok {
		return override, true
	}
	if word == "" {
		return "", false
	}
	override, ok := overrides[strings.ToLower(word[:1])+word[1:]]
	if !ok || override == "" {
		return "", false
	}
	if word[:1] != strings.ToLower(word[:1]) {
		return strings.ToUpper(override[:1]) + override[1:], true
	}
	return override, true
}
