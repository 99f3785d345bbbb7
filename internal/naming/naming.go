package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// Namer provides all name transformations used when building the entity
// registry from table metadata or model files.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new registry build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// EntityName converts a table name to an entity name (singular PascalCase).
// Example: "order_items" -> "OrderItem", "people" -> "Person"
func (n *Namer) EntityName(tableName string) string {
	return toPascalCase(n.Singularize(strings.ToLower(tableName)))
}

// CollectionName returns the routed collection name for an entity.
// Example: "Person" -> "People", "City" -> "Cities"
func (n *Namer) CollectionName(entityName string) string {
	return n.Pluralize(entityName)
}

// TableName returns the default backing table for an entity.
// Example: "Person" -> "people", "OrderItem" -> "order_items"
func (n *Namer) TableName(entityName string) string {
	return toSnakeCase(n.Pluralize(entityName))
}

// ToFieldName converts a column, table or entity name to a field name (camelCase).
// Example: "user_name" -> "userName", "Person" -> "person"
func (n *Namer) ToFieldName(name string) string {
	camel := toCamelCase(name)
	if camel == "" {
		return camel
	}
	return strings.ToLower(camel[:1]) + camel[1:]
}

// BelongsToName generates the relation name for a belongsTo edge
// based on the FK column name with common suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) BelongsToName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk", "Id"} {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
		if suffix != "Id" && strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.ToFieldName(name)
}

// HasManyName generates the relation name for a hasMany edge.
// If isOnlyFK is true (single FK from source table), uses the pluralized table name.
// Otherwise, prefixes with the FK column name for disambiguation.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "posts" -> "authorPosts"
func (n *Namer) HasManyName(sourceTable, fkColumn string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(n.Singularize(n.ToFieldName(sourceTable)))
	if isOnlyFK {
		return tablePlural
	}

	prefix := n.BelongsToName(fkColumn)
	if len(tablePlural) > 0 {
		return prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:]
	}
	return prefix
}

// RegisterEntity registers an entity name and returns the resolved name.
func (n *Namer) RegisterEntity(tableName string) string {
	return n.resolver.RegisterEntity(n.validateAndSuffix(n.EntityName(tableName)), tableName)
}

// RegisterColumn records a column field on an entity. Columns are registered
// before relations so relation names yield to them.
func (n *Namer) RegisterColumn(entityName, columnName string) string {
	return n.resolver.RegisterField(entityName, columnName, "column:"+columnName)
}

// RegisterRelation registers a relation name and returns the resolved name.
// A relation that collides with a column gets a Ref (belongsTo) or Rel
// (hasMany) suffix.
func (n *Namer) RegisterRelation(entityName, relationName, source string, isBelongsTo bool) string {
	relationName = n.validateAndSuffix(relationName)
	if n.resolver.FieldExists(entityName, relationName) {
		if isBelongsTo {
			relationName = relationName + "Ref"
		} else {
			relationName = relationName + "Rel"
		}
	}
	return n.resolver.RegisterField(entityName, relationName, "relation:"+source)
}

func (n *Namer) validateAndSuffix(name string) string {
	if isReservedName(name) {
		safeName := name + "_"
		n.logger.Warn("name conflicts with reserved filter keyword, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// toSnakeCase converts PascalCase or camelCase to snake_case.
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
