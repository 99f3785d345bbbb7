package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered names and resolves collisions
// by applying numeric suffixes when duplicates are detected.
type CollisionResolver struct {
	seenEntities map[string]string            // entity name → source table
	seenFields   map[string]map[string]string // entity name → field name → source
	logger       *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenEntities: make(map[string]string),
		seenFields:   make(map[string]map[string]string),
		logger:       logger,
	}
}

// RegisterEntity registers an entity name and returns the resolved name.
func (c *CollisionResolver) RegisterEntity(entityName, tableName string) string {
	return c.resolveCollision(entityName, c.seenEntities, "table:"+tableName)
}

// RegisterField registers a field or relation name within an entity and returns the resolved name.
func (c *CollisionResolver) RegisterField(entityName, fieldName, source string) string {
	if c.seenFields[entityName] == nil {
		c.seenFields[entityName] = make(map[string]string)
	}
	return c.resolveCollision(fieldName, c.seenFields[entityName], source)
}

// FieldExists checks if a field name already exists for an entity.
func (c *CollisionResolver) FieldExists(entityName, fieldName string) bool {
	if fields, ok := c.seenFields[entityName]; ok {
		_, exists := fields[fieldName]
		return exists
	}
	return false
}

// resolveCollision attempts to register a name in the given map.
// If the name already exists, finds the next available numeric suffix.
func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
