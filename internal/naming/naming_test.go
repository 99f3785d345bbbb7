package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"people", "Person"},
		{"cities", "City"},
		{"countries", "Country"},
		{"order_items", "OrderItem"},
		{"products", "Product"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.EntityName(tt.input))
		})
	}
}

func TestCollectionAndTableName(t *testing.T) {
	namer := Default()

	tests := []struct {
		entity     string
		collection string
		table      string
	}{
		{"Person", "People", "people"},
		{"City", "Cities", "cities"},
		{"Country", "Countries", "countries"},
		{"OrderItem", "OrderItems", "order_items"},
	}

	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			assert.Equal(t, tt.collection, namer.CollectionName(tt.entity))
			assert.Equal(t, tt.table, namer.TableName(tt.entity))
		})
	}
}

func TestToFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"Person", "person"},
		{"OrderItem", "orderItem"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ToFieldName(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"orderItem", "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: map[string]string{
			"staff": "staff",
		},
		SingularOverrides: make(map[string]string),
	}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "Staff", namer.Pluralize("Staff"))
	assert.Equal(t, "users", namer.Pluralize("user"))
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: make(map[string]string),
		SingularOverrides: map[string]string{
			"data": "datum",
		},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "user", namer.Singularize("users"))
}

func TestBelongsToName(t *testing.T) {
	namer := Default()

	tests := []struct {
		fkColumn string
		expected string
	}{
		{"author_id", "author"},
		{"city_id", "city"},
		{"cityId", "city"},
		{"created_by_user_id", "createdByUser"},
		{"parent_fk", "parent"},
		{"owner", "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.fkColumn, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.BelongsToName(tt.fkColumn))
		})
	}
}

func TestHasManyName(t *testing.T) {
	namer := Default()

	assert.Equal(t, "people", namer.HasManyName("people", "city_id", true))
	assert.Equal(t, "orderItems", namer.HasManyName("order_items", "order_id", true))
	assert.Equal(t, "authorPosts", namer.HasManyName("posts", "author_id", false))
}

func TestRegisterRelation_ColumnCollision(t *testing.T) {
	namer := Default()

	namer.RegisterColumn("Person", "city")
	got := namer.RegisterRelation("Person", "city", "people.city->cities", true)
	assert.Equal(t, "cityRef", got)

	namer.RegisterColumn("Country", "cities")
	got = namer.RegisterRelation("Country", "cities", "cities.country_id->countries", false)
	assert.Equal(t, "citiesRel", got)
}

func TestRegisterRelation_ReservedKeyword(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	got := namer.RegisterRelation("Rule", "or", "rules.or_id->ors", true)
	assert.Equal(t, "or_", got)
	assert.Contains(t, buf.String(), "reserved filter keyword")
}

func TestRegisterEntity_Collision(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "Person", namer.RegisterEntity("people"))
	assert.Equal(t, "Person2", namer.RegisterEntity("persons"))
	assert.Contains(t, buf.String(), "naming collision detected")

	namer.Reset()
	assert.Equal(t, "Person", namer.RegisterEntity("persons"))
}
