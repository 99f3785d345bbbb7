package schemagraph

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worldModels = `
models:
  - name: Country
    relations:
      - {name: cities, type: hasMany, model: City}
  - name: City
    relations:
      - {name: country, type: belongsTo, model: Country}
      - {name: people, type: hasMany, model: Person}
  - name: Person
    relations:
      - {name: city, type: belongsTo, model: City}
      - {name: products, type: hasMany, model: Product}
  - name: Product
    relations:
      - {name: person, type: belongsTo, model: Person}
`

func TestParse_DefaultsFollowConvention(t *testing.T) {
	reg, err := Parse([]byte(worldModels), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"City", "Country", "Person", "Product"}, reg.Names())

	person, err := reg.Entity("Person")
	require.NoError(t, err)
	assert.Equal(t, "People", person.Plural)
	assert.Equal(t, "people", person.Table)
	assert.Equal(t, DefaultIDField, person.IDField)

	city, ok := person.Relation("city")
	require.True(t, ok)
	assert.Equal(t, Relation{Name: "city", Kind: BelongsTo, Target: "City", ForeignKey: "cityId"}, city)

	products, ok := person.Relation("products")
	require.True(t, ok)
	assert.Equal(t, Relation{Name: "products", Kind: HasMany, Target: "Product", ForeignKey: "personId"}, products)

	country, err := reg.Entity("Country")
	require.NoError(t, err)
	cities, _ := country.Relation("cities")
	assert.Equal(t, "countryId", cities.ForeignKey)
}

func TestRelations_DeclaredOrder(t *testing.T) {
	reg, err := Parse([]byte(worldModels), nil)
	require.NoError(t, err)

	city, err := reg.Entity("City")
	require.NoError(t, err)

	var names []string
	for _, rel := range city.Relations() {
		names = append(names, rel.Name)
	}
	assert.Equal(t, []string{"country", "people"}, names)
}

func TestRelationTo_FirstMatchWins(t *testing.T) {
	reg, err := Build([]EntityDef{
		{Name: "User"},
		{Name: "Post", Relations: []Relation{
			{Name: "author", Kind: BelongsTo, Target: "User", ForeignKey: "authorId"},
			{Name: "editor", Kind: BelongsTo, Target: "User", ForeignKey: "editorId"},
		}},
	})
	require.NoError(t, err)

	post, err := reg.Entity("Post")
	require.NoError(t, err)
	rel, ok := post.RelationTo("User")
	require.True(t, ok)
	assert.Equal(t, "author", rel.Name)

	_, ok = post.RelationTo("Comment")
	assert.False(t, ok)
}

func TestEntityByPlural_CaseInsensitive(t *testing.T) {
	reg, err := Parse([]byte(worldModels), nil)
	require.NoError(t, err)

	e, ok := reg.EntityByPlural("people")
	require.True(t, ok)
	assert.Equal(t, "Person", e.Name)

	e, ok = reg.EntityByPlural("Countries")
	require.True(t, ok)
	assert.Equal(t, "Country", e.Name)

	_, ok = reg.EntityByPlural("Planets")
	assert.False(t, ok)
}

func TestEntity_Unknown(t *testing.T) {
	reg, err := Parse([]byte(worldModels), nil)
	require.NoError(t, err)

	_, err = reg.Entity("Planet")
	assert.True(t, errors.Is(err, ErrUnknownEntity))

	var nilReg *Registry
	_, err = nilReg.Entity("Person")
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name string
		defs []EntityDef
		want string
	}{
		{
			name: "empty entity name",
			defs: []EntityDef{{Name: " "}},
			want: "entity name is required",
		},
		{
			name: "duplicate entity",
			defs: []EntityDef{{Name: "A"}, {Name: "A"}},
			want: "duplicate entity",
		},
		{
			name: "duplicate relation",
			defs: []EntityDef{{Name: "A", Relations: []Relation{
				{Name: "b", Kind: BelongsTo, Target: "A", ForeignKey: "bId"},
				{Name: "b", Kind: HasMany, Target: "A", ForeignKey: "aId"},
			}}},
			want: "duplicate relation",
		},
		{
			name: "missing foreign key",
			defs: []EntityDef{{Name: "A", Relations: []Relation{
				{Name: "b", Kind: BelongsTo, Target: "A"},
			}}},
			want: "has no foreign key",
		},
		{
			name: "unknown target",
			defs: []EntityDef{{Name: "A", Relations: []Relation{
				{Name: "b", Kind: BelongsTo, Target: "B", ForeignKey: "bId"},
			}}},
			want: "unknown entity",
		},
		{
			name: "shared collection name",
			defs: []EntityDef{{Name: "A", Plural: "Things"}, {Name: "B", Plural: "things"}},
			want: "share collection name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.defs)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuild_KeepsUnrecognizedKinds(t *testing.T) {
	reg, err := Build([]EntityDef{
		{Name: "A", Relations: []Relation{{Name: "b", Kind: Kind("hasOne"), Target: "B", ForeignKey: "aId"}}},
		{Name: "B"},
	})
	require.NoError(t, err)

	a, _ := reg.Entity("A")
	rel, ok := a.Relation("b")
	require.True(t, ok)
	assert.Equal(t, Kind("hasOne"), rel.Kind)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("models:\n  - name: A\n    colour: red\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode models")
}

func TestParse_ExplicitOverrides(t *testing.T) {
	src := `
models:
  - name: Person
    plural: Persons
    table: tbl_person
    id: person_id
    relations:
      - {name: home, type: belongsTo, model: Place, foreignKey: place_ref}
  - name: Place
`
	reg, err := Parse([]byte(src), nil)
	require.NoError(t, err)

	person, _ := reg.Entity("Person")
	assert.Equal(t, "Persons", person.Plural)
	assert.Equal(t, "tbl_person", person.Table)
	assert.Equal(t, "person_id", person.IDField)
	home, _ := person.Relation("home")
	assert.Equal(t, "place_ref", home.ForeignKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(worldModels), 0o600))

	reg, err := LoadFile(path, nil)
	require.NoError(t, err)
	assert.Len(t, reg.Names(), 4)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read model file")
}

func TestEntity_ColumnMapping(t *testing.T) {
	reg, err := Build([]EntityDef{
		{Name: "Person", Table: "people", Columns: map[string]string{"id": "id", "cityId": "city_id", "name": "name"}},
		{Name: "Plain"},
	})
	require.NoError(t, err)

	person, _ := reg.Entity("Person")
	col, ok := person.Column("cityId")
	require.True(t, ok)
	assert.Equal(t, "city_id", col)
	_, ok = person.Column("nickname")
	assert.False(t, ok)
	assert.Equal(t, "cityId", person.Field("city_id"))
	assert.Equal(t, []string{"city_id", "id", "name"}, person.Columns())

	plain, _ := reg.Entity("Plain")
	col, ok = plain.Column("anything")
	assert.True(t, ok)
	assert.Equal(t, "anything", col)
	assert.Nil(t, plain.Columns())
}

func TestBuild_ColumnMapMustCoverID(t *testing.T) {
	_, err := Build([]EntityDef{{Name: "A", Columns: map[string]string{"name": "name"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id field")
}
