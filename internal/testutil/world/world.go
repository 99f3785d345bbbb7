// Package world provides the Country/City/Person/Product data set used by
// tests across packages.
package world

import (
	"database/sql"
	"testing"

	"relfind/internal/schemagraph"
)

// Models declares the four entities. City belongs to Country, Person belongs
// to City, Product belongs to Person; each has the inverse hasMany.
const Models = `
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

// Registry parses Models or fails the test.
func Registry(t testing.TB) *schemagraph.Registry {
	t.Helper()
	reg, err := schemagraph.Parse([]byte(Models), nil)
	if err != nil {
		t.Fatalf("failed to build world registry: %v", err)
	}
	return reg
}

// Records returns fresh copies of the fixture rows keyed by entity name.
// Ids encode their ancestry: city 110 is in country 100, person 111 lives in
// city 110 and owns product 1110.
func Records() map[string][]map[string]any {
	return map[string][]map[string]any{
		"Country": {
			{"id": 100, "name": "NZ"},
			{"id": 200, "name": "AUS"},
		},
		"City": {
			{"id": 110, "name": "Auckland", "countryId": 100},
			{"id": 120, "name": "Wellington", "countryId": 100},
			{"id": 210, "name": "Melbourne", "countryId": 200},
			{"id": 220, "name": "Sydney", "countryId": 200},
		},
		"Person": {
			{"id": 111, "name": "John", "cityId": 110},
			{"id": 112, "name": "Joe", "cityId": 110},
			{"id": 121, "name": "Jeff", "cityId": 120},
			{"id": 122, "name": "Jane", "cityId": 120},
			{"id": 211, "name": "Sam", "cityId": 210},
			{"id": 212, "name": "Sandy", "cityId": 210},
			{"id": 221, "name": "Steve", "cityId": 220},
			{"id": 222, "name": "Seth", "cityId": 220},
		},
		"Product": {
			{"id": 1110, "name": "A1", "personId": 111},
			{"id": 1120, "name": "A2", "personId": 112},
			{"id": 1210, "name": "B1", "personId": 121},
			{"id": 1220, "name": "B2", "personId": 122},
			{"id": 2110, "name": "C1", "personId": 211},
			{"id": 2120, "name": "C2", "personId": 212},
			{"id": 2210, "name": "D1", "personId": 221},
			{"id": 2220, "name": "D2", "personId": 222},
		},
	}
}

// SQLiteSchema creates the fixture tables using the default table names.
var SQLiteSchema = []string{
	`CREATE TABLE countries (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE cities (id INTEGER PRIMARY KEY, name TEXT NOT NULL, countryId INTEGER REFERENCES countries(id))`,
	`CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL, cityId INTEGER REFERENCES cities(id))`,
	`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL, personId INTEGER REFERENCES people(id))`,
}

// LoadSQL creates the fixture tables on db and inserts every record.
func LoadSQL(t testing.TB, db *sql.DB) {
	t.Helper()
	for _, stmt := range SQLiteSchema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}

	inserts := []struct {
		entity string
		stmt   string
		fk     string
	}{
		{"Country", `INSERT INTO countries (id, name) VALUES (?, ?)`, ""},
		{"City", `INSERT INTO cities (id, name, countryId) VALUES (?, ?, ?)`, "countryId"},
		{"Person", `INSERT INTO people (id, name, cityId) VALUES (?, ?, ?)`, "cityId"},
		{"Product", `INSERT INTO products (id, name, personId) VALUES (?, ?, ?)`, "personId"},
	}
	records := Records()
	for _, ins := range inserts {
		for _, r := range records[ins.entity] {
			args := []any{r["id"], r["name"]}
			if ins.fk != "" {
				args = append(args, r[ins.fk])
			}
			if _, err := db.Exec(ins.stmt, args...); err != nil {
				t.Fatalf("failed to insert %s %v: %v", ins.entity, r["id"], err)
			}
		}
	}
}
