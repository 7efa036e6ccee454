package helper

import (
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// Fixture table names.
const (
	TableGrandparents   = "grandparents"
	TableParents        = "parents"
	TableAnotherParents = "another_parents"
	TableRoots          = "roots"
	TableDetails        = "details"
	TableChildren       = "children"
	TableNotes          = "notes"
)

// RootVersionColumn is the version column of the versioned fixture root.
const RootVersionColumn = "current_version"

// FixtureTypes is a small entity graph covering every relation shape the engine cares about:
//
//	grandparent <- parent <- root -> another parent
//	                         root <- detail (has one)
//	                         root <- children (has many, never traversed)
//
// Notes carry no version column and no timestamps.
type FixtureTypes struct {
	Grandparent   *snapshot.EntityType
	Parent        *snapshot.EntityType
	AnotherParent *snapshot.EntityType
	Root          *snapshot.EntityType
	Detail        *snapshot.EntityType
	Child         *snapshot.EntityType
	Note          *snapshot.EntityType
}

func fixtureTimestamps() snapshot.Timestamps {
	return snapshot.Timestamps{CreatedAt: "created_at", UpdatedAt: "updated_at"}
}

// NewFixtureTypes builds a fresh set of fixture entity types without a loader.
func NewFixtureTypes() FixtureTypes {
	grandparent := &snapshot.EntityType{
		Name:       "grandparent",
		Table:      TableGrandparents,
		PrimaryKey: "id",
		Columns:    []string{"name"},
		Casts:      map[string]string{"id": snapshot.CastInt, "created_at": snapshot.CastDatetime, "updated_at": snapshot.CastDatetime},
		Timestamps: fixtureTimestamps(),
	}

	parent := &snapshot.EntityType{
		Name:       "parent",
		Table:      TableParents,
		PrimaryKey: "id",
		Columns:    []string{"name", "castable1", "grandparent_id"},
		Casts: map[string]string{
			"id":             snapshot.CastInt,
			"castable1":      snapshot.CastInt,
			"grandparent_id": snapshot.CastInt,
			"created_at":     snapshot.CastDatetime,
			"updated_at":     snapshot.CastDatetime,
		},
		Timestamps: fixtureTimestamps(),
	}
	parent.AddRelation(snapshot.BelongsTo("parent", grandparent, "grandparent_id"))

	anotherParent := &snapshot.EntityType{
		Name:       "another_parent",
		Table:      TableAnotherParents,
		PrimaryKey: "id",
		Columns:    []string{"label"},
		Casts:      map[string]string{"id": snapshot.CastInt, "created_at": snapshot.CastDatetime, "updated_at": snapshot.CastDatetime},
		Timestamps: fixtureTimestamps(),
	}

	root := &snapshot.EntityType{
		Name:       "root",
		Table:      TableRoots,
		PrimaryKey: "id",
		Columns:    []string{"attribute1", "attribute2", "attribute3", "castable1", "tags", "parent_id", "another_parent_id"},
		Hidden:     []string{"hidden1"},
		Casts: map[string]string{
			"id":                snapshot.CastInt,
			"castable1":         snapshot.CastInt,
			"tags":              snapshot.CastArray,
			"parent_id":         snapshot.CastInt,
			"another_parent_id": snapshot.CastInt,
			RootVersionColumn:   snapshot.CastInt,
			"created_at":        snapshot.CastDatetime,
			"updated_at":        snapshot.CastDatetime,
		},
		Timestamps:    fixtureTimestamps(),
		VersionColumn: RootVersionColumn,
	}

	detail := &snapshot.EntityType{
		Name:       "detail",
		Table:      TableDetails,
		PrimaryKey: "id",
		Columns:    []string{"root_id", "body"},
		Casts:      map[string]string{"id": snapshot.CastInt, "root_id": snapshot.CastInt, "created_at": snapshot.CastDatetime, "updated_at": snapshot.CastDatetime},
		Timestamps: fixtureTimestamps(),
	}

	child := &snapshot.EntityType{
		Name:       "child",
		Table:      TableChildren,
		PrimaryKey: "id",
		Columns:    []string{"root_id", "name"},
		Casts:      map[string]string{"id": snapshot.CastInt, "root_id": snapshot.CastInt},
	}

	root.AddRelation(snapshot.BelongsTo("parent", parent, "parent_id"))
	root.AddRelation(snapshot.BelongsTo("anotherParent", anotherParent, "another_parent_id"))
	root.AddRelation(snapshot.HasOne("detail", detail, "root_id"))
	root.AddRelation(snapshot.HasMany("children", child, "root_id"))

	note := &snapshot.EntityType{
		Name:       "note",
		Table:      TableNotes,
		PrimaryKey: "id",
		Columns:    []string{"body"},
		Casts:      map[string]string{"id": snapshot.CastInt},
	}

	return FixtureTypes{
		Grandparent:   grandparent,
		Parent:        parent,
		AnotherParent: anotherParent,
		Root:          root,
		Detail:        detail,
		Child:         child,
		Note:          note,
	}
}

// All returns every fixture type.
func (f FixtureTypes) All() []*snapshot.EntityType {
	return []*snapshot.EntityType{f.Grandparent, f.Parent, f.AnotherParent, f.Root, f.Detail, f.Child, f.Note}
}

// Registry returns a registry of all fixture types with the loader bound to each of them.
func (f FixtureTypes) Registry(loader snapshot.EntityLoader) *snapshot.Registry {
	registry, err := snapshot.NewRegistry(f.All()...)
	if err != nil {
		panic(err) // fixture types are always valid
	}

	registry.BindLoader(loader)

	return registry
}

// fixtureSchema is the SQLite DDL of the fixture tables.
const fixtureSchema = `
CREATE TABLE grandparents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE parents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	castable1 TEXT,
	grandparent_id INTEGER,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE another_parents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE roots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attribute1 TEXT,
	attribute2 TEXT,
	attribute3 TEXT,
	castable1 TEXT,
	hidden1 TEXT,
	tags TEXT,
	parent_id INTEGER,
	another_parent_id INTEGER,
	current_version INTEGER NULL,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE details (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	root_id INTEGER,
	body TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE children (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	root_id INTEGER,
	name TEXT
);
CREATE TABLE notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	body TEXT
);
`
