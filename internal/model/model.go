// Package model defines the entity categories and the generic document
// record the sync engine operates on.
package model

import "time"

// Category identifies one kind of creative-project record.
type Category string

const (
	// CategoryProject is a top-level creative project.
	CategoryProject Category = "project"

	// CategoryCharacter is a character belonging to a project.
	CategoryCharacter Category = "character"

	// CategoryImage is an image record; its binary payload syncs separately.
	CategoryImage Category = "image"

	// CategoryEdition is a published edition of a project.
	CategoryEdition Category = "edition"

	// CategoryScriptPage is a script page belonging to an edition.
	CategoryScriptPage Category = "scriptPage"

	// CategoryPanel is a panel belonging to a script page.
	CategoryPanel Category = "panel"
)

// Categories returns every category the engine syncs, in a stable order.
// The engine is generic over this set; adding a kind here is enough to
// have it hashed, diffed, and merged.
func Categories() []Category {
	return []Category{
		CategoryProject,
		CategoryCharacter,
		CategoryImage,
		CategoryEdition,
		CategoryScriptPage,
		CategoryPanel,
	}
}

// IsValid returns true if the category is recognized.
func (c Category) IsValid() bool {
	switch c {
	case CategoryProject, CategoryCharacter, CategoryImage,
		CategoryEdition, CategoryScriptPage, CategoryPanel:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// PluralKey returns the key used for this category's map in the manifest
// wire format (e.g. "projects", "scriptPages").
func (c Category) PluralKey() string {
	switch c {
	case CategoryProject:
		return "projects"
	case CategoryCharacter:
		return "characters"
	case CategoryImage:
		return "images"
	case CategoryEdition:
		return "editions"
	case CategoryScriptPage:
		return "scriptPages"
	case CategoryPanel:
		return "panels"
	default:
		return string(c) + "s"
	}
}

// HasBinary returns true if records of this category carry a binary
// payload that is diffed and transferred independently of the metadata.
func (c Category) HasBinary() bool {
	return c == CategoryImage
}

// Tombstone records a local deletion so other devices learn an item was
// removed. Retained for a fixed window, then pruned.
type Tombstone struct {
	// ID is the deleted record's identifier.
	ID string `json:"id"`

	// Type is the deleted record's category.
	Type Category `json:"type"`

	// DeletedAt is when the deletion happened.
	DeletedAt time.Time `json:"deletedAt"`

	// DeletedByDeviceID attributes the deletion to a device.
	DeletedByDeviceID string `json:"deletedByDeviceId"`
}

// Document is a schemaless record as stored in the local database.
// Fields holds the full record body; the hasher normalizes it before
// digesting, and local-only fields inside it never affect the hash.
type Document struct {
	// ID is the record's unique identifier within its category.
	ID string

	// Name is the record's display name, used when reporting conflicts.
	Name string

	// UpdatedAt is the record's own last-modified timestamp.
	UpdatedAt time.Time

	// Fields is the record body as decoded JSON.
	Fields map[string]any
}
