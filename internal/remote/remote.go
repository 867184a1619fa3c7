// Package remote abstracts the shared object store the devices sync
// through. The store has no logic of its own: it only gets and puts named
// JSON and binary blobs per logical folder.
package remote

import (
	"context"
	"errors"

	"github.com/kettleworks/storysync/internal/model"
)

// ErrNotExist is returned when a named blob is absent. Absence is a
// normal condition (first sync, concurrent delete), never a failure.
var ErrNotExist = errors.New("remote object does not exist")

// ManifestName is the single manifest blob at the root of the sync
// namespace.
const ManifestName = "manifest.json"

// FilesFolder holds the raw binary payloads of image records.
const FilesFolder = "files"

// Store is the remote object store adapter consumed by the sync engine.
type Store interface {
	// GetJSON fetches a named JSON blob from a folder, or ErrNotExist.
	GetJSON(ctx context.Context, folder, name string) ([]byte, error)

	// PutJSON upserts a named JSON blob in a folder.
	PutJSON(ctx context.Context, folder, name string, data []byte) error

	// Delete removes a named blob. Deleting an absent blob is not an
	// error.
	Delete(ctx context.Context, folder, name string) error

	// GetBinary fetches a named binary blob, or ErrNotExist.
	GetBinary(ctx context.Context, folder, name string) ([]byte, error)

	// PutBinary upserts a named binary blob with the given MIME type.
	PutBinary(ctx context.Context, folder, name string, data []byte, mimeType string) error
}

// MetadataName returns the blob name for a record's metadata.
func MetadataName(id string) string {
	return id + ".json"
}

// BinaryName returns the blob name for an image's primary payload.
func BinaryName(id string) string {
	return id + ".webp"
}

// ThumbnailName returns the blob name for an image's thumbnail payload.
func ThumbnailName(id string) string {
	return id + "_thumb.webp"
}

// Folder returns the logical folder for an entity category.
func Folder(cat model.Category) string {
	return cat.PluralKey()
}
