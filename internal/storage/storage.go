// Package storage publishes generated datasets to object storage.
package storage

import (
	"context"

	generrors "github.com/arkilian/abgen/internal/errors"
)

// ErrObjectNotFound matches, via errors.Is, any storage error reporting a
// missing object.
var ErrObjectNotFound = generrors.New(generrors.ErrCategoryStorage, generrors.CodeObjectNotFound, "object not found")

// Object describes a stored object.
type Object struct {
	Key  string
	ETag string
	Size int64
}

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies the file at localPath to objectPath and returns the
	// stored object's description.
	Upload(ctx context.Context, localPath, objectPath string) (Object, error)

	// Download copies objectPath to localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func notFound(objectPath string) error {
	return generrors.NewStorageError(generrors.CodeObjectNotFound, "object not found: "+objectPath, nil)
}
