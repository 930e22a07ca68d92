package blobstore

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by Delete when the provider reports the
// handle does not exist. Callers may treat it as already-consistent.
var ErrObjectNotFound = errors.New("object not found")

// Location is the durable address of a stored blob. URL is fetchable for
// playback; Handle is the opaque token needed to delete the object.
type Location struct {
	URL    string
	Handle string
}

// BlobStore is durable object storage for raw audio.
type BlobStore interface {
	// Put uploads bytes in a single shot and returns the blob's location.
	Put(ctx context.Context, data []byte, contentType, nameHint string) (Location, error)
	// Delete removes the object behind handle.
	Delete(ctx context.Context, handle string) error
	// Fetch downloads the full object from its public URL.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
