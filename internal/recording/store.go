package recording

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when an id does not
// resolve to a persisted recording.
var ErrNotFound = errors.New("recording not found")

// Patch is a partial update; only non-nil fields change.
type Patch struct {
	Transcription *string
	LastError     *string
}

// Store persists Recording metadata. All operations are atomic at
// single-record granularity.
type Store interface {
	// Insert assigns an id and createdAt, persists the record, and
	// returns the stored form.
	Insert(ctx context.Context, r Recording) (Recording, error)
	FindByID(ctx context.Context, id string) (Recording, error)
	// ListAll returns all recordings, newest createdAt first.
	ListAll(ctx context.Context) ([]Recording, error)
	Update(ctx context.Context, id string, p Patch) (Recording, error)
	DeleteByID(ctx context.Context, id string) error
}
