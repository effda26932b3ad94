package storage

import (
	"context"

	"catalogbot/internal/models"
)

// Documents stores the catalog document as a whole.
// Every write is conditioned on the revision returned by the last read.
type Documents interface {
	// ReadDocument returns the items and the current revision.
	// A document that does not exist yet reads as no items and an empty revision.
	ReadDocument(ctx context.Context) ([]models.Product, string, error)

	// WriteDocument replaces the document if it still has the given revision
	// (empty means "must not exist") and returns the new revision.
	// A stale revision fails with a CONFLICT error.
	WriteDocument(ctx context.Context, items []models.Product, revision, message string) (string, error)
}

// Blobs stores binary assets next to the catalog document.
type Blobs interface {
	// PutBlob creates or overwrites the file at path and returns its revision.
	PutBlob(ctx context.Context, path string, data []byte, message string) (string, error)

	// DeleteBlob removes the file at path. A missing file is not an error.
	DeleteBlob(ctx context.Context, path string) error
}

// Journal records catalog mutations for the operators.
type Journal interface {
	Record(ctx context.Context, event models.CatalogEvent) error

	// LastEvents returns the newest events first.
	LastEvents(ctx context.Context, limit int) ([]models.CatalogEvent, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
