// Package storage holds the temporary document cache that bridges payment
// initiation and paid delivery. Go keeps each package in its own folder;
// files in the folder share a namespace.
package storage

import (
	"context"
	"errors"

	"github.com/nexusai/auditoria/internal/model"
)

var (
	// ErrNotFound is exported so callers elsewhere can compare errors using
	// errors.Is.
	ErrNotFound = errors.New("document not found")
)

// DocumentCache stores pending documents by order id.
type DocumentCache interface {
	// Put stores doc under orderID, replacing any previous value.
	Put(ctx context.Context, orderID string, doc *model.PendingDocument) error
	// Get returns ErrNotFound for unknown or deleted ids.
	Get(ctx context.Context, orderID string) (*model.PendingDocument, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, orderID string) error
	// Take removes and returns the document in one atomic step, so two
	// concurrent callers can never both receive it.
	Take(ctx context.Context, orderID string) (*model.PendingDocument, error)
}
