// Package store persists labeled documents.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/labeler"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is the persisted form of a labeling session. Entities are
// stored as they were last accepted; they are re-resolved against the text
// when a session is opened.
type Document struct {
	ID          string                              `json:"id"`
	Title       string                              `json:"title"`
	Text        string                              `json:"text"`
	Entities    []entity.Entity[labeler.EntityData] `json:"entities"`
	Mode        labeler.Mode                        `json:"mode"`
	ContentHash string                              `json:"content_hash"`
	CreatedAt   time.Time                           `json:"created_at"`
	UpdatedAt   time.Time                           `json:"updated_at"`
}

// Store is a document repository.
type Store interface {
	// Put inserts or replaces a document. CreatedAt is kept from the
	// existing row when there is one.
	Put(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) error
	// List returns documents, most recently updated first.
	List(ctx context.Context, limit int) ([]*Document, error)
	Close() error
}
