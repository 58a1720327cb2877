package repository

import (
	"context"

	"docvault/internal/model"
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, strictly persistence operations.
// Lookups and deletes of a missing id return sql.ErrNoRows.
type DocumentRepository interface {
	// Create inserts a new document record. ID is assigned by the database.
	// Returns the stored row as read back for the assigned id.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns every document, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, id int64) error
}
