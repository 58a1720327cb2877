package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentSQL implements repository.DocumentRepository on database/sql.
// The queries are portable between the pgx and sqlite3 drivers: both accept
// $N placeholders and INSERT ... RETURNING.
type DocumentSQL struct {
	db *sql.DB
}

// NewDocumentSQL creates a new DocumentSQL repository.
func NewDocumentSQL(db *sql.DB) *DocumentSQL {
	return &DocumentSQL{db: db}
}

var _ repository.DocumentRepository = (*DocumentSQL)(nil)

const selectColumns = `SELECT id, filename, filepath, filesize, created_at FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.Filename,
		&d.Filepath,
		&d.Filesize,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and reads it back by the assigned id.
// Both statements share one transaction so a failed read-back leaves no row.
func (r *DocumentSQL) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const qInsert = `
		INSERT INTO documents (filename, filepath, filesize, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx, qInsert,
		doc.Filename,
		doc.Filepath,
		doc.Filesize,
		doc.CreatedAt,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	stored, err := scanDocument(tx.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("read back document %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentSQL) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	return scanDocument(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

// List returns every document, newest first. Rows sharing a timestamp are
// ordered by id so the result is stable.
func (r *DocumentSQL) List(ctx context.Context) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a document by ID. It returns sql.ErrNoRows when no row matched,
// which happens when another request deleted it first.
func (r *DocumentSQL) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
