package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, title, original_file_name, blob_ref, blob_delete_handle, size_bytes, language, status, fields, page_count, completed_blob_ref, completed_delete_handle, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	fields, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.OriginalFileName,
		doc.BlobRef,
		doc.BlobDeleteHandle,
		doc.SizeBytes,
		doc.Language,
		string(doc.Status),
		fields,
		doc.PageCount,
		nullString(doc.CompletedBlobRef),
		nullString(doc.CompletedDeleteHandle),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document by ID for its owner.
func (r *PGRepo) GetByID(ctx context.Context, ownerID, id string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List lists the owner's documents ordered newest-first.
func (r *PGRepo) List(ctx context.Context, ownerID string, filter Filter) ([]Document, error) {
	var b strings.Builder
	b.WriteString(`
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1`)
	args := []any{ownerID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&b, " AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, escapeLike(filter.Search))
		fmt.Fprintf(&b, " AND title ILIKE '%%' || $%d || '%%'", len(args))
	}
	b.WriteString("\nORDER BY created_at DESC, id DESC")

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Update writes the mutable columns when the stored status matches expected.
func (r *PGRepo) Update(ctx context.Context, doc Document, expected Status) error {
	const query = `
UPDATE documents
SET title = $1, language = $2, status = $3, fields = $4, page_count = $5,
    completed_blob_ref = $6, completed_delete_handle = $7, updated_at = $8
WHERE id = $9 AND user_id = $10 AND status = $11`

	fields, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(
		ctx,
		query,
		doc.Title,
		doc.Language,
		string(doc.Status),
		fields,
		doc.PageCount,
		nullString(doc.CompletedBlobRef),
		nullString(doc.CompletedDeleteHandle),
		doc.UpdatedAt,
		doc.ID,
		doc.OwnerID,
		string(expected),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	const probe = `SELECT status FROM documents WHERE id = $1 AND user_id = $2`
	var current string
	if err := r.DB.QueryRowContext(ctx, probe, doc.ID, doc.OwnerID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%w: stored=%s expected=%s", ErrConflict, current, expected)
}

// Delete removes the owner's document.
func (r *PGRepo) Delete(ctx context.Context, ownerID, id string) error {
	const query = `DELETE FROM documents WHERE user_id = $1 AND id = $2`
	res, err := r.DB.ExecContext(ctx, query, ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	var fields []byte
	var completedRef sql.NullString
	var completedHandle sql.NullString
	if err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.OriginalFileName,
		&doc.BlobRef,
		&doc.BlobDeleteHandle,
		&doc.SizeBytes,
		&doc.Language,
		&status,
		&fields,
		&doc.PageCount,
		&completedRef,
		&completedHandle,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return Document{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	if completedRef.Valid {
		doc.CompletedBlobRef = completedRef.String
	}
	if completedHandle.Valid {
		doc.CompletedDeleteHandle = completedHandle.String
	}
	return doc, nil
}

func encodeFields(fields []Field) (string, error) {
	if fields == nil {
		fields = []Field{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ Repo = (*PGRepo)(nil)
