package document

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Repository provides database operations for documents
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new document repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save saves a new document with any versions it already carries
func (r *Repository) Save(ctx context.Context, d *Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO care.documents (
			id, patient_id, doc_date, category, doctor, tags, title,
			current_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(ctx, query,
		d.ID, d.PatientID, d.DocDate, d.Category, d.Doctor, d.Tags, d.Title,
		d.CurrentVersion, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save document")
	}

	for _, v := range d.Versions {
		if err := saveVersion(ctx, tx, &v); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds a document by ID, including its versions
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Document, error) {
	query := `
		SELECT id, patient_id, doc_date, category, doctor, tags, title,
			current_version, created_at, updated_at
		FROM care.documents
		WHERE id = $1`

	d, err := scanDocument(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find document")
	}

	versions, err := r.getVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Versions = versions

	return d, nil
}

// Update persists changed document fields and any new versions
func (r *Repository) Update(ctx context.Context, d *Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE care.documents SET
			doc_date = $2, category = $3, doctor = $4, tags = $5, title = $6,
			current_version = $7, updated_at = $8
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		d.ID, d.DocDate, d.Category, d.Doctor, d.Tags, d.Title,
		d.CurrentVersion, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update document")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("document", d.ID.String())
	}

	// Versions are append-only; re-insert any that are new
	for _, v := range d.Versions {
		_, err := tx.Exec(ctx, `
			INSERT INTO care.document_versions (id, document_id, version, file_path, file_hash, file_size, mime_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			v.ID, v.DocumentID, v.Version, v.FilePath, v.FileHash, v.FileSize, v.MimeType, v.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to save document version")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Delete deletes a document and its versions
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM care.documents WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("document", id.String())
	}
	return nil
}

// List lists documents matching the filter, without their versions
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Document, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 1

	if filter.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argN)
		args = append(args, *filter.PatientID)
		argN++
	}
	if filter.Category != nil {
		where += fmt.Sprintf(" AND category = $%d", argN)
		args = append(args, *filter.Category)
		argN++
	}
	if filter.Doctor != "" {
		where += fmt.Sprintf(" AND doctor = $%d", argN)
		args = append(args, filter.Doctor)
		argN++
	}
	if filter.Tag != "" {
		where += fmt.Sprintf(" AND $%d = ANY(tags)", argN)
		args = append(args, filter.Tag)
		argN++
	}
	if filter.FromDate != "" {
		where += fmt.Sprintf(" AND doc_date >= $%d", argN)
		args = append(args, filter.FromDate)
		argN++
	}
	if filter.ToDate != "" {
		where += fmt.Sprintf(" AND doc_date <= $%d", argN)
		args = append(args, filter.ToDate)
		argN++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM care.documents " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count documents")
	}

	query := `
		SELECT id, patient_id, doc_date, category, doctor, tags, title,
			current_version, created_at, updated_at
		FROM care.documents ` + where + " ORDER BY doc_date DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan document")
		}
		documents = append(documents, d)
	}

	return documents, total, nil
}

func (r *Repository) getVersions(ctx context.Context, documentID types.ID) ([]Version, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, version, file_path, file_hash, file_size, mime_type, created_at
		FROM care.document_versions
		WHERE document_id = $1
		ORDER BY version`, documentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load versions")
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.FilePath, &v.FileHash, &v.FileSize, &v.MimeType, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan version")
		}
		versions = append(versions, v)
	}

	return versions, nil
}

func saveVersion(ctx context.Context, tx pgx.Tx, v *Version) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO care.document_versions (id, document_id, version, file_path, file_hash, file_size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.DocumentID, v.Version, v.FilePath, v.FileHash, v.FileSize, v.MimeType, v.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save document version")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	d := &Document{}
	var doctor *string

	err := row.Scan(
		&d.ID, &d.PatientID, &d.DocDate, &d.Category, &doctor, &d.Tags, &d.Title,
		&d.CurrentVersion, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if doctor != nil {
		d.Doctor = *doctor
	}

	return d, nil
}
