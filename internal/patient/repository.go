package patient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Repository provides database operations for patients
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save saves a new patient
func (r *Repository) Save(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO care.patients (
			id, mrn, first_name, last_name, date_of_birth, gender,
			email, phone, street, city, state, postal_code, country,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Contact.Email, p.Contact.Phone,
		p.Address.Street, p.Address.City, p.Address.State, p.Address.PostalCode, p.Address.Country,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save patient")
	}
	return nil
}

// FindByID finds a patient by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, selectPatient+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

// FindByMRN finds a patient by medical record number
func (r *Repository) FindByMRN(ctx context.Context, mrn types.MRN) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, selectPatient+` WHERE mrn = $1`, mrn))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", mrn.Masked())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

// Update persists changed patient fields
func (r *Repository) Update(ctx context.Context, p *Patient) error {
	query := `
		UPDATE care.patients SET
			first_name = $2, last_name = $3, gender = $4,
			email = $5, phone = $6,
			street = $7, city = $8, state = $9, postal_code = $10, country = $11,
			updated_at = $12
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, p.Gender,
		p.Contact.Email, p.Contact.Phone,
		p.Address.Street, p.Address.City, p.Address.State, p.Address.PostalCode, p.Address.Country,
		p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}
	return nil
}

// List lists patients matching the filter, ordered by last name
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Patient, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 1

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d OR mrn = $%d)", argN, argN, argN+1)
		args = append(args, "%"+filter.Search+"%", filter.Search)
		argN += 2
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM care.patients " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count patients")
	}

	query := selectPatient + " " + where + " ORDER BY last_name, first_name"

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
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}

	return patients, total, nil
}

const selectPatient = `
	SELECT id, mrn, first_name, last_name, date_of_birth, gender,
		email, phone, street, city, state, postal_code, country,
		created_at, updated_at
	FROM care.patients`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	p := &Patient{}
	var gender, email, phone, street, city, state, postalCode, country *string

	err := row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &gender,
		&email, &phone, &street, &city, &state, &postalCode, &country,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Gender, gender)
	set(&p.Contact.Email, email)
	set(&p.Contact.Phone, phone)
	set(&p.Address.Street, street)
	set(&p.Address.City, city)
	set(&p.Address.State, state)
	set(&p.Address.PostalCode, postalCode)
	set(&p.Address.Country, country)

	return p, nil
}
