package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ContactRepository persists contacts and their custom fields.
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	Update(ctx context.Context, contact *domain.Contact) error
	GetByID(ctx context.Context, id int64) (*domain.Contact, error)
	GetByNumber(ctx context.Context, number string) (*domain.Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a Postgres-backed implementation.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO contacts (name, number, email, profile_pic_url, is_group)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		contact.Name,
		contact.Number,
		contact.Email,
		contact.ProfilePicURL,
		contact.IsGroup,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt); err != nil {
		return translate(err)
	}
	if err := writeCustomFields(ctx, tx, contact); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *contactRepository) Update(ctx context.Context, contact *domain.Contact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE contacts SET name=$1, email=$2, profile_pic_url=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, query,
		contact.Name,
		contact.Email,
		contact.ProfilePicURL,
		contact.ID,
	).Scan(&contact.UpdatedAt); err != nil {
		return translate(err)
	}
	if contact.ExtraInfo != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM contact_custom_fields WHERE contact_id=$1`, contact.ID); err != nil {
			return err
		}
		if err := writeCustomFields(ctx, tx, contact); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func writeCustomFields(ctx context.Context, tx pgx.Tx, contact *domain.Contact) error {
	for _, field := range contact.ExtraInfo {
		if _, err := tx.Exec(ctx,
			`INSERT INTO contact_custom_fields (contact_id, name, value) VALUES ($1,$2,$3)`,
			contact.ID, field.Name, field.Value,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *contactRepository) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	return r.fetchSingle(ctx, `WHERE id=$1`, id)
}

func (r *contactRepository) GetByNumber(ctx context.Context, number string) (*domain.Contact, error) {
	return r.fetchSingle(ctx, `WHERE number=$1`, number)
}

func (r *contactRepository) fetchSingle(ctx context.Context, where string, arg any) (*domain.Contact, error) {
	query := `
        SELECT id, name, number, email, profile_pic_url, is_group, created_at, updated_at
        FROM contacts ` + where
	var contact domain.Contact
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&contact.ID,
		&contact.Name,
		&contact.Number,
		&contact.Email,
		&contact.ProfilePicURL,
		&contact.IsGroup,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}

	rows, err := r.pool.Query(ctx, `SELECT name, value FROM contact_custom_fields WHERE contact_id=$1 ORDER BY id`, contact.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var field domain.ContactCustomField
		if err := rows.Scan(&field.Name, &field.Value); err != nil {
			return nil, err
		}
		contact.ExtraInfo = append(contact.ExtraInfo, field)
	}
	return &contact, rows.Err()
}
