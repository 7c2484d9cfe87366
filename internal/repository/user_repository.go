package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// UserRepository defines persistence access for agents.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO users (name, email, password_hash, profile, whatsapp_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Profile,
		user.WhatsappID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return translate(err)
	}
	for _, queueID := range user.QueueIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO user_queues (user_id, queue_id) VALUES ($1, $2)`, user.ID, queueID); err != nil {
			return translate(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, `WHERE u.id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `WHERE LOWER(u.email)=LOWER($1)`, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `
        SELECT u.id, u.name, u.email, u.password_hash, u.profile, u.whatsapp_id, u.created_at, u.updated_at,
               COALESCE(ARRAY_AGG(uq.queue_id ORDER BY uq.queue_id) FILTER (WHERE uq.queue_id IS NOT NULL), '{}')
        FROM users u
        LEFT JOIN user_queues uq ON uq.user_id = u.id
        ` + where + `
        GROUP BY u.id`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Profile,
		&user.WhatsappID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.QueueIDs,
	); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
