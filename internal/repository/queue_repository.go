package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// QueueRepository manages persistence for routing queues.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, id int64) (*domain.Queue, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Queue, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository constructs repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (name, color, greeting_message)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		queue.Name,
		queue.Color,
		queue.GreetingMessage,
	).Scan(&queue.ID, &queue.CreatedAt, &queue.UpdatedAt)
	return translate(err)
}

func (r *queueRepository) GetByID(ctx context.Context, id int64) (*domain.Queue, error) {
	const query = `
        SELECT id, name, color, greeting_message, created_at, updated_at
        FROM queues WHERE id=$1`
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&queue.ID,
		&queue.Name,
		&queue.Color,
		&queue.GreetingMessage,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &queue, nil
}

// ListByIDs returns the queues in id order; unknown ids are skipped.
func (r *queueRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Queue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `
        SELECT id, name, color, greeting_message, created_at, updated_at
        FROM queues WHERE id = ANY($1) ORDER BY id`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(
			&queue.ID,
			&queue.Name,
			&queue.Color,
			&queue.GreetingMessage,
			&queue.CreatedAt,
			&queue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}
