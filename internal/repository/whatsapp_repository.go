package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// WhatsappRepository persists connections and their session state.
type WhatsappRepository interface {
	Create(ctx context.Context, whatsapp *domain.Whatsapp) error
	GetByID(ctx context.Context, id int64) (*domain.Whatsapp, error)
	GetDefault(ctx context.Context) (*domain.Whatsapp, error)
	List(ctx context.Context) ([]domain.Whatsapp, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ConnectionStatus, qrcode string, retries int) error
	UpdateSession(ctx context.Context, id int64, jid string) error
}

type whatsappRepository struct {
	pool *pgxpool.Pool
}

// NewWhatsappRepository constructs repository.
func NewWhatsappRepository(pool *pgxpool.Pool) WhatsappRepository {
	return &whatsappRepository{pool: pool}
}

const whatsappSelect = `
        SELECT w.id, w.name, w.status, w.qrcode, w.retries, w.is_default, w.greeting_message,
               w.farewell_message, w.session_jid, w.created_at, w.updated_at,
               COALESCE(ARRAY_AGG(wq.queue_id ORDER BY wq.queue_id) FILTER (WHERE wq.queue_id IS NOT NULL), '{}')
        FROM whatsapps w
        LEFT JOIN whatsapp_queues wq ON wq.whatsapp_id = w.id`

func (r *whatsappRepository) Create(ctx context.Context, whatsapp *domain.Whatsapp) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO whatsapps (name, status, is_default, greeting_message, farewell_message)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		whatsapp.Name,
		whatsapp.Status,
		whatsapp.IsDefault,
		whatsapp.GreetingMessage,
		whatsapp.FarewellMessage,
	).Scan(&whatsapp.ID, &whatsapp.CreatedAt, &whatsapp.UpdatedAt); err != nil {
		return translate(err)
	}
	for _, queueID := range whatsapp.QueueIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO whatsapp_queues (whatsapp_id, queue_id) VALUES ($1,$2)`, whatsapp.ID, queueID); err != nil {
			return translate(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *whatsappRepository) GetByID(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	return r.fetchSingle(ctx, whatsappSelect+` WHERE w.id=$1 GROUP BY w.id`, id)
}

func (r *whatsappRepository) GetDefault(ctx context.Context) (*domain.Whatsapp, error) {
	return r.fetchSingle(ctx, whatsappSelect+` WHERE w.is_default GROUP BY w.id LIMIT 1`)
}

func (r *whatsappRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Whatsapp, error) {
	var w domain.Whatsapp
	if err := scanWhatsapp(r.pool.QueryRow(ctx, query, args...), &w); err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *whatsappRepository) List(ctx context.Context) ([]domain.Whatsapp, error) {
	rows, err := r.pool.Query(ctx, whatsappSelect+` GROUP BY w.id ORDER BY w.id`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Whatsapp
	for rows.Next() {
		var w domain.Whatsapp
		if err := scanWhatsapp(rows, &w); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *whatsappRepository) UpdateStatus(ctx context.Context, id int64, status domain.ConnectionStatus, qrcode string, retries int) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE whatsapps SET status=$1, qrcode=$2, retries=$3, updated_at=NOW() WHERE id=$4`,
		status, qrcode, retries, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *whatsappRepository) UpdateSession(ctx context.Context, id int64, jid string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE whatsapps SET session_jid=$1, updated_at=NOW() WHERE id=$2`, jid, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWhatsapp(row pgx.Row, w *domain.Whatsapp) error {
	return row.Scan(
		&w.ID,
		&w.Name,
		&w.Status,
		&w.QRCode,
		&w.Retries,
		&w.IsDefault,
		&w.GreetingMessage,
		&w.FarewellMessage,
		&w.SessionJID,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.QueueIDs,
	)
}
