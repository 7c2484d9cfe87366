package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MessageRepository stores ticket messages.
type MessageRepository interface {
	// Create inserts the message. It reports false when a message with the
	// same transport id was already stored.
	Create(ctx context.Context, message *domain.Message) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// ListByTicket pages backwards from the newest message; each page is
	// returned in chronological order.
	ListByTicket(ctx context.Context, ticketID int64, limit, offset int) ([]domain.Message, int, error)
	// UpdateAck raises the ack level and reports whether it changed.
	UpdateAck(ctx context.Context, id string, ack domain.MessageAck) (bool, error)
	SoftDelete(ctx context.Context, id string) error
	MarkTicketRead(ctx context.Context, ticketID int64) error
	CountUnread(ctx context.Context, ticketID int64) (int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns repository implementation.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageSelect = `
        SELECT m.id, m.seq, m.ticket_id, m.contact_id, m.body, m.from_me, m.read, m.ack, m.media_type,
               m.media_url, m.quoted_msg_id, m.is_deleted, m.created_at, m.updated_at,
               c.id, c.name, c.number,
               qm.id, qm.body, qm.from_me, qm.is_deleted, qm.created_at
        FROM messages m
        LEFT JOIN contacts c ON c.id = m.contact_id
        LEFT JOIN messages qm ON qm.id = m.quoted_msg_id`

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) (bool, error) {
	const query = `
        INSERT INTO messages (id, ticket_id, contact_id, body, from_me, read, ack, media_type, media_url, quoted_msg_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11, NOW()))
        ON CONFLICT (id) DO NOTHING
        RETURNING seq, created_at, updated_at`
	var createdAt any
	if !message.CreatedAt.IsZero() {
		createdAt = message.CreatedAt
	}
	mediaType := message.MediaType
	if mediaType == "" {
		mediaType = "chat"
	}
	err := r.pool.QueryRow(ctx, query,
		message.ID,
		message.TicketID,
		message.ContactID,
		message.Body,
		message.FromMe,
		message.Read,
		message.Ack,
		mediaType,
		message.MediaURL,
		message.QuotedMsgID,
		createdAt,
	).Scan(&message.Seq, &message.CreatedAt, &message.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	message.MediaType = mediaType
	return true, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	message, err := scanMessage(r.pool.QueryRow(ctx, messageSelect+` WHERE m.id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return message, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID int64, limit, offset int) ([]domain.Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE ticket_id=$1`, ticketID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := messageSelect + ` WHERE m.ticket_id=$1 ORDER BY m.seq DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *message)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, total, nil
}

func (r *messageRepository) UpdateAck(ctx context.Context, id string, ack domain.MessageAck) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE messages SET ack=$1, updated_at=NOW() WHERE id=$2 AND ack < $1`, ack, id)
	if err != nil {
		return false, translate(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE messages SET is_deleted=TRUE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *messageRepository) MarkTicketRead(ctx context.Context, ticketID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET read=TRUE WHERE ticket_id=$1 AND read=FALSE`, ticketID)
	return translate(err)
}

func (r *messageRepository) CountUnread(ctx context.Context, ticketID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE ticket_id=$1 AND read=FALSE AND from_me=FALSE`, ticketID).Scan(&n)
	return n, translate(err)
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		message  domain.Message
		ack      int16
		cID      *int64
		cName    *string
		cNumber  *string
		qID      *string
		qBody    *string
		qFromMe  *bool
		qDeleted *bool
		qCreated *time.Time
	)
	if err := row.Scan(
		&message.ID,
		&message.Seq,
		&message.TicketID,
		&message.ContactID,
		&message.Body,
		&message.FromMe,
		&message.Read,
		&ack,
		&message.MediaType,
		&message.MediaURL,
		&message.QuotedMsgID,
		&message.IsDeleted,
		&message.CreatedAt,
		&message.UpdatedAt,
		&cID,
		&cName,
		&cNumber,
		&qID,
		&qBody,
		&qFromMe,
		&qDeleted,
		&qCreated,
	); err != nil {
		return nil, err
	}
	message.Ack = domain.MessageAck(ack)
	if cID != nil {
		message.Contact = &domain.Contact{ID: *cID, Name: deref(cName), Number: deref(cNumber)}
	}
	if qID != nil {
		quoted := &domain.Message{ID: *qID, Body: deref(qBody), TicketID: message.TicketID}
		if qFromMe != nil {
			quoted.FromMe = *qFromMe
		}
		if qDeleted != nil {
			quoted.IsDeleted = *qDeleted
		}
		if qCreated != nil {
			quoted.CreatedAt = *qCreated
		}
		message.QuotedMsg = quoted
	}
	return &message, nil
}
