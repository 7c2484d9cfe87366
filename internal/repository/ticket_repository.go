package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures list parameters for ticket boards.
type TicketFilter struct {
	Statuses []domain.TicketStatus
	// VisibleTo restricts results to tickets assigned to this user or pending.
	VisibleTo      *int64
	QueueIDs       []int64
	IncludeNoQueue bool
	SearchTerm     string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	WithUnread     bool
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence. Reads return hydrated tickets.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the routing columns: status, user, queue and connection.
	Update(ctx context.Context, ticket *domain.Ticket) error
	SetLastMessage(ctx context.Context, id int64, body string) error
	SetUnread(ctx context.Context, id int64, unread int) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	FindActive(ctx context.Context, contactID, whatsappID int64) (*domain.Ticket, error)
	FindLatestUpdatedBetween(ctx context.Context, contactID, whatsappID int64, from, to time.Time) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	Delete(ctx context.Context, id int64) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelect = `
        SELECT t.id, t.status, t.unread_messages, t.last_message, t.is_group, t.contact_id, t.whatsapp_id,
               t.user_id, t.queue_id, t.created_at, t.updated_at,
               c.id, c.name, c.number, c.email, c.profile_pic_url, c.is_group,
               q.id, q.name, q.color, q.greeting_message,
               u.id, u.name,
               w.id, w.name
        FROM tickets t
        JOIN contacts c ON c.id = t.contact_id
        JOIN whatsapps w ON w.id = t.whatsapp_id
        LEFT JOIN queues q ON q.id = t.queue_id
        LEFT JOIN users u ON u.id = t.user_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (status, unread_messages, last_message, is_group, contact_id, whatsapp_id, user_id, queue_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Status,
		ticket.UnreadMessages,
		ticket.LastMessage,
		ticket.IsGroup,
		ticket.ContactID,
		ticket.WhatsappID,
		ticket.UserID,
		ticket.QueueID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translate(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, user_id=$2, queue_id=$3, whatsapp_id=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Status,
		ticket.UserID,
		ticket.QueueID,
		ticket.WhatsappID,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return translate(err)
}

func (r *ticketRepository) SetLastMessage(ctx context.Context, id int64, body string) error {
	return r.exec(ctx, `UPDATE tickets SET last_message=$1, updated_at=NOW() WHERE id=$2`, body, id)
}

func (r *ticketRepository) SetUnread(ctx context.Context, id int64, unread int) error {
	return r.exec(ctx, `UPDATE tickets SET unread_messages=$1, updated_at=NOW() WHERE id=$2`, unread, id)
}

func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, ticketSelect+` WHERE t.id=$1`, id)
}

func (r *ticketRepository) FindActive(ctx context.Context, contactID, whatsappID int64) (*domain.Ticket, error) {
	query := ticketSelect + `
        WHERE t.contact_id=$1 AND t.whatsapp_id=$2 AND t.status IN ('open','pending')
        LIMIT 1`
	return r.fetchSingle(ctx, query, contactID, whatsappID)
}

func (r *ticketRepository) FindLatestUpdatedBetween(ctx context.Context, contactID, whatsappID int64, from, to time.Time) (*domain.Ticket, error) {
	query := ticketSelect + `
        WHERE t.contact_id=$1 AND t.whatsapp_id=$2 AND t.updated_at BETWEEN $3 AND $4
        ORDER BY t.updated_at DESC
        LIMIT 1`
	return r.fetchSingle(ctx, query, contactID, whatsappID, from, to)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.VisibleTo != nil {
		args = append(args, *filter.VisibleTo)
		clauses = append(clauses, fmt.Sprintf("(t.user_id=$%d OR t.status='pending')", len(args)))
	}
	if len(filter.QueueIDs) > 0 || filter.IncludeNoQueue {
		parts := []string{}
		if len(filter.QueueIDs) > 0 {
			args = append(args, filter.QueueIDs)
			parts = append(parts, fmt.Sprintf("t.queue_id = ANY($%d)", len(args)))
		}
		if filter.IncludeNoQueue {
			parts = append(parts, "t.queue_id IS NULL")
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	if filter.WithUnread {
		clauses = append(clauses, "t.unread_messages > 0")
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(c.name) LIKE %s OR c.number LIKE %s
            OR EXISTS (SELECT 1 FROM messages m WHERE m.ticket_id = t.id AND LOWER(m.body) LIKE %s))`, p, p, p))
	}

	where := strings.Join(clauses, " AND ")

	countQuery := `SELECT COUNT(*) FROM tickets t JOIN contacts c ON c.id = t.contact_id WHERE ` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 40
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.updated_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketSelect, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *ticket)
	}
	return result, total, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		contact domain.Contact
		qID     *int64
		qName   *string
		qColor  *string
		qGreet  *string
		uID     *int64
		uName   *string
		wID     int64
		wName   string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Status,
		&ticket.UnreadMessages,
		&ticket.LastMessage,
		&ticket.IsGroup,
		&ticket.ContactID,
		&ticket.WhatsappID,
		&ticket.UserID,
		&ticket.QueueID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&contact.ID,
		&contact.Name,
		&contact.Number,
		&contact.Email,
		&contact.ProfilePicURL,
		&contact.IsGroup,
		&qID,
		&qName,
		&qColor,
		&qGreet,
		&uID,
		&uName,
		&wID,
		&wName,
	); err != nil {
		return nil, err
	}
	ticket.Contact = &contact
	if qID != nil {
		ticket.Queue = &domain.Queue{ID: *qID, Name: deref(qName), Color: deref(qColor), GreetingMessage: deref(qGreet)}
	}
	if uID != nil {
		ticket.User = &domain.UserSummary{ID: *uID, Name: deref(uName)}
	}
	ticket.Whatsapp = &domain.WhatsappSummary{ID: wID, Name: wName}
	return &ticket, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
