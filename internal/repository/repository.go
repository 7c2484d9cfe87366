package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Set bundles every repository the services depend on.
type Set struct {
	Tickets   TicketRepository
	Messages  MessageRepository
	Contacts  ContactRepository
	Users     UserRepository
	Queues    QueueRepository
	Whatsapps WhatsappRepository
	History   TicketHistoryRepository
}

// NewPostgresSet wires the pgx implementations to one pool.
func NewPostgresSet(pool *pgxpool.Pool) Set {
	return Set{
		Tickets:   NewTicketRepository(pool),
		Messages:  NewMessageRepository(pool),
		Contacts:  NewContactRepository(pool),
		Users:     NewUserRepository(pool),
		Queues:    NewQueueRepository(pool),
		Whatsapps: NewWhatsappRepository(pool),
		History:   NewTicketHistoryRepository(pool),
	}
}
