package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrActiveTicketExists is returned when a write would leave two
	// non-closed tickets for one contact on one connection.
	ErrActiveTicketExists = errors.New("repository: active ticket already exists")
	// ErrDuplicate is returned for any other unique violation.
	ErrDuplicate = errors.New("repository: duplicate")
)

const (
	uniqueViolation   = "23505"
	activeTicketIndex = "tickets_one_active_per_contact"
)

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == activeTicketIndex {
			return ErrActiveTicketExists
		}
		return ErrDuplicate
	}
	return err
}
