package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/LiveClass/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	return db, nil
}

type PostgresBookings struct {
	db *sqlx.DB
}

func NewPostgresBookings(db *sqlx.DB) *PostgresBookings {
	return &PostgresBookings{db: db}
}

type bookingRow struct {
	ID       string    `db:"id"`
	Subject  string    `db:"subject"`
	StartsAt time.Time `db:"starts_at"`
}

func (r *PostgresBookings) Booking(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	var row bookingRow
	query := "SELECT id, subject, starts_at FROM bookings WHERE id = $1"
	if err := r.db.GetContext(ctx, &row, query, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	var parts []domain.Participant
	query = "SELECT user_id, name, role, profile_ref FROM booking_participants WHERE booking_id = $1 ORDER BY role DESC"
	if err := r.db.SelectContext(ctx, &parts, query, string(id)); err != nil {
		return nil, fmt.Errorf("get booking participants: %w", err)
	}

	return &domain.Booking{
		ID:           domain.BookingID(row.ID),
		Subject:      row.Subject,
		StartsAt:     row.StartsAt,
		Participants: parts,
	}, nil
}
