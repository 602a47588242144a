package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parkngo/parkngo-api/internal/data/pgxutil"
	"github.com/parkngo/parkngo-api/internal/domain/model"
)

const bookingColumns = `
	booking_id, session_id, user_id, vehicle_id, spot_id, duration_hours,
	status, auto_created, sensor_triggered, orchestration_summary,
	vehicle_validation, created_at, ended_at`

// BookingRepo provides database reads for bookings. Writes go through
// SessionRepo, which inserts a booking and its session in one transaction.
type BookingRepo struct {
	DB *sql.DB
}

// NewBookingRepo creates a new BookingRepo.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{DB: db}
}

// GetByID retrieves a booking by ID.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var out model.Booking
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Booking])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return &out, nil
}

// ListByUser retrieves a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}

	var rowsOut []model.Booking
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Booking])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list bookings for user %s: %w", userID, err)
	}

	res := make([]*model.Booking, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
