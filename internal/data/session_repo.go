package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data/pgxutil"
	"github.com/parkngo/parkngo-api/internal/domain/model"
)

const sessionColumns = `
	session_id, booking_id, spot_id, user_id, owner_wallet, rate_per_minute,
	status, started_at, ended_at, end_reason, auto_created, transactions`

// SessionRepo provides database operations for billing sessions. The
// one-active-session-per-spot invariant is enforced by a partial unique
// index; CreateWithBooking surfaces the losing side of that race as
// ErrActiveSessionExists.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a new SessionRepo with real time provider.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSessionRepoWithTimeProvider creates a SessionRepo with a custom time provider (useful for tests).
func NewSessionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

// CreateWithBooking inserts a booking and its session in one transaction so
// neither exists without the other.
func (r *SessionRepo) CreateWithBooking(ctx context.Context, b *model.Booking, s *model.BillingSession) error {
	if b == nil || s == nil {
		return errors.New("booking and session are required")
	}
	r.applyDefaults(s)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.timeProvider.Now().UTC()
	}
	if b.Status == "" {
		b.Status = model.BookingStatusActive
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			b.BookingID, b.SessionID, b.UserID, b.VehicleID, b.SpotID,
			b.DurationHours, b.Status, b.AutoCreated, b.SensorTriggered,
			b.OrchestrationSummary, b.VehicleValidation, b.CreatedAt, b.EndedAt,
		); err != nil {
			return fmt.Errorf("insert booking %s: %w", b.BookingID, err)
		}
		return r.insertSession(ctx, tx, s)
	})
	return r.mapWriteErr(err)
}

// GetByID retrieves a session by ID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.BillingSession, error) {
	return r.getByQuery(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE session_id = $1`, id)
}

// FindActiveBySpot retrieves the active session for a spot, if any.
func (r *SessionRepo) FindActiveBySpot(ctx context.Context, spotID string) (*model.BillingSession, error) {
	return r.getByQuery(ctx, `
		SELECT `+sessionColumns+`
		FROM payment_sessions
		WHERE spot_id = $1 AND status = $2`, spotID, model.SessionStatusActive)
}

// ListActive retrieves all active sessions, oldest first.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*model.BillingSession, error) {
	var rowsOut []model.BillingSession
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM payment_sessions
			WHERE status = $1
			ORDER BY started_at`, model.SessionStatusActive)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.BillingSession])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	res := make([]*model.BillingSession, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Close ends an active session and completes its booking. It is idempotent:
// a session that is already closed (or missing) reports false with no error.
func (r *SessionRepo) Close(ctx context.Context, params core.CloseSessionParams) (bool, error) {
	var closed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_sessions
			SET status = $1, ended_at = $2, end_reason = $3
			WHERE session_id = $4 AND status = $5`,
			model.SessionStatusCompleted, params.EndedAt.UTC(), params.EndReason,
			params.SessionID, model.SessionStatusActive)
		if err != nil {
			return err
		}
		closed = tag.RowsAffected() > 0
		if !closed {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = $1, ended_at = $2
			WHERE session_id = $3 AND status = $4`,
			model.BookingStatusCompleted, params.EndedAt.UTC(),
			params.SessionID, model.BookingStatusActive,
		); err != nil {
			return fmt.Errorf("complete booking for session %s: %w", params.SessionID, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("close session %s: %w", params.SessionID, err)
	}
	return closed, nil
}

// AppendTransaction appends one settlement entry to a session's ledger.
func (r *SessionRepo) AppendTransaction(ctx context.Context, sessionID string, entry *model.SessionTransaction) error {
	if entry == nil {
		return errors.New("transaction entry is required")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `
			UPDATE payment_sessions
			SET transactions = transactions || $1::jsonb
			WHERE session_id = $2`, payload, sessionID)
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("append transaction to session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SessionRepo) applyDefaults(s *model.BillingSession) {
	if s.StartedAt.IsZero() {
		s.StartedAt = r.timeProvider.Now().UTC()
	}
	if s.Status == "" {
		s.Status = model.SessionStatusActive
	}
	if s.RatePerMinute <= 0 {
		s.RatePerMinute = model.RatePerMinuteLovelace
	}
	if s.Transactions == nil {
		s.Transactions = []model.SessionTransaction{}
	}
}

func (r *SessionRepo) insertSession(ctx context.Context, q querier, s *model.BillingSession) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.SessionID, s.BookingID, s.SpotID, s.UserID, s.OwnerWallet,
		s.RatePerMinute, s.Status, s.StartedAt, s.EndedAt, s.EndReason,
		s.AutoCreated, s.Transactions,
	)
	return err
}

func (r *SessionRepo) getByQuery(ctx context.Context, query string, args ...any) (*model.BillingSession, error) {
	var out model.BillingSession
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BillingSession])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &out, nil
}

func (r *SessionRepo) mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrActiveSessionExists
	}
	return err
}

// querier is the subset of pgx execution shared by connections and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
