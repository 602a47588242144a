package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	"github.com/parkngo/parkngo-api/internal/testutil"
)

func TestSessionRepo_CreateWithBooking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		bookingRepo := NewBookingRepo(db)
		ctx := context.Background()

		booking, session := testutil.NewBookingPair("A1")
		require.NoError(t, repo.CreateWithBooking(ctx, booking, session))

		gotSession, err := repo.GetByID(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, gotSession.Status)
		assert.Equal(t, booking.BookingID, gotSession.BookingID)
		assert.Equal(t, model.RatePerMinuteLovelace, gotSession.RatePerMinute)

		gotBooking, err := bookingRepo.GetByID(ctx, booking.BookingID)
		require.NoError(t, err)
		assert.Equal(t, model.BookingStatusActive, gotBooking.Status)
		assert.Equal(t, session.SessionID, gotBooking.SessionID)
	})
}

func TestSessionRepo_OneActivePerSpot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		firstBooking, first := testutil.NewBookingPair("A2")
		require.NoError(t, repo.CreateWithBooking(ctx, firstBooking, first))

		t.Run("second active session loses the race", func(t *testing.T) {
			secondBooking, second := testutil.NewBookingPair("A2")
			err := repo.CreateWithBooking(ctx, secondBooking, second)
			assert.ErrorIs(t, err, ErrActiveSessionExists)

			// The loser re-reads the winner.
			winner, findErr := repo.FindActiveBySpot(ctx, "A2")
			require.NoError(t, findErr)
			assert.Equal(t, first.SessionID, winner.SessionID)

			// The paired booking rolled back with the session.
			_, getErr := NewBookingRepo(db).GetByID(ctx, secondBooking.BookingID)
			assert.ErrorIs(t, getErr, ErrBookingNotFound)
		})

		t.Run("closed session frees the spot", func(t *testing.T) {
			closed, err := repo.Close(ctx, core.CloseSessionParams{
				SessionID: first.SessionID,
				EndedAt:   time.Now().UTC(),
				EndReason: model.EndReasonVehicleLeft,
			})
			require.NoError(t, err)
			assert.True(t, closed)

			nextBooking, next := testutil.NewBookingPair("A2")
			assert.NoError(t, repo.CreateWithBooking(ctx, nextBooking, next))
		})
	})
}

func TestSessionRepo_CloseIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		booking, session := testutil.NewBookingPair("A3")
		require.NoError(t, repo.CreateWithBooking(ctx, booking, session))

		params := core.CloseSessionParams{
			SessionID: session.SessionID,
			EndedAt:   time.Now().UTC(),
			EndReason: model.EndReasonVehicleLeft,
		}

		closed, err := repo.Close(ctx, params)
		require.NoError(t, err)
		assert.True(t, closed)

		// Closing again is a no-op, not an error.
		closed, err = repo.Close(ctx, params)
		require.NoError(t, err)
		assert.False(t, closed)

		got, err := repo.GetByID(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, got.Status)
		assert.Equal(t, model.EndReasonVehicleLeft, got.EndReason)
		require.NotNil(t, got.EndedAt)

		// The paired booking is completed in the same transaction.
		gotBooking, err := NewBookingRepo(db).GetByID(ctx, booking.BookingID)
		require.NoError(t, err)
		assert.Equal(t, model.BookingStatusCompleted, gotBooking.Status)
	})
}

func TestSessionRepo_AppendTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		booking, session := testutil.NewBookingPair("B1")
		require.NoError(t, repo.CreateWithBooking(ctx, booking, session))

		entry := &model.SessionTransaction{
			TxHash:  "abc123",
			Amount:  40_000,
			Settled: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, repo.AppendTransaction(ctx, session.SessionID, entry))

		got, err := repo.GetByID(ctx, session.SessionID)
		require.NoError(t, err)
		require.Len(t, got.Transactions, 1)
		assert.Equal(t, "abc123", got.Transactions[0].TxHash)
		assert.Equal(t, int64(40_000), got.Transactions[0].Amount)

		t.Run("unknown session", func(t *testing.T) {
			err := repo.AppendTransaction(ctx, "no-such-session", entry)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	})
}

func TestSpotRepo_Occupancy(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSpotRepo(db)
		ctx := context.Background()

		t.Run("seeded spot starts vacant", func(t *testing.T) {
			spot, err := repo.Get(ctx, "A1")
			require.NoError(t, err)
			assert.False(t, spot.Occupied)
		})

		t.Run("set occupied", func(t *testing.T) {
			seenAt := time.Now().UTC()
			spot, err := repo.SetOccupancy(ctx, core.SetOccupancyParams{
				SpotID:     "A1",
				Occupied:   true,
				DistanceCM: testutil.Float64Ptr(42.5),
				SensorID:   "sensor-a1",
				SeenAt:     seenAt,
			})
			require.NoError(t, err)
			assert.True(t, spot.Occupied)
			assert.InDelta(t, 42.5, spot.DistanceCM, 1e-9)
			require.NotNil(t, spot.LastSeen)

			available, err := repo.ListAvailable(ctx)
			require.NoError(t, err)
			for _, s := range available {
				assert.NotEqual(t, "A1", s.SpotID)
			}
		})

		t.Run("unknown spot is registered on first sight", func(t *testing.T) {
			spot, err := repo.SetOccupancy(ctx, core.SetOccupancyParams{
				SpotID:   "test-z9",
				Occupied: true,
				SensorID: "sensor-z9",
				SeenAt:   time.Now().UTC(),
			})
			require.NoError(t, err)
			assert.Equal(t, "test-z9", spot.SpotID)
			assert.True(t, spot.Occupied)
		})

		t.Run("vehicle assignment", func(t *testing.T) {
			require.NoError(t, repo.AssignVehicle(ctx, "B1", "EV-42"))
			spot, err := repo.Get(ctx, "B1")
			require.NoError(t, err)
			assert.Equal(t, "EV-42", spot.RegisteredVehicle)

			require.NoError(t, repo.ClearVehicle(ctx, "B1"))
			spot, err = repo.Get(ctx, "B1")
			require.NoError(t, err)
			assert.Empty(t, spot.RegisteredVehicle)

			assert.ErrorIs(t, repo.AssignVehicle(ctx, "nope", "EV-1"), ErrSpotNotFound)
		})
	})
}
