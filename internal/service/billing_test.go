package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/mocks"
	"github.com/parkngo/parkngo-api/internal/mocks/stores"
)

type billingFixture struct {
	svc      *BillingService
	mem      *stores.Memory
	payments *mocks.MockPaymentGateway
	detector *mocks.MockVehicleDetector
	clock    *data.FixedTimeProvider
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &billingFixture{
		mem:      stores.NewMemory(),
		payments: mocks.NewMockPaymentGateway(ctrl),
		detector: mocks.NewMockVehicleDetector(ctrl),
		clock:    data.NewFixedTimeProvider(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
	}

	svc, err := NewBillingService(BillingServiceOptions{
		Bookings: f.mem.Bookings(),
		Sessions: f.mem.Sessions(),
		Spots:    f.mem.Spots(),
		Payments: f.payments,
		Detector: f.detector,
		Config: config.BillingConfig{
			OwnerWallet:      "addr_test1_owner",
			RatePerMinute:    model.RatePerMinuteLovelace,
			AutoBookingHours: model.AutoBookingDurationHours,
		},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		TimeProvider: f.clock,
	})
	require.NoError(t, err)
	f.svc = svc

	f.mem.SeedSpot(&model.ParkingSpot{SpotID: "A1", Zone: "A", RegisteredVehicle: "KA-01"})
	f.mem.SeedSpot(&model.ParkingSpot{SpotID: "B1", Zone: "B"})
	return f
}

func (f *billingFixture) allowCharges() {
	f.payments.EXPECT().
		CreateCharge(gomock.Any(), gomock.Any()).
		Return(&core.ChargeReceipt{Reference: "tx-ref"}, nil).
		AnyTimes()
}

func bookSlotRequest(spotID string) *model.BookSlotRequest {
	return &model.BookSlotRequest{
		UserID:        "user-1",
		VehicleID:     "KA-01",
		DurationHours: 2,
		SpotID:        spotID,
	}
}

func TestBillingService_BookSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("full pipeline opens booking and session", func(t *testing.T) {
		f := newBillingFixture(t)
		f.allowCharges()
		f.detector.EXPECT().
			Validate(gomock.Any(), "A1", "KA-01").
			Return(&model.VehicleValidation{Detected: true, Correct: true}, nil)

		result, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.PaymentStarted)
		assert.Equal(t, "A1", result.SpotID)
		assert.Equal(t, model.RatePerMinuteLovelace, result.RatePerMinute)
		assert.Equal(t,
			[]string{model.StepSpotFinder, model.StepVehicleDetector, model.StepPaymentAgent},
			result.AgentsCharged,
		)
		assert.Equal(t, int64(900_000), result.TotalCharged)

		session, err := f.mem.Sessions().GetByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, session.Status)
		assert.Equal(t, "addr_test1_owner", session.OwnerWallet)

		booking, err := f.mem.Bookings().GetByID(ctx, result.BookingID)
		require.NoError(t, err)
		assert.Equal(t, int64(900_000), booking.OrchestrationSummary.TotalCost)
		assert.True(t, booking.VehicleValidation.Detected)
	})

	t.Run("gate rejection charges only two steps", func(t *testing.T) {
		f := newBillingFixture(t)
		f.allowCharges()
		f.detector.EXPECT().
			Validate(gomock.Any(), "A1", "KA-01").
			Return(&model.VehicleValidation{Detected: true, Correct: false}, nil)

		result, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, model.StepVehicleDetector, result.FailedStep)
		assert.Equal(t,
			[]string{model.StepSpotFinder, model.StepVehicleDetector},
			result.AgentsCharged,
		)
		assert.Equal(t, int64(500_000), result.TotalCharged)
		assert.False(t, result.PaymentStarted)

		// No session was ever opened.
		_, err = f.mem.Sessions().FindActiveBySpot(ctx, "A1")
		assert.ErrorIs(t, err, data.ErrSessionNotFound)
	})

	t.Run("unknown spot fails at spot_finder with one charge", func(t *testing.T) {
		f := newBillingFixture(t)
		f.allowCharges()

		result, err := f.svc.BookSlot(ctx, bookSlotRequest("Z9"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, model.StepSpotFinder, result.FailedStep)
		assert.Equal(t, []string{model.StepSpotFinder}, result.AgentsCharged)
		assert.Equal(t, int64(300_000), result.TotalCharged)
	})

	t.Run("no spot requested picks a free one", func(t *testing.T) {
		f := newBillingFixture(t)
		f.allowCharges()
		f.detector.EXPECT().
			Validate(gomock.Any(), gomock.Any(), "KA-01").
			Return(&model.VehicleValidation{Detected: true, Correct: true}, nil)

		result, err := f.svc.BookSlot(ctx, bookSlotRequest(""))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.SpotID)
	})

	t.Run("occupied spot fails at payment step", func(t *testing.T) {
		f := newBillingFixture(t)
		f.allowCharges()
		f.detector.EXPECT().
			Validate(gomock.Any(), "A1", "KA-01").
			Return(&model.VehicleValidation{Detected: true, Correct: true}, nil).
			Times(2)

		first, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
		require.NoError(t, err)
		require.True(t, first.Success)

		second, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
		require.NoError(t, err)
		assert.False(t, second.Success)
		assert.Equal(t, model.StepPaymentAgent, second.FailedStep)
		assert.Equal(t, int64(900_000), second.TotalCharged)
	})

	t.Run("missing fields are rejected before any charge", func(t *testing.T) {
		f := newBillingFixture(t)

		_, err := f.svc.BookSlot(ctx, &model.BookSlotRequest{UserID: "user-1"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestBillingService_PaymentSession(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.allowCharges()
	f.detector.EXPECT().
		Validate(gomock.Any(), "A1", "KA-01").
		Return(&model.VehicleValidation{Detected: true, Correct: true}, nil)

	booked, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
	require.NoError(t, err)

	f.clock.AddTime(90 * time.Second)

	resp, err := f.svc.PaymentSession(ctx, booked.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, resp.Status)
	assert.InDelta(t, 1.5, resp.MinutesElapsed, 0.001)
	assert.Equal(t, int64(30_000), resp.TotalAccrued)
	assert.Equal(t, model.RatePerMinuteLovelace, resp.RatePerMinute)

	_, err = f.svc.PaymentSession(ctx, "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBillingService_HandleSensorUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("occupied with no session auto-creates one", func(t *testing.T) {
		f := newBillingFixture(t)

		result, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID:     "B1",
			SensorID:   "sensor-7",
			Occupied:   true,
			DistanceCM: 12.5,
		})
		require.NoError(t, err)
		assert.True(t, result.PaymentTriggered)
		assert.True(t, result.AutoCreated)
		require.NotEmpty(t, result.SessionID)

		session, err := f.mem.Sessions().GetByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.True(t, session.AutoCreated)
		assert.Equal(t, model.DefaultUserID, session.UserID)

		booking, err := f.mem.Bookings().GetByID(ctx, session.BookingID)
		require.NoError(t, err)
		assert.True(t, booking.AutoCreated)
		assert.True(t, booking.SensorTriggered)
		assert.Equal(t, model.AutoBookingDurationHours, booking.DurationHours)
	})

	t.Run("occupied with existing session confirms it", func(t *testing.T) {
		f := newBillingFixture(t)

		first, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "B1", Occupied: true,
		})
		require.NoError(t, err)

		second, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "B1", Occupied: true,
		})
		require.NoError(t, err)
		assert.True(t, second.PaymentTriggered)
		assert.False(t, second.AutoCreated)
		assert.Equal(t, first.SessionID, second.SessionID)
	})

	t.Run("vacant closes the active session", func(t *testing.T) {
		f := newBillingFixture(t)

		opened, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "B1", Occupied: true,
		})
		require.NoError(t, err)

		f.clock.AddTime(2 * time.Minute)

		closed, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "B1", Occupied: false,
		})
		require.NoError(t, err)
		assert.Equal(t, opened.SessionID, closed.SessionID)
		assert.False(t, closed.PaymentTriggered)

		session, err := f.mem.Sessions().GetByID(ctx, opened.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, session.Status)
		assert.Equal(t, model.EndReasonVehicleLeft, session.EndReason)
		require.NotNil(t, session.EndedAt)

		// Accrual freezes at the close instant.
		f.clock.AddTime(time.Hour)
		resp, err := f.svc.PaymentSession(ctx, opened.SessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(40_000), resp.TotalAccrued)
	})

	t.Run("vacant with no session is a no-op", func(t *testing.T) {
		f := newBillingFixture(t)

		result, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "B1", Occupied: false,
		})
		require.NoError(t, err)
		assert.Empty(t, result.SessionID)
		assert.False(t, result.PaymentTriggered)
	})

	t.Run("unknown spot is registered on first event", func(t *testing.T) {
		f := newBillingFixture(t)

		result, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{
			SpotID: "Z9", SensorID: "sensor-z", Occupied: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Z9", result.SpotID)
		assert.True(t, result.PaymentTriggered)

		spot, err := f.mem.Spots().Get(ctx, "Z9")
		require.NoError(t, err)
		assert.True(t, spot.Occupied)
	})

	t.Run("missing spot_id is rejected", func(t *testing.T) {
		f := newBillingFixture(t)

		_, err := f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestBillingService_UserBookings(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.allowCharges()
	f.detector.EXPECT().
		Validate(gomock.Any(), "A1", "KA-01").
		Return(&model.VehicleValidation{Detected: true, Correct: true}, nil)

	result, err := f.svc.BookSlot(ctx, bookSlotRequest("A1"))
	require.NoError(t, err)
	require.True(t, result.Success)

	bookings, err := f.svc.UserBookings(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, result.BookingID, bookings[0].BookingID)

	t.Run("missing user id", func(t *testing.T) {
		_, err := f.svc.UserBookings(ctx, "", 10)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestBillingService_AvailableSpots(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)

	spots, err := f.svc.AvailableSpots(ctx)
	require.NoError(t, err)
	assert.Len(t, spots, 2)

	_, err = f.svc.HandleSensorUpdate(ctx, &model.SensorUpdate{SpotID: "A1", Occupied: true})
	require.NoError(t, err)

	spots, err = f.svc.AvailableSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "B1", spots[0].SpotID)
}
