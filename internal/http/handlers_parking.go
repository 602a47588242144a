package httpx

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/service"
)

// ParkingHandlers handles the parking and billing surface used by the
// frontend and the sensor hardware.
type ParkingHandlers struct {
	Svc    *service.BillingService
	Logger *slog.Logger
}

// BookSlot runs the gated booking pipeline. Pipeline outcomes, including
// gate rejections and step failures, are reported with a 200 and a
// success=false body; only malformed requests get an error status.
func (h *ParkingHandlers) BookSlot(w http.ResponseWriter, r *http.Request) {
	var req model.BookSlotRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.Svc.BookSlot(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// PaymentSession returns the live view of a billing session.
func (h *ParkingHandlers) PaymentSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Svc.PaymentSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SensorUpdate ingests a hardware occupancy event. Internal failures are
// logged and reported as a generic failure so a flaky database never makes
// the sensor firmware retry-storm.
func (h *ParkingHandlers) SensorUpdate(w http.ResponseWriter, r *http.Request) {
	var upd model.SensorUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}

	result, err := h.Svc.HandleSensorUpdate(r.Context(), &upd)
	if err != nil {
		if apperrors.IsValidation(err) {
			WriteAppError(w, err)
			return
		}
		if h.Logger != nil {
			h.Logger.Error("sensor update failed", "spot_id", upd.SpotID, "error", err)
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"spot_id": upd.SpotID,
		})
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// UserBookings returns a user's booking history, newest first. An optional
// limit query parameter caps the page size.
func (h *ParkingHandlers) UserBookings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteAppError(w, apperrors.Validation("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	bookings, err := h.Svc.UserBookings(r.Context(), r.PathValue("user_id"), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// AvailableSpots lists spots currently free for booking.
func (h *ParkingHandlers) AvailableSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := h.Svc.AvailableSpots(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"spots": spots,
		"count": len(spots),
	})
}

func registerParkingRoutes(mux *http.ServeMux, h *ParkingHandlers) {
	mux.HandleFunc("POST /api/parking/book-slot", h.BookSlot)
	mux.HandleFunc("GET /api/payment-session/{session_id}", h.PaymentSession)
	mux.HandleFunc("POST /api/hardware/sensor-update", h.SensorUpdate)
	mux.HandleFunc("GET /api/parking/spots/available", h.AvailableSpots)
	mux.HandleFunc("GET /api/parking/bookings/{user_id}", h.UserBookings)
}
