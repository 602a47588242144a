// Package stores contains hand-written in-memory test doubles for the
// repository ports. They enforce the same invariants as the Postgres
// implementations (one active session per spot, idempotent close) so service
// tests exercise realistic behaviour without a database.
package stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
)

// Memory holds shared in-process state for the repository views. Safe for
// concurrent use.
type Memory struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	sessions map[string]*model.BillingSession
	spots    map[string]*model.ParkingSpot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[string]*model.Booking),
		sessions: make(map[string]*model.BillingSession),
		spots:    make(map[string]*model.ParkingSpot),
	}
}

// Bookings returns the booking repository view.
func (m *Memory) Bookings() core.BookingRepository { return bookingsView{m} }

// Sessions returns the session repository view.
func (m *Memory) Sessions() core.SessionRepository { return sessionsView{m} }

// Spots returns the spot repository view.
func (m *Memory) Spots() core.SpotRepository { return spotsView{m} }

// SeedSpot adds or replaces a parking spot.
func (m *Memory) SeedSpot(spot *model.ParkingSpot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *spot
	m.spots[spot.SpotID] = &cp
}

func (m *Memory) completeBookingLocked(id string, endedAt time.Time) bool {
	b, ok := m.bookings[id]
	if !ok || b.Status != model.BookingStatusActive {
		return false
	}
	b.Status = model.BookingStatusCompleted
	b.EndedAt = &endedAt
	return true
}

func (m *Memory) insertSessionLocked(s *model.BillingSession) error {
	if s.Status == "" {
		s.Status = model.SessionStatusActive
	}
	if s.Status == model.SessionStatusActive {
		for _, existing := range m.sessions {
			if existing.SpotID == s.SpotID && existing.Status == model.SessionStatusActive {
				return data.ErrActiveSessionExists
			}
		}
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

type bookingsView struct{ m *Memory }

var _ core.BookingRepository = bookingsView{}

func (v bookingsView) GetByID(_ context.Context, id string) (*model.Booking, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	b, ok := v.m.bookings[id]
	if !ok {
		return nil, data.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (v bookingsView) ListByUser(_ context.Context, userID string, limit int) ([]*model.Booking, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []*model.Booking
	for _, b := range v.m.bookings {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type sessionsView struct{ m *Memory }

var _ core.SessionRepository = sessionsView{}

func (v sessionsView) CreateWithBooking(_ context.Context, b *model.Booking, s *model.BillingSession) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if err := v.m.insertSessionLocked(s); err != nil {
		return err
	}
	cp := *b
	v.m.bookings[b.BookingID] = &cp
	return nil
}

func (v sessionsView) GetByID(_ context.Context, id string) (*model.BillingSession, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.sessions[id]
	if !ok {
		return nil, data.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (v sessionsView) FindActiveBySpot(_ context.Context, spotID string) (*model.BillingSession, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, s := range v.m.sessions {
		if s.SpotID == spotID && s.Status == model.SessionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, data.ErrSessionNotFound
}

func (v sessionsView) ListActive(context.Context) ([]*model.BillingSession, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []*model.BillingSession
	for _, s := range v.m.sessions {
		if s.Status == model.SessionStatusActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (v sessionsView) Close(_ context.Context, params core.CloseSessionParams) (bool, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.sessions[params.SessionID]
	if !ok || s.Status != model.SessionStatusActive {
		return false, nil
	}
	endedAt := params.EndedAt
	s.Status = model.SessionStatusCompleted
	s.EndedAt = &endedAt
	s.EndReason = params.EndReason
	for id, b := range v.m.bookings {
		if b.SessionID == params.SessionID {
			v.m.completeBookingLocked(id, endedAt)
		}
	}
	return true, nil
}

func (v sessionsView) AppendTransaction(_ context.Context, sessionID string, entry *model.SessionTransaction) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	s, ok := v.m.sessions[sessionID]
	if !ok {
		return data.ErrSessionNotFound
	}
	s.Transactions = append(s.Transactions, *entry)
	return nil
}

type spotsView struct{ m *Memory }

var _ core.SpotRepository = spotsView{}

func (v spotsView) Get(_ context.Context, spotID string) (*model.ParkingSpot, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	spot, ok := v.m.spots[spotID]
	if !ok {
		return nil, data.ErrSpotNotFound
	}
	cp := *spot
	return &cp, nil
}

func (v spotsView) ListAvailable(context.Context) ([]*model.ParkingSpot, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	var out []*model.ParkingSpot
	for _, spot := range v.m.spots {
		if !spot.Occupied {
			cp := *spot
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpotID < out[j].SpotID })
	return out, nil
}

func (v spotsView) SetOccupancy(_ context.Context, params core.SetOccupancyParams) (*model.ParkingSpot, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	spot, ok := v.m.spots[params.SpotID]
	if !ok {
		spot = &model.ParkingSpot{SpotID: params.SpotID}
		v.m.spots[params.SpotID] = spot
	}
	spot.Occupied = params.Occupied
	if params.DistanceCM != nil {
		spot.DistanceCM = *params.DistanceCM
	}
	if params.SensorID != "" {
		spot.SensorID = params.SensorID
	}
	seenAt := params.SeenAt
	spot.LastSeen = &seenAt
	cp := *spot
	return &cp, nil
}

func (v spotsView) AssignVehicle(_ context.Context, spotID, vehicleID string) error {
	return v.setVehicle(spotID, vehicleID)
}

func (v spotsView) ClearVehicle(_ context.Context, spotID string) error {
	return v.setVehicle(spotID, "")
}

func (v spotsView) setVehicle(spotID, vehicleID string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	spot, ok := v.m.spots[spotID]
	if !ok {
		return data.ErrSpotNotFound
	}
	spot.RegisteredVehicle = vehicleID
	return nil
}
