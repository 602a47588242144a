package model

import (
	"errors"
	"time"
)

// ParkingSpot mirrors the physical spot state reported by hardware sensors,
// plus the static attributes used during spot selection.
type ParkingSpot struct {
	SpotID            string     `json:"spot_id"             db:"spot_id"`
	Zone              string     `json:"zone"                db:"zone"`
	Type              string     `json:"type"                db:"type"`
	Features          []string   `json:"features"            db:"features"`
	Occupied          bool       `json:"occupied"            db:"occupied"`
	DistanceCM        float64    `json:"distance_cm"         db:"distance_cm"`
	SensorID          string     `json:"sensor_id"           db:"sensor_id"`
	LastSeen          *time.Time `json:"last_seen,omitempty" db:"last_seen"`
	RegisteredVehicle string     `json:"registered_vehicle"  db:"registered_vehicle"`
}

// SensorUpdate is the payload delivered by the occupancy detector when a
// spot's state changes. Distance is optional; a non-positive value means the
// sensor did not report one.
type SensorUpdate struct {
	SpotID     string  `json:"spot_id"`
	SensorID   string  `json:"sensor_id"`
	Occupied   bool    `json:"occupied"`
	DistanceCM float64 `json:"distance_cm,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"`
}

// Validate checks the required fields of a SensorUpdate.
func (u *SensorUpdate) Validate() error {
	if u.SpotID == "" {
		return errors.New("spot_id is required")
	}
	return nil
}

// SensorUpdateResult reports what the billing engine did in response to a
// sensor event. SessionID is set when a session was confirmed, auto-created,
// or closed by the event.
type SensorUpdateResult struct {
	SpotID           string `json:"spot_id"`
	Occupied         bool   `json:"occupied"`
	PaymentTriggered bool   `json:"payment_triggered"`
	SessionID        string `json:"session_id,omitempty"`
	AutoCreated      bool   `json:"auto_created,omitempty"`
}
