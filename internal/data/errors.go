package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Job store sentinels.
	ErrJobNotFound   = errors.New("job not found")
	ErrJobIDRequired = errors.New("job id is required")

	// Booking repository sentinels.
	ErrBookingNotFound = errors.New("booking not found")

	// Session repository sentinels.
	ErrSessionNotFound = errors.New("session not found")
	// ErrActiveSessionExists is returned when an insert loses the
	// one-active-session-per-spot uniqueness race.
	ErrActiveSessionExists = errors.New("active session already exists for spot")

	// Spot repository sentinels.
	ErrSpotNotFound = errors.New("parking spot not found")
)
