// Package detector implements the vehicle validation check against the spot
// state reported by hardware sensors.
package detector

import (
	"context"
	"log/slog"
	"strings"

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
)

// SpotStateDetector validates vehicles using the latest sensor-reported spot
// state: a vehicle is detected when the spot reads occupied, and correct
// when the spot's registered vehicle matches.
type SpotStateDetector struct {
	spots  core.SpotRepository
	logger *slog.Logger
}

// Options groups dependencies for NewSpotStateDetector.
type Options struct {
	Spots  core.SpotRepository
	Logger *slog.Logger
}

var _ core.VehicleDetector = (*SpotStateDetector)(nil)

// NewSpotStateDetector constructs a detector backed by the spot repository.
func NewSpotStateDetector(opts Options) (*SpotStateDetector, error) {
	if opts.Spots == nil {
		return nil, apperrors.Internal("spot repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SpotStateDetector{
		spots:  opts.Spots,
		logger: logger.With("component", "vehicle_detector"),
	}, nil
}

// Validate reports whether a vehicle is present at the spot and whether it
// is the one registered there. An unregistered spot accepts any vehicle.
func (d *SpotStateDetector) Validate(ctx context.Context, spotID, vehicleID string) (*model.VehicleValidation, error) {
	spot, err := d.spots.Get(ctx, spotID)
	if err != nil {
		return nil, err
	}

	out := &model.VehicleValidation{Detected: spot.Occupied}
	if !spot.Occupied {
		d.logger.DebugContext(ctx, "no vehicle detected at spot", "spot_id", spotID)
		return out, nil
	}

	registered := strings.TrimSpace(spot.RegisteredVehicle)
	out.Correct = registered == "" || strings.EqualFold(registered, strings.TrimSpace(vehicleID))
	if !out.Correct {
		d.logger.WarnContext(ctx, "wrong vehicle at spot",
			"spot_id", spotID,
			"expected", registered,
			"observed", vehicleID,
		)
	}
	return out, nil
}
