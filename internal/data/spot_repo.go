package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data/pgxutil"
	"github.com/parkngo/parkngo-api/internal/domain/model"
)

const spotColumns = `
	spot_id, zone, type, features, occupied, distance_cm, sensor_id,
	last_seen, registered_vehicle`

// SpotRepo provides database operations for parking spots.
type SpotRepo struct {
	DB *sql.DB
}

// NewSpotRepo creates a new SpotRepo.
func NewSpotRepo(db *sql.DB) *SpotRepo {
	return &SpotRepo{DB: db}
}

// Get retrieves a spot by ID.
func (r *SpotRepo) Get(ctx context.Context, spotID string) (*model.ParkingSpot, error) {
	var out model.ParkingSpot
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT `+spotColumns+` FROM parking_spots WHERE spot_id = $1`, spotID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ParkingSpot])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpotNotFound
		}
		return nil, fmt.Errorf("get spot %s: %w", spotID, err)
	}
	return &out, nil
}

// ListAvailable retrieves all unoccupied spots ordered by ID.
func (r *SpotRepo) ListAvailable(ctx context.Context) ([]*model.ParkingSpot, error) {
	var rowsOut []model.ParkingSpot
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+spotColumns+`
			FROM parking_spots
			WHERE occupied = FALSE
			ORDER BY spot_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.ParkingSpot])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list available spots: %w", err)
	}

	res := make([]*model.ParkingSpot, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// SetOccupancy records a sensor observation for a spot and returns the
// updated row. Unknown spots are registered on first sight so a lot can be
// brought up sensor-first.
func (r *SpotRepo) SetOccupancy(ctx context.Context, params core.SetOccupancyParams) (*model.ParkingSpot, error) {
	distance := 0.0
	if params.DistanceCM != nil {
		distance = *params.DistanceCM
	}

	var out model.ParkingSpot
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO parking_spots (spot_id, occupied, distance_cm, sensor_id, last_seen)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (spot_id) DO UPDATE SET
				occupied = EXCLUDED.occupied,
				distance_cm = CASE WHEN $6 THEN EXCLUDED.distance_cm ELSE parking_spots.distance_cm END,
				sensor_id = CASE WHEN EXCLUDED.sensor_id <> '' THEN EXCLUDED.sensor_id ELSE parking_spots.sensor_id END,
				last_seen = EXCLUDED.last_seen
			RETURNING `+spotColumns,
			params.SpotID, params.Occupied, distance, params.SensorID,
			params.SeenAt.UTC(), params.DistanceCM != nil)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ParkingSpot])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set occupancy for spot %s: %w", params.SpotID, err)
	}
	return &out, nil
}

// AssignVehicle records which vehicle a spot is reserved for.
func (r *SpotRepo) AssignVehicle(ctx context.Context, spotID, vehicleID string) error {
	return r.setVehicle(ctx, spotID, vehicleID)
}

// ClearVehicle removes a spot's vehicle registration.
func (r *SpotRepo) ClearVehicle(ctx context.Context, spotID string) error {
	return r.setVehicle(ctx, spotID, "")
}

func (r *SpotRepo) setVehicle(ctx context.Context, spotID, vehicleID string) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx,
			`UPDATE parking_spots SET registered_vehicle = $1 WHERE spot_id = $2`,
			vehicleID, spotID)
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return ErrSpotNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSpotNotFound) {
			return err
		}
		return fmt.Errorf("update vehicle for spot %s: %w", spotID, err)
	}
	return nil
}
