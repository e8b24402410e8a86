package db

import (
	"context"
	"database/sql"
	"fmt"

	"transit-speeds/internal/gtfs"
)

const createSpeedsTable = `
CREATE TABLE IF NOT EXISTS segment_speeds (
  run_id        text             NOT NULL,
  service_date  text             NOT NULL,
  trip_key      text             NOT NULL,
  trip_id       text             NOT NULL,
  vehicle_id    text             NOT NULL,
  route_id      text             NOT NULL,
  shape_id      text             NOT NULL,
  from_stop_id  text             NOT NULL,
  to_stop_id    text             NOT NULL,
  from_position double precision NOT NULL,
  to_position   double precision NOT NULL,
  length_m      double precision NOT NULL,
  from_time     timestamptz      NOT NULL,
  to_time       timestamptz      NOT NULL,
  elapsed_sec   double precision NOT NULL,
  speed         double precision NOT NULL,
  max_offset_m  double precision NOT NULL,
  local_date    date             NOT NULL,
  weekday       smallint         NOT NULL,
  hour          smallint         NOT NULL
);
CREATE INDEX IF NOT EXISTS segment_speeds_service_date_idx ON segment_speeds (service_date)`

const insertSpeedRecord = `
INSERT INTO segment_speeds (
  run_id, service_date, trip_key, trip_id, vehicle_id, route_id, shape_id,
  from_stop_id, to_stop_id, from_position, to_position, length_m,
  from_time, to_time, elapsed_sec, speed, max_offset_m, local_date, weekday, hour
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18::date, $19, $20)`

func EnsureSpeedsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createSpeedsTable); err != nil {
		return fmt.Errorf("create segment_speeds: %w", err)
	}
	return nil
}

// SpeedsExist reports whether records for a service date were already written.
func SpeedsExist(ctx context.Context, db *sql.DB, serviceDate string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM segment_speeds WHERE service_date = $1)`
	if err := db.QueryRowContext(ctx, q, serviceDate).Scan(&exists); err != nil {
		return false, fmt.Errorf("check segment_speeds: %w", err)
	}
	return exists, nil
}

// InsertSpeedRecords writes records in a single transaction and returns how
// many rows were inserted.
func InsertSpeedRecords(ctx context.Context, db *sql.DB, recs []gtfs.SpeedRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSpeedRecord)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.ServiceDate, string(r.TripKey), r.TripID, r.VehicleID, r.RouteID, r.ShapeID,
			r.FromStopID, r.ToStopID, r.FromPosition, r.ToPosition, r.Length,
			r.FromTime, r.ToTime, r.ElapsedSec, r.Speed, r.MaxOffset, r.LocalDate, r.Weekday, r.Hour,
		); err != nil {
			return 0, fmt.Errorf("insert %s %s->%s: %w", r.TripKey, r.FromStopID, r.ToStopID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(recs), nil
}
