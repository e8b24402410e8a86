package db

import (
	"context"
	"database/sql"
	"fmt"

	"transit-speeds/internal/gtfs"
)

// FetchVehiclePositions loads the archived realtime positions of one service
// date (YYYYMMDD), optionally limited to some routes.
func FetchVehiclePositions(ctx context.Context, db *sql.DB, serviceDate string, routes []string) ([]gtfs.PositionReport, error) {
	q := `SELECT trip_id, COALESCE(vehicle_id, ''), COALESCE(route_id, ''), start_date, ts, lat, lon
          FROM vehicle_positions
          WHERE start_date = $1 AND trip_id IS NOT NULL`
	args := []any{serviceDate}
	if len(routes) > 0 {
		q += ` AND route_id = ANY($2)`
		args = append(args, routes)
	}
	q += ` ORDER BY trip_id, vehicle_id, ts`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query vehicle_positions: %w", err)
	}
	defer rows.Close()

	var out []gtfs.PositionReport
	for rows.Next() {
		var r gtfs.PositionReport
		if err := rows.Scan(&r.TripID, &r.VehicleID, &r.RouteID, &r.StartDate, &r.Timestamp, &r.Lat, &r.Lon); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
