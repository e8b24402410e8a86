package db

import (
	"context"
	"database/sql"
	"fmt"

	"transit-speeds/internal/gtfs"
	"transit-speeds/internal/segment"
)

// FetchTrips returns the static trips, restricted to the given routes when any
// are supplied.
func FetchTrips(ctx context.Context, db *sql.DB, routes []string) ([]gtfs.Trip, error) {
	q := `SELECT trip_id, route_id, COALESCE(shape_id, ''), COALESCE(service_id, '') FROM trips`
	var args []any
	if len(routes) > 0 {
		q += ` WHERE route_id = ANY($1)`
		args = append(args, routes)
	}
	q += ` ORDER BY trip_id`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []gtfs.Trip
	for rows.Next() {
		var t gtfs.Trip
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ShapeID, &t.ServiceID); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func FetchShapePoints(ctx context.Context, db *sql.DB, shapeID string) ([]gtfs.ShapePoint, error) {
	if shapeID == "" {
		return nil, nil
	}
	// Detect column layout: either shape_pt_lat/lon exist, or use PostGIS shape_pt_loc geography
	latlon, err := hasColumns(ctx, db, "shapes", "shape_pt_lat", "shape_pt_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	if latlon {
		q = `SELECT shape_pt_lat, shape_pt_lon, shape_pt_sequence
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	} else {
		// Fallback to geography point column shape_pt_loc
		loc, err := hasColumns(ctx, db, "shapes", "shape_pt_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect shapes shape_pt_loc: %w", err)
		}
		if !loc {
			return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
		}
		q = `SELECT ST_Y(shape_pt_loc::geometry) AS lat,
                    ST_X(shape_pt_loc::geometry) AS lon,
                    shape_pt_sequence
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	}
	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []gtfs.ShapePoint
	for rows.Next() {
		var p gtfs.ShapePoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Sequence); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// FetchTripStops returns the stops a trip serves in stop_sequence order.
func FetchTripStops(ctx context.Context, db *sql.DB, tripID string) ([]gtfs.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlon, err := hasColumns(ctx, db, "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlon {
		q = `SELECT st.stop_id,
                    COALESCE(s.stop_name, ''),
                    COALESCE(s.stop_lat, 0),
                    COALESCE(s.stop_lon, 0)
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	} else {
		loc, err := hasColumns(ctx, db, "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !loc {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT st.stop_id,
                    COALESCE(s.stop_name, ''),
                    COALESCE(ST_Y(s.stop_loc::geometry), 0),
                    COALESCE(ST_X(s.stop_loc::geometry), 0)
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	}
	rows, err := db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var stops []gtfs.Stop
	for rows.Next() {
		var s gtfs.Stop
		if err := rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// LoadRouteInputs gathers shape points and the stop sequence of one
// representative trip for every shape used by trips.
func LoadRouteInputs(ctx context.Context, db *sql.DB, trips []gtfs.Trip) ([]segment.RouteInput, error) {
	reps := gtfs.RepresentativeTrips(trips)
	out := make([]segment.RouteInput, 0, len(reps))
	for _, t := range reps {
		pts, err := FetchShapePoints(ctx, db, t.ShapeID)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", t.ShapeID, err)
		}
		stops, err := FetchTripStops(ctx, db, t.TripID)
		if err != nil {
			return nil, fmt.Errorf("trip %s: %w", t.TripID, err)
		}
		out = append(out, segment.RouteInput{
			ShapeID:   t.ShapeID,
			RouteID:   t.RouteID,
			Fragments: [][]gtfs.ShapePoint{pts},
			Stops:     stops,
		})
	}
	return out, nil
}

// hasColumns reports whether every named column exists on a public table.
func hasColumns(ctx context.Context, db *sql.DB, table string, cols ...string) (bool, error) {
	const q = `SELECT column_name FROM information_schema.columns
	           WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, "public", table, cols)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(cols))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		found[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	for _, c := range cols {
		if _, ok := found[c]; !ok {
			return false, nil
		}
	}
	return true, nil
}
