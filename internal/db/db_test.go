package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-speeds/internal/gtfs"
)

// arrayConverter lets []string arguments through the way pgx accepts them.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

var columnsQuery = regexp.QuoteMeta(`SELECT column_name FROM information_schema.columns`)

func TestFetchTrips(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM trips WHERE route_id = ANY($1) ORDER BY trip_id`)).
		WithArgs([]string{"M15"}).
		WillReturnRows(sqlmock.NewRows([]string{"trip_id", "route_id", "shape_id", "service_id"}).
			AddRow("t1", "M15", "shp1", "wk").
			AddRow("t2", "M15", "", "wk"))

	trips, err := FetchTrips(context.Background(), conn, []string{"M15"})
	require.NoError(t, err)
	assert.Equal(t, []gtfs.Trip{
		{TripID: "t1", RouteID: "M15", ShapeID: "shp1", ServiceID: "wk"},
		{TripID: "t2", RouteID: "M15", ServiceID: "wk"},
	}, trips)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchShapePointsLatLon(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "shapes", []string{"shape_pt_lat", "shape_pt_lon"}).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("shape_pt_lat").AddRow("shape_pt_lon"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT shape_pt_lat, shape_pt_lon`)).
		WithArgs("shp1").
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lon", "seq"}).
			AddRow(40.1, -73.9, 1).
			AddRow(40.2, -73.8, 2))

	pts, err := FetchShapePoints(context.Background(), conn, "shp1")
	require.NoError(t, err)
	assert.Equal(t, []gtfs.ShapePoint{
		{Lat: 40.1, Lon: -73.9, Sequence: 1},
		{Lat: 40.2, Lon: -73.8, Sequence: 2},
	}, pts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchShapePointsPostGIS(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(columnsQuery).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "shapes", []string{"shape_pt_loc"}).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("shape_pt_loc"))
	mock.ExpectQuery(regexp.QuoteMeta(`ST_Y(shape_pt_loc::geometry)`)).
		WithArgs("shp1").
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lon", "seq"}).AddRow(1.0, 2.0, 0))

	pts, err := FetchShapePoints(context.Background(), conn, "shp1")
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 1.0, pts[0].Lat)
	assert.Equal(t, 2.0, pts[0].Lon)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasColumnsNeedsEveryColumn(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "stops", []string{"stop_lat", "stop_lon"}).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("stop_lat"))
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "stops", []string{"stop_loc"}).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("stop_loc"))

	ok, err := hasColumns(context.Background(), conn, "stops", "stop_lat", "stop_lon")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = hasColumns(context.Background(), conn, "stops", "stop_loc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchShapePointsMissingColumns(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(columnsQuery).WillReturnRows(sqlmock.NewRows([]string{"column_name"}))
	mock.ExpectQuery(columnsQuery).WillReturnRows(sqlmock.NewRows([]string{"column_name"}))

	_, err := FetchShapePoints(context.Background(), conn, "shp1")
	assert.Error(t, err)

	pts, err := FetchShapePoints(context.Background(), conn, "")
	assert.NoError(t, err)
	assert.Nil(t, pts)
}

func TestLoadRouteInputs(t *testing.T) {
	conn, mock := newMock(t)
	latlon := sqlmock.NewRows([]string{"column_name"}).AddRow("shape_pt_lat").AddRow("shape_pt_lon")
	mock.ExpectQuery(columnsQuery).WillReturnRows(latlon)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM shapes WHERE shape_id = $1`)).
		WithArgs("shp1").
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lon", "seq"}).AddRow(0.0, 0.0, 1).AddRow(0.0, 0.01, 2))
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "stops", []string{"stop_lat", "stop_lon"}).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("stop_lat").AddRow("stop_lon"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM stop_times st`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"stop_id", "stop_name", "lat", "lon"}).
			AddRow("s1", "First Av", 0.0, 0.0).
			AddRow("s2", "Second Av", 0.0, 0.01))

	trips := []gtfs.Trip{
		{TripID: "b7", RouteID: "M15", ShapeID: "shp1"},
		{TripID: "a1", RouteID: "M15", ShapeID: "shp1"},
	}
	routes, err := LoadRouteInputs(context.Background(), conn, trips)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "shp1", routes[0].ShapeID)
	assert.Equal(t, "M15", routes[0].RouteID)
	require.Len(t, routes[0].Fragments, 1)
	assert.Len(t, routes[0].Fragments[0], 2)
	assert.Equal(t, []gtfs.Stop{
		{StopID: "s1", Name: "First Av"},
		{StopID: "s2", Name: "Second Av", Lon: 0.01},
	}, routes[0].Stops)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchVehiclePositions(t *testing.T) {
	conn, mock := newMock(t)
	ts := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM vehicle_positions`)).
		WithArgs("20240304").
		WillReturnRows(sqlmock.NewRows([]string{"trip_id", "vehicle_id", "route_id", "start_date", "ts", "lat", "lon"}).
			AddRow("t1", "v1", "M15", "20240304", ts, 40.7, -73.9))

	reports, err := FetchVehiclePositions(context.Background(), conn, "20240304", nil)
	require.NoError(t, err)
	assert.Equal(t, []gtfs.PositionReport{{
		TripID: "t1", VehicleID: "v1", RouteID: "M15", StartDate: "20240304",
		Timestamp: ts, Lat: 40.7, Lon: -73.9,
	}}, reports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchVehiclePositionsError(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM vehicle_positions`)).WillReturnError(errors.New("boom"))

	_, err := FetchVehiclePositions(context.Background(), conn, "20240304", []string{"M15"})
	assert.ErrorContains(t, err, "query vehicle_positions")
}
