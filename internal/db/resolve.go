package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNoCityDatabase is returned when no successful import matches a city.
var ErrNoCityDatabase = errors.New("no imported database for city")

const (
	metaDatabase = "postgres"
	pingTimeout  = 5 * time.Second
)

// Connect opens the GTFS database. With a city set, the latest import for that
// city is looked up through the cluster's meta database first. It returns the
// open handle and the resolved database name (empty without a city).
func Connect(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	dsn := baseDSN
	name := ""
	if city = strings.TrimSpace(city); city != "" {
		metaDSN, err := swapDatabase(baseDSN, metaDatabase)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := dial(ctx, metaDSN, 1)
		if err != nil {
			return nil, "", fmt.Errorf("meta database: %w", err)
		}
		name, err = latestCityDatabase(ctx, meta, city)
		meta.Close()
		if err != nil {
			return nil, "", err
		}
		if dsn, err = swapDatabase(baseDSN, name); err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}
	conn, err := dial(ctx, dsn, 20)
	if err != nil {
		return nil, "", err
	}
	return conn, name, nil
}

// dial opens a pgx-backed pool and checks that the server answers.
func dial(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(min(maxOpen, 5))
	conn.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return conn, nil
}

// swapDatabase points a postgres URL at another database, keeping credentials
// and query parameters.
func swapDatabase(dsn, database string) (string, error) {
	if dsn == "" {
		return "", errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	u.RawPath = ""
	return u.String(), nil
}

// latestCityDatabase picks the most recently imported database whose name
// contains city.
func latestCityDatabase(ctx context.Context, meta *sql.DB, city string) (string, error) {
	const q = `SELECT db_name FROM public.latest_successful_imports
	           WHERE db_name ILIKE '%' || $1 || '%'
	           ORDER BY imported_at DESC LIMIT 1`

	var name sql.NullString
	err := meta.QueryRowContext(ctx, q, city).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%w: %q", ErrNoCityDatabase, city)
	case err != nil:
		return "", fmt.Errorf("resolve city %q: %w", city, err)
	case !name.Valid || name.String == "":
		return "", fmt.Errorf("%w: %q has an empty db_name", ErrNoCityDatabase, city)
	}
	return name.String, nil
}
