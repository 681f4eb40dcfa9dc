package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrInvalidAssetTable is returned for tables outside the PostGIS whitelist.
	ErrInvalidAssetTable = errors.New("invalid assetType")
	// ErrPostGISDisabled is returned when no pool is configured.
	ErrPostGISDisabled = errors.New("postgis not configured")
)

// PostGISTables lists the tables the side channel may query.
var PostGISTables = []string{
	"plants",
	"storage_facilities",
	"pipelines",
	"hubs",
	"renewable_sources",
	"demand_centers",
	"regulatory_zones",
}

// IsPostGISTable reports whether table is whitelisted.
func IsPostGISTable(table string) bool {
	for _, t := range PostGISTables {
		if t == table {
			return true
		}
	}
	return false
}

// PgxQuerier is the subset of *pgxpool.Pool the repository needs.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostGISRepository runs spatial queries against a PostGIS database whose
// tables carry a geom column in SRID 4326.
type PostGISRepository interface {
	AssetsInPolygon(ctx context.Context, table string, polygon []byte) ([]map[string]any, error)
	NearestAssets(ctx context.Context, table string, lng, lat float64, limit int) ([]map[string]any, error)
	Ping(ctx context.Context) error
}

type postGISRepository struct {
	pool PgxQuerier
}

// NewPostGISRepository wraps a pgx pool. A nil pool yields a repository
// that reports ErrPostGISDisabled.
func NewPostGISRepository(pool PgxQuerier) PostGISRepository {
	return &postGISRepository{pool: pool}
}

func (r *postGISRepository) ready(table string) error {
	if !IsPostGISTable(table) {
		return ErrInvalidAssetTable
	}
	if r.pool == nil {
		return ErrPostGISDisabled
	}
	return nil
}

// AssetsInPolygon returns rows whose geometry lies within the GeoJSON polygon.
func (r *postGISRepository) AssetsInPolygon(ctx context.Context, table string, polygon []byte) ([]map[string]any, error) {
	if err := r.ready(table); err != nil {
		return nil, err
	}
	// table is whitelisted above, so formatting it into the statement is safe.
	query := fmt.Sprintf(
		`SELECT *, ST_AsGeoJSON(geom)::json AS geometry FROM %s WHERE ST_Within(geom, ST_SetSRID(ST_GeomFromGeoJSON($1), 4326))`,
		table)
	return r.collect(ctx, query, string(polygon))
}

// NearestAssets returns up to limit rows ordered by distance from the point.
func (r *postGISRepository) NearestAssets(ctx context.Context, table string, lng, lat float64, limit int) ([]map[string]any, error) {
	if err := r.ready(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(
		`SELECT *, ST_AsGeoJSON(geom)::json AS geometry, ST_Distance(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)) AS dist FROM %s ORDER BY dist ASC LIMIT $3`,
		table)
	return r.collect(ctx, query, lng, lat, limit)
}

func (r *postGISRepository) collect(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgis query: %w", err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("postgis scan: %w", err)
	}
	for _, row := range result {
		// raw EWKB is replaced by the GeoJSON rendering
		delete(row, "geom")
	}
	return result, nil
}

func (r *postGISRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return ErrPostGISDisabled
	}
	return r.pool.Ping(ctx)
}
