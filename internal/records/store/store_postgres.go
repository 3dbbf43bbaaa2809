package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"beacon/internal/filter"
	"beacon/internal/records"
	"beacon/pkg/platform/sentinel"
)

const schemaDDL = `
	CREATE TABLE IF NOT EXISTS records (
		kind       TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		data       JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, id)
	)
`

// Postgres reads records from a records(kind, id, data jsonb) table.
type Postgres struct {
	db         *sql.DB
	catalog    records.Catalog
	typecaster *filter.Typecaster
}

func NewPostgres(db *sql.DB, catalog records.Catalog) *Postgres {
	return &Postgres{
		db:         db,
		catalog:    catalog,
		typecaster: filter.NewTypecaster(catalog),
	}
}

// EnsureSchema creates the records table when it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure records schema: %w", err)
	}
	return nil
}

// Upsert writes record under its "_id" (or "id").
func (s *Postgres) Upsert(ctx context.Context, kind string, record map[string]any) error {
	id, err := recordKey(record)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := `
		INSERT INTO records (kind, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, kind, id, data); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, kind string, id any) error {
	key, ok := records.CanonicalID(id)
	if !ok {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, kind, key); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// FetchByID loads one record and expands its relations, one batched query per
// relation level.
func (s *Postgres) FetchByID(ctx context.Context, kind string, id any, expandPaths []string) (map[string]any, error) {
	key, ok := records.CanonicalID(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE kind = $1 AND id = $2`, kind, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("fetch record: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if err := expand(ctx, s.catalog, s.load, kind, rec, expandPaths); err != nil {
		return nil, err
	}
	return rec, nil
}

// Count scans the records of kind and evaluates f against each. There is no
// translation of filters into SQL.
func (s *Postgres) Count(ctx context.Context, kind string, f filter.Compiled) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM records WHERE kind = $1`, kind)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return 0, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return 0, err
		}
		cast, err := s.typecaster.Record(kind, rec)
		if err != nil {
			continue
		}
		if f.Matches(cast) {
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate records: %w", err)
	}
	return n, nil
}

func (s *Postgres) load(ctx context.Context, kind string, ids []string) (map[string]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE kind = $1 AND id = ANY($2::text[])`,
		kind, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load related records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]any, len(ids))
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan related record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related records: %w", err)
	}
	return out, nil
}

func decodeRecord(data []byte) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
