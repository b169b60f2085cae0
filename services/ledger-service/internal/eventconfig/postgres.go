package eventconfig

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerforge/ledgerforge/libs/db"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
)

const Schema = `
CREATE TABLE IF NOT EXISTS external_event_configuration (
	tenant_id VARCHAR(100) NOT NULL,
	type      VARCHAR(100) NOT NULL,
	enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (tenant_id, type)
);
`

// Repository keeps the settings in postgres.
type Repository struct {
	pool    *db.Pool
	catalog *businessevent.Catalog
}

func NewRepository(pool *db.Pool, catalog *businessevent.Catalog) *Repository {
	if catalog == nil {
		catalog = businessevent.DefaultCatalog()
	}
	return &Repository{pool: pool, catalog: catalog}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

func (r *Repository) IsEnabled(ctx context.Context, tenantID, eventType string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `
		SELECT enabled FROM external_event_configuration
		WHERE tenant_id = $1 AND type = $2
	`, tenantID, eventType).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return enabled, err
}

func (r *Repository) List(ctx context.Context, tenantID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type, enabled FROM external_event_configuration
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var (
			t       string
			enabled bool
		)
		if err := rows.Scan(&t, &enabled); err != nil {
			return nil, err
		}
		stored[t] = enabled
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return listFrom(r.catalog, stored), nil
}

func (r *Repository) Set(ctx context.Context, tenantID string, changes map[string]bool) error {
	if err := validate(r.catalog, changes); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for t, enabled := range changes {
		batch.Queue(`
			INSERT INTO external_event_configuration (tenant_id, type, enabled)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, type) DO UPDATE SET enabled = EXCLUDED.enabled
		`, tenantID, t, enabled)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Seed inserts the catalog defaults for types the tenant has no row for.
func (r *Repository) Seed(ctx context.Context, tenantID string) error {
	batch := &pgx.Batch{}
	for _, e := range r.catalog.Entries() {
		batch.Queue(`
			INSERT INTO external_event_configuration (tenant_id, type, enabled)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, type) DO NOTHING
		`, tenantID, e.Type, e.Enabled)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}
