package database

import (
	"context"
	"fmt"
	"log"
)

// schemaStatements creates the storage tables on first boot. All
// statements are idempotent so running them on every startup is safe;
// there is no separate migration tool in this deployment.
var schemaStatements = []string{
	// Entity records, one JSONB document per (scope, type, id).
	// Scope is the owning customer; entity_type is one of
	// mod/modversion/variant/variantversion.
	`CREATE TABLE IF NOT EXISTS kv_entries (
		scope       TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		id          TEXT NOT NULL,
		value       JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (scope, entity_type, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_entries_type ON kv_entries (entity_type, id)`,

	// Global slug index: one row per slug, O(1) slug resolution.
	// The primary key enforces slug uniqueness across all customers.
	`CREATE TABLE IF NOT EXISTS slug_index (
		slug        TEXT PRIMARY KEY,
		mod_id      TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Global mod summary index: powers category listings and
	// customer dashboards without opening entity records.
	`CREATE TABLE IF NOT EXISTS mod_index (
		mod_id         TEXT PRIMARY KEY,
		customer_id    TEXT NOT NULL,
		slug           TEXT NOT NULL,
		title          TEXT NOT NULL,
		category       TEXT NOT NULL DEFAULT '',
		visibility     TEXT NOT NULL DEFAULT 'public',
		status         TEXT NOT NULL DEFAULT 'published',
		latest_version TEXT NOT NULL DEFAULT '',
		download_count BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mod_index_category
		ON mod_index (category) WHERE visibility = 'public' AND status = 'published'`,
	`CREATE INDEX IF NOT EXISTS idx_mod_index_customer ON mod_index (customer_id)`,

	// Version-list index: newest-first version IDs per owner. The
	// owner is a mod for mod versions and a variant for variant
	// versions.
	`CREATE TABLE IF NOT EXISTS version_index (
		owner_id    TEXT PRIMARY KEY,
		version_ids TEXT[] NOT NULL DEFAULT '{}',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates all storage tables if they do not exist yet
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	log.Println("[DATABASE] Schema ensured")
	return nil
}
