// Package kv implements the scoped entity store and the global
// lookup indexes layered over PostgreSQL. Entity records are opaque
// JSON documents addressed by (scope, entityType, id); the indexes
// exist so nothing ever has to scan scopes to find a record.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// Entity types stored in the entity store
const (
	TypeMod            = "mod"
	TypeModVersion     = "modversion"
	TypeVariant        = "variant"
	TypeVariantVersion = "variantversion"
)

// ErrNotFound is returned when no entry exists at the given address
var ErrNotFound = errors.New("entry not found")

// Entry is one stored record together with its address
type Entry struct {
	Scope string
	Type  string
	ID    string
	Value []byte
}

// Store is the scoped key-value entity store. Values are opaque JSON
// documents; unmarshaling them is the repositories' concern.
type Store interface {
	Get(ctx context.Context, scope, entityType, id string) ([]byte, error)
	Put(ctx context.Context, scope, entityType, id string, value []byte) error
	Delete(ctx context.Context, scope, entityType, id string) error

	// ListScope returns every entry of one type within a scope,
	// newest first.
	ListScope(ctx context.Context, scope, entityType string) ([]Entry, error)

	// ListType returns every entry of one type across all scopes.
	// Only the lazy-migration fallback and the backfill job use
	// this; request paths go through the indexes.
	ListType(ctx context.Context, entityType string) ([]Entry, error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates the PostgreSQL-backed entity store
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Get(ctx context.Context, scope, entityType, id string) ([]byte, error) {
	const query = `
		SELECT value
		FROM kv_entries
		WHERE scope = $1 AND entity_type = $2 AND id = $3
	`

	var value []byte
	err := s.pool.QueryRow(ctx, query, scope, entityType, id).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error("kv Get: database error", err)
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return value, nil
}

func (s *postgresStore) Put(ctx context.Context, scope, entityType, id string, value []byte) error {
	const query = `
		INSERT INTO kv_entries (scope, entity_type, id, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, entity_type, id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, scope, entityType, id, value)
	if err != nil {
		logger.Error("kv Put: database error", err)
		return fmt.Errorf("failed to put entry: %w", err)
	}

	return nil
}

func (s *postgresStore) Delete(ctx context.Context, scope, entityType, id string) error {
	const query = `
		DELETE FROM kv_entries
		WHERE scope = $1 AND entity_type = $2 AND id = $3
	`

	tag, err := s.pool.Exec(ctx, query, scope, entityType, id)
	if err != nil {
		logger.Error("kv Delete: database error", err)
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *postgresStore) ListScope(ctx context.Context, scope, entityType string) ([]Entry, error) {
	const query = `
		SELECT scope, entity_type, id, value
		FROM kv_entries
		WHERE scope = $1 AND entity_type = $2
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, scope, entityType)
	if err != nil {
		logger.Error("kv ListScope: database error", err)
		return nil, fmt.Errorf("failed to list scope entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (s *postgresStore) ListType(ctx context.Context, entityType string) ([]Entry, error) {
	const query = `
		SELECT scope, entity_type, id, value
		FROM kv_entries
		WHERE entity_type = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, entityType)
	if err != nil {
		logger.Error("kv ListType: database error", err)
		return nil, fmt.Errorf("failed to list type entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Scope, &entry.Type, &entry.ID, &entry.Value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}
