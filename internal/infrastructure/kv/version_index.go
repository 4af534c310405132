package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// VersionIndex keeps the ordered version-ID list per owner, newest
// first. The owner is a mod for mod versions and a variant for
// variant versions; both share the same table since the contract is
// identical.
type VersionIndex interface {
	// Append records a new version at the head of the owner's list
	Append(ctx context.Context, ownerID, versionID string) error

	// Remove deletes one version ID from the owner's list.
	// Idempotent.
	Remove(ctx context.Context, ownerID, versionID string) error

	// List returns the owner's version IDs, newest first. An owner
	// with no versions yields an empty list, not an error.
	List(ctx context.Context, ownerID string) ([]string, error)

	// Delete drops the owner's whole list. Idempotent.
	Delete(ctx context.Context, ownerID string) error
}

type postgresVersionIndex struct {
	pool *pgxpool.Pool
}

// NewVersionIndex creates the PostgreSQL-backed version index
func NewVersionIndex(pool *pgxpool.Pool) VersionIndex {
	return &postgresVersionIndex{pool: pool}
}

func (i *postgresVersionIndex) Append(ctx context.Context, ownerID, versionID string) error {
	// array_prepend keeps newest-first ordering without reading the
	// list back first
	const query = `
		INSERT INTO version_index (owner_id, version_ids)
		VALUES ($1, ARRAY[$2]::text[])
		ON CONFLICT (owner_id) DO UPDATE SET
			version_ids = array_prepend($2::text, version_index.version_ids),
			updated_at  = now()
	`

	_, err := i.pool.Exec(ctx, query, ownerID, versionID)
	if err != nil {
		logger.Error("version index Append: database error", err)
		return fmt.Errorf("failed to append version: %w", err)
	}

	return nil
}

func (i *postgresVersionIndex) Remove(ctx context.Context, ownerID, versionID string) error {
	const query = `
		UPDATE version_index
		SET version_ids = array_remove(version_ids, $2::text),
		    updated_at  = now()
		WHERE owner_id = $1
	`

	_, err := i.pool.Exec(ctx, query, ownerID, versionID)
	if err != nil {
		logger.Error("version index Remove: database error", err)
		return fmt.Errorf("failed to remove version: %w", err)
	}

	return nil
}

func (i *postgresVersionIndex) List(ctx context.Context, ownerID string) ([]string, error) {
	const query = `
		SELECT version_ids
		FROM version_index
		WHERE owner_id = $1
	`

	var versionIDs []string
	err := i.pool.QueryRow(ctx, query, ownerID).Scan(pq.Array(&versionIDs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []string{}, nil
		}
		logger.Error("version index List: database error", err)
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	return versionIDs, nil
}

func (i *postgresVersionIndex) Delete(ctx context.Context, ownerID string) error {
	const query = `
		DELETE FROM version_index
		WHERE owner_id = $1
	`

	_, err := i.pool.Exec(ctx, query, ownerID)
	if err != nil {
		logger.Error("version index Delete: database error", err)
		return fmt.Errorf("failed to delete version list: %w", err)
	}

	return nil
}
