package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// ErrSlugTaken is returned when a slug is already claimed by a mod
var ErrSlugTaken = errors.New("slug already taken")

// SlugEntry maps a slug to the mod that owns it. Earlier deployments
// resolved slugs by scanning every customer scope; this index makes
// the lookup a single primary-key read.
type SlugEntry struct {
	Slug       string
	ModID      string
	CustomerID string
}

// SlugIndex is the global slug registry. The primary key on slug is
// what enforces uniqueness across all customers.
type SlugIndex interface {
	// Claim registers a slug for a mod. Fails with ErrSlugTaken if
	// another mod already holds it.
	Claim(ctx context.Context, slug, modID, customerID string) error

	// Resolve looks up the owner of a slug
	Resolve(ctx context.Context, slug string) (*SlugEntry, error)

	// Release frees a slug. Releasing an unknown slug is not an
	// error; deletes must be idempotent.
	Release(ctx context.Context, slug string) error
}

type postgresSlugIndex struct {
	pool *pgxpool.Pool
}

// NewSlugIndex creates the PostgreSQL-backed slug index
func NewSlugIndex(pool *pgxpool.Pool) SlugIndex {
	return &postgresSlugIndex{pool: pool}
}

func (i *postgresSlugIndex) Claim(ctx context.Context, slug, modID, customerID string) error {
	const query = `
		INSERT INTO slug_index (slug, mod_id, customer_id)
		VALUES ($1, $2, $3)
	`

	_, err := i.pool.Exec(ctx, query, slug, modID, customerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return ErrSlugTaken
			}
		}
		logger.Error("slug index Claim: database error", err)
		return fmt.Errorf("failed to claim slug: %w", err)
	}

	return nil
}

func (i *postgresSlugIndex) Resolve(ctx context.Context, slug string) (*SlugEntry, error) {
	const query = `
		SELECT slug, mod_id, customer_id
		FROM slug_index
		WHERE slug = $1
	`

	entry := &SlugEntry{}
	err := i.pool.QueryRow(ctx, query, slug).Scan(&entry.Slug, &entry.ModID, &entry.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error("slug index Resolve: database error", err)
		return nil, fmt.Errorf("failed to resolve slug: %w", err)
	}

	return entry, nil
}

func (i *postgresSlugIndex) Release(ctx context.Context, slug string) error {
	const query = `
		DELETE FROM slug_index
		WHERE slug = $1
	`

	_, err := i.pool.Exec(ctx, query, slug)
	if err != nil {
		logger.Error("slug index Release: database error", err)
		return fmt.Errorf("failed to release slug: %w", err)
	}

	return nil
}
