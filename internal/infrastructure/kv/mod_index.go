package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/utils"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"
)

// ModSummary is the denormalized listing row kept in the mod index.
// It carries everything the browse and dashboard pages need so the
// full entity record is only opened for detail views.
type ModSummary struct {
	ModID         string    `json:"modId"`
	CustomerID    string    `json:"customerId"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Visibility    string    `json:"visibility"`
	Status        string    `json:"status"`
	LatestVersion string    `json:"latestVersion"`
	DownloadCount int64     `json:"downloadCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ModIndex is the global mod summary index
type ModIndex interface {
	// Upsert writes the summary row, replacing any previous one
	Upsert(ctx context.Context, summary *ModSummary) error

	// Get reads one summary by mod ID
	Get(ctx context.Context, modID string) (*ModSummary, error)

	// Delete removes a summary. Idempotent.
	Delete(ctx context.Context, modID string) error

	// ListPublicByCategory returns published public mods, newest
	// update first. An empty category means all categories.
	ListPublicByCategory(ctx context.Context, category string) ([]ModSummary, error)

	// ListByCustomer returns every mod owned by a customer,
	// regardless of visibility or status.
	ListByCustomer(ctx context.Context, customerID string) ([]ModSummary, error)

	// ListAll returns every summary row. Admin exports only.
	ListAll(ctx context.Context) ([]ModSummary, error)
}

type postgresModIndex struct {
	pool *pgxpool.Pool
}

// NewModIndex creates the PostgreSQL-backed mod index
func NewModIndex(pool *pgxpool.Pool) ModIndex {
	return &postgresModIndex{pool: pool}
}

const modSummaryColumns = `
	mod_id, customer_id, slug, title, category,
	visibility, status, latest_version, download_count, updated_at
`

func (i *postgresModIndex) Upsert(ctx context.Context, summary *ModSummary) error {
	const query = `
		INSERT INTO mod_index (
			mod_id, customer_id, slug, title, category,
			visibility, status, latest_version, download_count, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (mod_id) DO UPDATE SET
			customer_id    = EXCLUDED.customer_id,
			slug           = EXCLUDED.slug,
			title          = EXCLUDED.title,
			category       = EXCLUDED.category,
			visibility     = EXCLUDED.visibility,
			status         = EXCLUDED.status,
			latest_version = EXCLUDED.latest_version,
			download_count = EXCLUDED.download_count,
			updated_at     = now()
	`

	_, err := i.pool.Exec(ctx, query,
		summary.ModID,
		summary.CustomerID,
		summary.Slug,
		summary.Title,
		summary.Category,
		summary.Visibility,
		summary.Status,
		summary.LatestVersion,
		summary.DownloadCount,
	)
	if err != nil {
		logger.Error("mod index Upsert: database error", err)
		return fmt.Errorf("failed to upsert mod summary: %w", err)
	}

	return nil
}

func (i *postgresModIndex) Get(ctx context.Context, modID string) (*ModSummary, error) {
	query := fmt.Sprintf(`SELECT %s FROM mod_index WHERE mod_id = $1`, modSummaryColumns)

	row := i.pool.QueryRow(ctx, query, modID)
	summary, err := scanModSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error("mod index Get: database error", err)
		return nil, fmt.Errorf("failed to get mod summary: %w", err)
	}

	return summary, nil
}

func (i *postgresModIndex) Delete(ctx context.Context, modID string) error {
	const query = `
		DELETE FROM mod_index
		WHERE mod_id = $1
	`

	_, err := i.pool.Exec(ctx, query, modID)
	if err != nil {
		logger.Error("mod index Delete: database error", err)
		return fmt.Errorf("failed to delete mod summary: %w", err)
	}

	return nil
}

func (i *postgresModIndex) ListPublicByCategory(ctx context.Context, category string) ([]ModSummary, error) {
	conditions := []string{
		"visibility = 'public'",
		"status = 'published'",
	}
	args := []interface{}{}

	if category != "" {
		conditions = append(conditions, "category = $1")
		args = append(args, category)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM mod_index WHERE %s ORDER BY updated_at DESC`,
		modSummaryColumns,
		utils.JoinWithAnd(conditions),
	)

	return i.querySummaries(ctx, query, args...)
}

func (i *postgresModIndex) ListByCustomer(ctx context.Context, customerID string) ([]ModSummary, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM mod_index WHERE customer_id = $1 ORDER BY updated_at DESC`,
		modSummaryColumns,
	)

	return i.querySummaries(ctx, query, customerID)
}

func (i *postgresModIndex) ListAll(ctx context.Context) ([]ModSummary, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM mod_index ORDER BY updated_at DESC`,
		modSummaryColumns,
	)

	return i.querySummaries(ctx, query)
}

func (i *postgresModIndex) querySummaries(ctx context.Context, query string, args ...interface{}) ([]ModSummary, error) {
	rows, err := i.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("mod index list: database error", err)
		return nil, fmt.Errorf("failed to list mod summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]ModSummary, 0)
	for rows.Next() {
		summary, err := scanModSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mod summary: %w", err)
		}
		summaries = append(summaries, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mod summaries: %w", err)
	}

	return summaries, nil
}

func scanModSummary(row pgx.Row) (*ModSummary, error) {
	summary := &ModSummary{}
	err := row.Scan(
		&summary.ModID,
		&summary.CustomerID,
		&summary.Slug,
		&summary.Title,
		&summary.Category,
		&summary.Visibility,
		&summary.Status,
		&summary.LatestVersion,
		&summary.DownloadCount,
		&summary.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
