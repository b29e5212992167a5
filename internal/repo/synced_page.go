package repo

import (
	"context"
	"errors"
	"fmt"

	"docspace-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSyncedPageNotFound = errors.New("synced page binding not found")
)

// SyncedPageRepository persists reference -> origin bindings. The binding is
// keyed by the reference page id; origin_space_id is denormalized for quick
// authorization short-circuiting without a second page fetch.
type SyncedPageRepository struct {
	pool *pgxpool.Pool
}

func NewSyncedPageRepository(pool *pgxpool.Pool) *SyncedPageRepository {
	return &SyncedPageRepository{pool: pool}
}

// FindByReferenceID resolves the binding for a reference page.
func (r *SyncedPageRepository) FindByReferenceID(ctx context.Context, referencePageID string) (*domain.SyncedPage, error) {
	query := `
		SELECT reference_page_id, origin_page_id, origin_space_id, created_at
		FROM synced_pages
		WHERE reference_page_id = $1
	`

	var sp domain.SyncedPage
	err := r.pool.QueryRow(ctx, query, referencePageID).Scan(
		&sp.ReferencePageID, &sp.OriginPageID, &sp.OriginSpaceID, &sp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncedPageNotFound
		}
		return nil, fmt.Errorf("query synced page: %w", err)
	}
	return &sp, nil
}

// Insert records a binding inside the caller's transaction so the reference
// page row and its binding appear together.
func (r *SyncedPageRepository) Insert(ctx context.Context, tx pgx.Tx, sp *domain.SyncedPage) error {
	query := `
		INSERT INTO synced_pages (reference_page_id, origin_page_id, origin_space_id)
		VALUES ($1, $2, $3)
	`
	_, err := tx.Exec(ctx, query, sp.ReferencePageID, sp.OriginPageID, sp.OriginSpaceID)
	if err != nil {
		return fmt.Errorf("insert synced page: %w", err)
	}
	return nil
}

// UpdateOriginSpace rewrites the denormalized origin_space_id after origin
// pages migrate to another space, keeping the short-circuit column honest.
func (r *SyncedPageRepository) UpdateOriginSpace(ctx context.Context, tx pgx.Tx, originIDs []string, spaceID string) error {
	query := `UPDATE synced_pages SET origin_space_id = $2 WHERE origin_page_id = ANY($1)`
	_, err := tx.Exec(ctx, query, originIDs, spaceID)
	if err != nil {
		return fmt.Errorf("update origin space: %w", err)
	}
	return nil
}

// ReferenceIDsByOriginIDs returns the reference page ids bound to any of the
// given origins. Permanent deletion of an origin cascade-deletes these
// reference pages in the same transaction.
func (r *SyncedPageRepository) ReferenceIDsByOriginIDs(ctx context.Context, tx pgx.Tx, originIDs []string) ([]string, error) {
	query := `SELECT reference_page_id FROM synced_pages WHERE origin_page_id = ANY($1)`

	rows, err := tx.Query(ctx, query, originIDs)
	if err != nil {
		return nil, fmt.Errorf("query references by origin: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reference id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference ids: %w", err)
	}
	return ids, nil
}
