package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docspace-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPageHistoryNotFound = errors.New("page history not found")
)

// PageHistoryRepository stores immutable content snapshots per page.
type PageHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPageHistoryRepository(pool *pgxpool.Pool) *PageHistoryRepository {
	return &PageHistoryRepository{pool: pool}
}

// Insert writes a snapshot. Version numbers are per page and monotonic;
// computed in the insert so concurrent snapshots of the same page cannot
// collide on a stale read.
func (r *PageHistoryRepository) Insert(ctx context.Context, h *domain.PageHistory) error {
	query := `
		INSERT INTO page_history (
			id, page_id, space_id, workspace_id, title, icon, content,
			version, last_updated_by
		)
		SELECT $1, $2, $3, $4, $5, $6, $7,
		       COALESCE(MAX(version), 0) + 1, $8
		FROM page_history
		WHERE page_id = $2
	`

	_, err := r.pool.Exec(ctx, query,
		h.ID, h.PageID, h.SpaceID, h.WorkspaceID, h.Title, h.Icon, h.Content,
		h.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert page history: %w", err)
	}
	return nil
}

// FindByID retrieves a single snapshot.
func (r *PageHistoryRepository) FindByID(ctx context.Context, historyID string) (*domain.PageHistory, error) {
	query := `
		SELECT id, page_id, space_id, workspace_id, title, icon, content,
		       version, last_updated_by, created_at
		FROM page_history
		WHERE id = $1
	`

	var h domain.PageHistory
	err := r.pool.QueryRow(ctx, query, historyID).Scan(
		&h.ID, &h.PageID, &h.SpaceID, &h.WorkspaceID, &h.Title, &h.Icon, &h.Content,
		&h.Version, &h.LastUpdatedBy, &h.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPageHistoryNotFound
		}
		return nil, fmt.Errorf("query page history: %w", err)
	}
	return &h, nil
}

// ListByPageID lists snapshots of a page, newest first, cursor-paginated.
// Content is omitted from the listing; /history/info fetches the payload.
func (r *PageHistoryRepository) ListByPageID(ctx context.Context, pageID string, p domain.Pagination) ([]domain.PageHistory, string, error) {
	query := `
		SELECT id, page_id, space_id, workspace_id, title, icon, NULL AS content,
		       version, last_updated_by, created_at
		FROM page_history
		WHERE page_id = $1
	`
	args := []any{pageID}
	argIdx := 2

	if p.Cursor != nil {
		cursorTime, err := time.Parse(time.RFC3339, *p.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, cursorTime)
		argIdx++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, p.Limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query page history list: %w", err)
	}
	defer rows.Close()

	var entries []domain.PageHistory
	for rows.Next() {
		var h domain.PageHistory
		err := rows.Scan(
			&h.ID, &h.PageID, &h.SpaceID, &h.WorkspaceID, &h.Title, &h.Icon, &h.Content,
			&h.Version, &h.LastUpdatedBy, &h.CreatedAt,
		)
		if err != nil {
			return nil, "", fmt.Errorf("scan page history row: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate page history rows: %w", err)
	}

	var nextCursor string
	if len(entries) > p.Limit {
		nextCursor = entries[p.Limit-1].CreatedAt.Format(time.RFC3339)
		entries = entries[:p.Limit]
	}
	return entries, nextCursor, nil
}
