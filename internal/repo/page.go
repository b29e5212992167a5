package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"docspace-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPageNotFound = errors.New("page not found")
)

const pageColumns = `id, slug_id, space_id, workspace_id, parent_page_id, position,
       title, icon, content, creator_id, last_updated_by, contributors,
       is_synced, created_at, updated_at, deleted_at`

const pageColumnsNoContent = `id, slug_id, space_id, workspace_id, parent_page_id, position,
       title, icon, NULL AS content, creator_id, last_updated_by, contributors,
       is_synced, created_at, updated_at, deleted_at`

type PageRepository struct {
	pool *pgxpool.Pool
}

func NewPageRepository(pool *pgxpool.Pool) *PageRepository {
	return &PageRepository{pool: pool}
}

// BeginTx inicia uma transação.
// Deve ser usado em conjunto com defer tx.Rollback(ctx) e tx.Commit(ctx).
func (r *PageRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// FindPageOpts controls which joins/columns a page fetch includes.
type FindPageOpts struct {
	IncludeContent bool
	IncludeDeleted bool
}

func scanPage(row pgx.Row) (*domain.Page, error) {
	var p domain.Page
	err := row.Scan(
		&p.ID, &p.SlugID, &p.SpaceID, &p.WorkspaceID, &p.ParentPageID, &p.Position,
		&p.Title, &p.Icon, &p.Content, &p.CreatorID, &p.LastUpdatedBy, &p.Contributors,
		&p.IsSynced, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("scan page: %w", err)
	}
	return &p, nil
}

// FindByID retrieves a single page. Trashed pages read as not found unless
// opts.IncludeDeleted is set (restore and trash listings need them).
func (r *PageRepository) FindByID(ctx context.Context, pageID string, opts FindPageOpts) (*domain.Page, error) {
	cols := pageColumnsNoContent
	if opts.IncludeContent {
		cols = pageColumns
	}

	query := `SELECT ` + cols + ` FROM pages WHERE id = $1`
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanPage(r.pool.QueryRow(ctx, query, pageID))
}

// FindByIDTx is FindByID inside a transaction, with FOR UPDATE lock so a
// concurrent structural mutation on the same subtree serializes behind it.
func (r *PageRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, pageID string, opts FindPageOpts) (*domain.Page, error) {
	cols := pageColumnsNoContent
	if opts.IncludeContent {
		cols = pageColumns
	}

	query := `SELECT ` + cols + ` FROM pages WHERE id = $1`
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` FOR UPDATE OF pages`

	return scanPage(tx.QueryRow(ctx, query, pageID))
}

// Insert creates a new page row. With a nil tx the pool is used; clone
// operations pass their transaction so the whole copied subtree commits
// atomically.
func (r *PageRepository) Insert(ctx context.Context, tx pgx.Tx, page *domain.Page) error {
	query := `
		INSERT INTO pages (
			id, slug_id, space_id, workspace_id, parent_page_id, position,
			title, icon, content, creator_id, last_updated_by, contributors,
			is_synced, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	now := time.Now()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = page.CreatedAt

	var err error
	args := []any{
		page.ID, page.SlugID, page.SpaceID, page.WorkspaceID, page.ParentPageID, page.Position,
		page.Title, page.Icon, page.Content, page.CreatorID, page.LastUpdatedBy, page.Contributors,
		page.IsSynced, page.CreatedAt, page.UpdatedAt,
	}
	if tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = r.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// Update applies a partial content update and maintains authorship:
// the actor is appended to contributors if absent and recorded as
// last_updated_by. Only non-nil fields change.
func (r *PageRepository) Update(ctx context.Context, pageID string, req *domain.UpdatePageRequest, actorID string) (*domain.Page, error) {
	query := `
		UPDATE pages SET
			title = COALESCE($2, title),
			icon = COALESCE($3, icon),
			content = COALESCE($4, content),
			last_updated_by = $5,
			contributors = CASE
				WHEN $5 = ANY(contributors) THEN contributors
				ELSE array_append(contributors, $5)
			END,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + pageColumns + `
	`

	var content any
	if len(req.Content) > 0 {
		content = req.Content
	}

	return scanPage(r.pool.QueryRow(ctx, query, pageID, req.Title, req.Icon, content, actorID))
}

// MaxSiblingPosition returns the highest position among live siblings under
// parentID (nil = space roots). New siblings are appended after it. With a
// nil tx the pool is used; transactional callers pass their tx so the value
// comes from the same snapshot as the insert.
func (r *PageRepository) MaxSiblingPosition(ctx context.Context, tx pgx.Tx, spaceID string, parentID *string) (float64, error) {
	query := `
		SELECT COALESCE(MAX(position), 0)
		FROM pages
		WHERE space_id = $1 AND parent_page_id IS NOT DISTINCT FROM $2 AND deleted_at IS NULL
	`

	var max float64
	var err error
	if tx != nil {
		err = tx.QueryRow(ctx, query, spaceID, parentID).Scan(&max)
	} else {
		err = r.pool.QueryRow(ctx, query, spaceID, parentID).Scan(&max)
	}
	if err != nil {
		return 0, fmt.Errorf("query max sibling position: %w", err)
	}
	return max, nil
}

// SiblingPositions returns the ordered positions of live siblings under
// parentID, excluding excludeID (the page being moved), locked FOR UPDATE so
// the computed midpoint stays strictly between its neighbours at commit time.
func (r *PageRepository) SiblingPositions(ctx context.Context, tx pgx.Tx, spaceID string, parentID *string, excludeID string) ([]float64, error) {
	query := `
		SELECT position
		FROM pages
		WHERE space_id = $1 AND parent_page_id IS NOT DISTINCT FROM $2
		  AND id <> $3 AND deleted_at IS NULL
		ORDER BY position ASC
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, spaceID, parentID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query sibling positions: %w", err)
	}
	defer rows.Close()

	var positions []float64
	for rows.Next() {
		var pos float64
		if err := rows.Scan(&pos); err != nil {
			return nil, fmt.Errorf("scan sibling position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sibling positions: %w", err)
	}
	return positions, nil
}

// SubtreeIDs collects the id set of the subtree rooted at rootID (root
// included), trashed descendants included. Implemented as a breadth-first
// worklist over parent_page_id rather than recursion: the full affected id
// set is known before any state transition is applied to it.
func (r *PageRepository) SubtreeIDs(ctx context.Context, tx pgx.Tx, rootID string) ([]string, error) {
	ids := []string{rootID}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		query := `SELECT id FROM pages WHERE parent_page_id = ANY($1)`

		var (
			rows pgx.Rows
			err  error
		)
		if tx != nil {
			rows, err = tx.Query(ctx, query, frontier)
		} else {
			rows, err = r.pool.Query(ctx, query, frontier)
		}
		if err != nil {
			return nil, fmt.Errorf("query subtree children: %w", err)
		}

		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan subtree child id: %w", err)
			}
			next = append(next, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate subtree children: %w", err)
		}

		ids = append(ids, next...)
		frontier = next
	}

	return ids, nil
}

// IsDescendant reports whether candidateID sits in the subtree rooted at
// ancestorID. Walks the candidate's parent chain upward; the chain is
// acyclic and finite by construction, so the walk terminates. With a nil tx
// the pool is used; moves re-run the check inside their transaction with the
// edge rows locked.
func (r *PageRepository) IsDescendant(ctx context.Context, tx pgx.Tx, candidateID, ancestorID string) (bool, error) {
	query := `SELECT parent_page_id FROM pages WHERE id = $1`

	current := candidateID
	for {
		if current == ancestorID {
			return true, nil
		}

		var (
			parent *string
			err    error
		)
		if tx != nil {
			err = tx.QueryRow(ctx, query, current).Scan(&parent)
		} else {
			err = r.pool.QueryRow(ctx, query, current).Scan(&parent)
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("query parent chain: %w", err)
		}
		if parent == nil {
			return false, nil
		}
		current = *parent
	}
}

// SetSubtreeDeleted stamps deleted_at on every id in the set (soft trash)
// or clears it (restore) in one statement inside the caller's transaction.
func (r *PageRepository) SetSubtreeDeleted(ctx context.Context, tx pgx.Tx, ids []string, deletedAt *time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE pages SET deleted_at = $2 WHERE id = ANY($1)`, ids, deletedAt)
	if err != nil {
		return fmt.Errorf("set subtree deleted: %w", err)
	}
	return nil
}

// DeletePermanently removes the rows for good. Reference bindings keyed by
// these ids cascade away via the synced_pages foreign keys.
func (r *PageRepository) DeletePermanently(ctx context.Context, tx pgx.Tx, ids []string) error {
	_, err := tx.Exec(ctx, `DELETE FROM pages WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}

// Move re-parents/reorders a page within its space.
func (r *PageRepository) Move(ctx context.Context, tx pgx.Tx, pageID string, parentID *string, position float64) error {
	query := `
		UPDATE pages
		SET parent_page_id = $2, position = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := tx.Exec(ctx, query, pageID, parentID, position)
	if err != nil {
		return fmt.Errorf("move page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPageNotFound
	}
	return nil
}

// MigrateSubtreeToSpace rewrites space_id for the whole id set and
// re-parents the subtree root in the destination, all inside one
// transaction: either the full subtree migrates or none of it does.
func (r *PageRepository) MigrateSubtreeToSpace(ctx context.Context, tx pgx.Tx, ids []string, rootID, destSpaceID string, destParentID *string, rootPosition float64) error {
	_, err := tx.Exec(ctx, `UPDATE pages SET space_id = $2, updated_at = NOW() WHERE id = ANY($1)`, ids, destSpaceID)
	if err != nil {
		return fmt.Errorf("migrate subtree space: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE pages SET parent_page_id = $2, position = $3 WHERE id = $1`,
		rootID, destParentID, rootPosition,
	)
	if err != nil {
		return fmt.Errorf("reparent migrated root: %w", err)
	}
	return nil
}

// FindSubtreePages loads full rows (content included) for an id set. Order
// is not significant; callers that need parent-first order re-sort by the
// worklist order of SubtreeIDs.
func (r *PageRepository) FindSubtreePages(ctx context.Context, tx pgx.Tx, ids []string) ([]domain.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE id = ANY($1) ORDER BY created_at ASC`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query subtree pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		err := rows.Scan(
			&p.ID, &p.SlugID, &p.SpaceID, &p.WorkspaceID, &p.ParentPageID, &p.Position,
			&p.Title, &p.Icon, &p.Content, &p.CreatorID, &p.LastUpdatedBy, &p.Contributors,
			&p.IsSynced, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subtree page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtree pages: %w", err)
	}
	return pages, nil
}

// Breadcrumbs walks the ancestor chain of pageID and returns it root-first,
// the page itself excluded.
func (r *PageRepository) Breadcrumbs(ctx context.Context, pageID string) ([]domain.Page, error) {
	page, err := r.FindByID(ctx, pageID, FindPageOpts{})
	if err != nil {
		return nil, err
	}

	var chain []domain.Page
	parent := page.ParentPageID
	for parent != nil {
		p, err := r.FindByID(ctx, *parent, FindPageOpts{})
		if err != nil {
			if errors.Is(err, ErrPageNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, *p)
		parent = p.ParentPageID
	}

	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ListSidebar lists the live direct children of parentID (nil = space roots)
// ordered by position, cursor-paginated on the position key.
func (r *PageRepository) ListSidebar(ctx context.Context, spaceID string, parentID *string, p domain.Pagination) ([]domain.Page, string, error) {
	query := `
		SELECT ` + pageColumnsNoContent + `
		FROM pages
		WHERE space_id = $1 AND parent_page_id IS NOT DISTINCT FROM $2 AND deleted_at IS NULL
	`
	args := []any{spaceID, parentID}
	argIdx := 3

	if p.Cursor != nil {
		cursorPos, err := strconv.ParseFloat(*p.Cursor, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(` AND position > $%d`, argIdx)
		args = append(args, cursorPos)
		argIdx++
	}

	query += ` ORDER BY position ASC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, p.Limit+1)

	pages, err := r.queryPages(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(pages) > p.Limit {
		nextCursor = strconv.FormatFloat(pages[p.Limit-1].Position, 'f', -1, 64)
		pages = pages[:p.Limit]
	}
	return pages, nextCursor, nil
}

// ListInSpace lists live pages of a space, newest first.
func (r *PageRepository) ListInSpace(ctx context.Context, spaceID string, p domain.Pagination) ([]domain.Page, string, error) {
	query := `
		SELECT ` + pageColumnsNoContent + `
		FROM pages
		WHERE space_id = $1 AND deleted_at IS NULL
	`
	args := []any{spaceID}
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

	pages, err := r.queryPages(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(pages) > p.Limit {
		nextCursor = pages[p.Limit-1].CreatedAt.Format(time.RFC3339)
		pages = pages[:p.Limit]
	}
	return pages, nextCursor, nil
}

// ListRecentInSpace lists live pages of one space ordered by last update.
func (r *PageRepository) ListRecentInSpace(ctx context.Context, spaceID string, p domain.Pagination) ([]domain.Page, string, error) {
	return r.listRecent(ctx, `space_id = $1`, []any{spaceID}, p)
}

// ListRecentForUser lists live pages the user contributed to across the
// given readable spaces, ordered by last update.
func (r *PageRepository) ListRecentForUser(ctx context.Context, userID string, spaceIDs []string, p domain.Pagination) ([]domain.Page, string, error) {
	if len(spaceIDs) == 0 {
		return nil, "", nil
	}
	return r.listRecent(ctx, `space_id = ANY($1) AND $2 = ANY(contributors)`, []any{spaceIDs, userID}, p)
}

func (r *PageRepository) listRecent(ctx context.Context, where string, args []any, p domain.Pagination) ([]domain.Page, string, error) {
	argIdx := len(args) + 1
	query := `
		SELECT ` + pageColumnsNoContent + `
		FROM pages
		WHERE ` + where + ` AND deleted_at IS NULL
	`

	if p.Cursor != nil {
		cursorTime, err := time.Parse(time.RFC3339, *p.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(` AND updated_at < $%d`, argIdx)
		args = append(args, cursorTime)
		argIdx++
	}

	query += ` ORDER BY updated_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, p.Limit+1)

	pages, err := r.queryPages(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(pages) > p.Limit {
		nextCursor = pages[p.Limit-1].UpdatedAt.Format(time.RFC3339)
		pages = pages[:p.Limit]
	}
	return pages, nextCursor, nil
}

// ListDeleted lists trashed pages of a space, most recently trashed first.
func (r *PageRepository) ListDeleted(ctx context.Context, spaceID string, p domain.Pagination) ([]domain.Page, string, error) {
	query := `
		SELECT ` + pageColumnsNoContent + `
		FROM pages
		WHERE space_id = $1 AND deleted_at IS NOT NULL
	`
	args := []any{spaceID}
	argIdx := 2

	if p.Cursor != nil {
		cursorTime, err := time.Parse(time.RFC3339, *p.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(` AND deleted_at < $%d`, argIdx)
		args = append(args, cursorTime)
		argIdx++
	}

	query += ` ORDER BY deleted_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, p.Limit+1)

	pages, err := r.queryPages(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(pages) > p.Limit {
		nextCursor = pages[p.Limit-1].DeletedAt.Format(time.RFC3339)
		pages = pages[:p.Limit]
	}
	return pages, nextCursor, nil
}

func (r *PageRepository) queryPages(ctx context.Context, query string, args ...any) ([]domain.Page, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var p domain.Page
		err := rows.Scan(
			&p.ID, &p.SlugID, &p.SpaceID, &p.WorkspaceID, &p.ParentPageID, &p.Position,
			&p.Title, &p.Icon, &p.Content, &p.CreatorID, &p.LastUpdatedBy, &p.Contributors,
			&p.IsSynced, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page rows: %w", err)
	}
	return pages, nil
}
