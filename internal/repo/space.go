package repo

import (
	"context"
	"errors"
	"fmt"

	"docspace-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =====================================================
// Error Definitions
// =====================================================

var (
	// ErrSpaceNotFound indicates the space does not exist in the workspace
	ErrSpaceNotFound = errors.New("space not found in workspace")

	// ErrSpaceMemberNotFound indicates the user has no membership in the space
	ErrSpaceMemberNotFound = errors.New("user is not a member of this space")

	// ErrInvalidSpaceRole indicates the stored role is not a known SpaceRole
	ErrInvalidSpaceRole = errors.New("invalid space role")
)

// =====================================================
// Repository Definition
// =====================================================

// SpaceRepository handles database operations for spaces and space membership.
// GetMemberRole is the input to the capability engine: every authorization
// decision starts with a fresh role lookup here.
type SpaceRepository struct {
	pool *pgxpool.Pool
}

// NewSpaceRepository creates a new SpaceRepository instance.
func NewSpaceRepository(pool *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{pool: pool}
}

// GetMemberRole retrieves the space role for a user.
//
// Returns:
//   - the role if a membership row exists
//   - ErrSpaceMemberNotFound if the user is not a member (callers translate
//     this into a deny-everything grant, surfaced as a generic 403)
//   - other errors for database failures
//
// Security: this lookup is never cached across requests or across space
// boundaries crossed within one operation. Cross-space operations call it
// once per implicated space.
func (r *SpaceRepository) GetMemberRole(ctx context.Context, userID string, spaceID string) (domain.SpaceRole, error) {
	query := `
		SELECT role
		FROM space_members
		WHERE user_id = $1 AND space_id = $2
	`

	var roleName string
	err := r.pool.QueryRow(ctx, query, userID, spaceID).Scan(&roleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSpaceMemberNotFound
		}
		return "", fmt.Errorf("query space member role: %w", err)
	}

	role := domain.SpaceRole(roleName)

	// Protects against data corruption in the membership table
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role '%s' for user %s in space %s: %w", roleName, userID, spaceID, ErrInvalidSpaceRole)
	}

	return role, nil
}

// Get retrieves a space by id, scoped to the workspace.
// IDOR protection: a space belonging to another workspace reads as not found.
func (r *SpaceRepository) Get(ctx context.Context, workspaceID, spaceID string) (*domain.Space, error) {
	query := `
		SELECT id, workspace_id, name, slug, description, creator_id,
		       created_at, updated_at, deleted_at
		FROM spaces
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
	`

	var s domain.Space
	err := r.pool.QueryRow(ctx, query, spaceID, workspaceID).Scan(
		&s.ID, &s.WorkspaceID, &s.Name, &s.Slug, &s.Description, &s.CreatorID,
		&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("query space: %w", err)
	}

	return &s, nil
}

// ListMembers retrieves all members of a space.
func (r *SpaceRepository) ListMembers(ctx context.Context, spaceID string) ([]domain.SpaceMember, error) {
	query := `
		SELECT user_id, space_id, role, invited_by, created_at, updated_at
		FROM space_members
		WHERE space_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query space members: %w", err)
	}
	defer rows.Close()

	var members []domain.SpaceMember
	for rows.Next() {
		var m domain.SpaceMember
		err := rows.Scan(&m.UserID, &m.SpaceID, &m.Role, &m.InvitedBy, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan space member: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate space members: %w", err)
	}

	return members, nil
}

// ReadableSpaceIDs retrieves the ids of every space in the workspace where
// the user holds any role. Used by the cross-space recent-pages listing.
func (r *SpaceRepository) ReadableSpaceIDs(ctx context.Context, userID, workspaceID string) ([]string, error) {
	query := `
		SELECT m.space_id
		FROM space_members m
		JOIN spaces s ON s.id = m.space_id
		WHERE m.user_id = $1 AND s.workspace_id = $2 AND s.deleted_at IS NULL
	`

	rows, err := r.pool.Query(ctx, query, userID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query readable spaces: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan space id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readable spaces: %w", err)
	}

	return ids, nil
}
