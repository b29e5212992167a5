package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Page representa um nó na árvore de páginas de um espaço.
//
// IMPORTANTE: ParentPageID nil = raiz do espaço. Um parent não-nil sempre
// pertence ao mesmo espaço (cross-space parenting é proibido; mudança de
// espaço acontece apenas via move-to-space migrando a subárvore inteira).
//
// IMPORTANTE: Position usa float64 (DOUBLE PRECISION no DB) para fractional
// positioning entre irmãos.
type Page struct {
	// Identificadores
	ID     string `json:"id" db:"id"`
	SlugID string `json:"slugId" db:"slug_id"` // URL-safe, estável entre renames

	// Placement
	SpaceID      string  `json:"spaceId" db:"space_id"`
	WorkspaceID  string  `json:"workspaceId" db:"workspace_id"`
	ParentPageID *string `json:"parentPageId,omitempty" db:"parent_page_id"`
	Position     float64 `json:"position" db:"position"`

	// Conteúdo (opaco; pertence exclusivamente à página, exceto se synced)
	Title   string          `json:"title" db:"title"`
	Icon    *string         `json:"icon,omitempty" db:"icon"`
	Content json.RawMessage `json:"content,omitempty" db:"content"`

	// Autoria
	CreatorID     string   `json:"creatorId" db:"creator_id"`
	LastUpdatedBy *string  `json:"lastUpdatedBy,omitempty" db:"last_updated_by"`
	Contributors  []string `json:"contributors" db:"contributors"`

	// Lifecycle
	IsSynced  bool       `json:"isSynced" db:"is_synced"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsTrashed reports whether the page sits in the trash (soft-deleted).
func (p *Page) IsTrashed() bool {
	return p.DeletedAt != nil
}

// ApplyOrigin overlays the origin page's content, title and icon onto this
// reference page. Placement identity (id, slugId, spaceId, parentPageId,
// position) stays the reference's own. This is the single redirection point
// for synced reads; it never copies authorship of the placement row.
func (p *Page) ApplyOrigin(origin *Page) {
	p.Title = origin.Title
	p.Icon = origin.Icon
	p.Content = origin.Content
	p.LastUpdatedBy = origin.LastUpdatedBy
	p.Contributors = origin.Contributors
}

// SyncedPage binds a reference page (placement-only, isSynced = true) to the
// origin page holding the authoritative content.
type SyncedPage struct {
	ReferencePageID string    `json:"referencePageId" db:"reference_page_id"`
	OriginPageID    string    `json:"originPageId" db:"origin_page_id"`
	OriginSpaceID   string    `json:"originSpaceId" db:"origin_space_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// =====================================================
// Request DTOs
// =====================================================

// CreatePageRequest DTO para criação de página.
// Position é calculada pelo service (após o último irmão).
type CreatePageRequest struct {
	SpaceID      string          `json:"spaceId" validate:"required"`
	ParentPageID *string         `json:"parentPageId,omitempty"`
	Title        string          `json:"title" validate:"max=500"`
	Icon         *string         `json:"icon,omitempty" validate:"omitempty,max=50"`
	Content      json.RawMessage `json:"content,omitempty"`
}

// UpdatePageRequest DTO para atualização parcial (PATCH semântico).
// Todos os campos são ponteiros - nil = não modificar.
type UpdatePageRequest struct {
	PageID  string          `json:"pageId" validate:"required"`
	Title   *string         `json:"title,omitempty" validate:"omitempty,max=500"`
	Icon    *string         `json:"icon,omitempty" validate:"omitempty,max=50"`
	Content json.RawMessage `json:"content,omitempty"`
}

// HasContentChange reports whether the update carries a content payload,
// which is what triggers a history snapshot.
func (r *UpdatePageRequest) HasContentChange() bool {
	return len(r.Content) > 0
}

// PageIDRequest carries a single page id (delete/remove/restore/breadcrumbs/info).
type PageIDRequest struct {
	PageID string `json:"pageId" validate:"required"`
}

// MovePageRequest DTO para reparent/reorder dentro do mesmo espaço.
//
// Position é um índice alvo entre os novos irmãos (0 = primeiro). nil =
// final da lista. O service traduz o índice numa position key fracionária
// estritamente entre os vizinhos.
type MovePageRequest struct {
	PageID       string  `json:"pageId" validate:"required"`
	ParentPageID *string `json:"parentPageId,omitempty"`
	Position     *int    `json:"position,omitempty" validate:"omitempty,min=0"`
}

// MovePageToSpaceRequest DTO para migração cross-space da subárvore inteira.
type MovePageToSpaceRequest struct {
	PageID       string  `json:"pageId" validate:"required"`
	SpaceID      string  `json:"spaceId" validate:"required"`
	ParentPageID *string `json:"parentPageId,omitempty"`
}

// CopyPageToSpaceRequest DTO para clonar a subárvore em outro espaço.
type CopyPageToSpaceRequest struct {
	PageID  string `json:"pageId" validate:"required"`
	SpaceID string `json:"spaceId" validate:"required"`
}

// CreateSyncPageRequest DTO para criar uma reference page apontando para
// uma origin page existente.
type CreateSyncPageRequest struct {
	OriginPageID string  `json:"originPageId" validate:"required"`
	SpaceID      string  `json:"spaceId" validate:"required"`
	ParentPageID *string `json:"parentPageId,omitempty"`
}

// SidebarPagesRequest lista filhos diretos para a sidebar.
// PageID nil = raízes do espaço.
type SidebarPagesRequest struct {
	SpaceID string  `json:"spaceId" validate:"required"`
	PageID  *string `json:"pageId,omitempty"`
}

// RecentPagesRequest: SpaceID nil = páginas recentes do usuário entre os
// espaços que ele pode ler.
type RecentPagesRequest struct {
	SpaceID *string `json:"spaceId,omitempty"`
}

// DeletedPagesRequest lista páginas na lixeira de um espaço.
type DeletedPagesRequest struct {
	SpaceID string `json:"spaceId" validate:"required"`
}

// =====================================================
// Pagination
// =====================================================

// Pagination são os parâmetros cursor-based compartilhados pelas listagens.
type Pagination struct {
	Limit  int     `json:"limit"`
	Cursor *string `json:"cursor,omitempty"` // RFC3339 timestamp
}

// Normalize aplica defaults e limites.
func (p *Pagination) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
	if p.Cursor != nil && strings.TrimSpace(*p.Cursor) == "" {
		p.Cursor = nil
	}
}

// PageListResponse resposta paginada de páginas.
type PageListResponse struct {
	Data []Page `json:"data"`
	Meta struct {
		HasNextPage bool    `json:"hasNextPage"`
		NextCursor  *string `json:"nextCursor,omitempty"`
	} `json:"meta"`
}

// =====================================================
// Validation
// =====================================================

func (r *CreatePageRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)

	validate := validator.New()
	return validate.Struct(r)
}

func (r *UpdatePageRequest) Validate() error {
	if r.Title != nil {
		trimmed := strings.TrimSpace(*r.Title)
		r.Title = &trimmed
	}

	validate := validator.New()
	return validate.Struct(r)
}

func (r *PageIDRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *MovePageRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *MovePageToSpaceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *CopyPageToSpaceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *CreateSyncPageRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *SidebarPagesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *DeletedPagesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
