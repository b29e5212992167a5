package domain

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// PageHistory é um snapshot imutável do conteúdo de uma página, gravado
// a cada update que carrega conteúdo. Snapshots de páginas synced são
// gravados contra a origin page (o conteúdo mora lá).
type PageHistory struct {
	ID          string          `json:"id" db:"id"`
	PageID      string          `json:"pageId" db:"page_id"`
	SpaceID     string          `json:"spaceId" db:"space_id"`
	WorkspaceID string          `json:"workspaceId" db:"workspace_id"`
	Title       string          `json:"title" db:"title"`
	Icon        *string         `json:"icon,omitempty" db:"icon"`
	Content     json.RawMessage `json:"content,omitempty" db:"content"`
	Version     int             `json:"version" db:"version"`
	LastUpdatedBy string        `json:"lastUpdatedBy" db:"last_updated_by"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// PageHistoryRequest lista snapshots de uma página.
type PageHistoryRequest struct {
	PageID string `json:"pageId" validate:"required"`
}

// PageHistoryInfoRequest busca um snapshot específico.
type PageHistoryInfoRequest struct {
	HistoryID string `json:"historyId" validate:"required"`
}

// PageHistoryListResponse resposta paginada de snapshots.
type PageHistoryListResponse struct {
	Data []PageHistory `json:"data"`
	Meta struct {
		HasNextPage bool    `json:"hasNextPage"`
		NextCursor  *string `json:"nextCursor,omitempty"`
	} `json:"meta"`
}

func (r *PageHistoryRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

func (r *PageHistoryInfoRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
