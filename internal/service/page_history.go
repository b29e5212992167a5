package service

import (
	"context"
	"errors"
	"fmt"

	"docspace-api/internal/domain"
	"docspace-api/internal/repo"
)

var ErrPageHistoryNotFound = repo.ErrPageHistoryNotFound

// PageHistoryService serve os snapshots imutáveis de versões de página.
// Snapshots são gravados pelo PageService em updates com conteúdo; aqui só
// existe leitura.
type PageHistoryService struct {
	historyRepo *repo.PageHistoryRepository
	pageRepo    *repo.PageRepository
	spaceRepo   *repo.SpaceRepository
}

func NewPageHistoryService(historyRepo *repo.PageHistoryRepository, pageRepo *repo.PageRepository, spaceRepo *repo.SpaceRepository) *PageHistoryService {
	return &PageHistoryService{
		historyRepo: historyRepo,
		pageRepo:    pageRepo,
		spaceRepo:   spaceRepo,
	}
}

// ListPageHistory lists the version snapshots of a page, newest first.
// Trashed pages keep their history readable (the trash UI links into it).
func (s *PageHistoryService) ListPageHistory(ctx context.Context, workspaceID, actorID string, req *domain.PageHistoryRequest, p domain.Pagination) (*domain.PageHistoryListResponse, error) {
	page, err := s.pageRepo.FindByID(ctx, req.PageID, repo.FindPageOpts{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	if page.WorkspaceID != workspaceID {
		return nil, ErrPageNotFound
	}

	if err := s.requireRead(ctx, actorID, page.SpaceID); err != nil {
		return nil, err
	}

	p.Normalize()
	entries, nextCursor, err := s.historyRepo.ListByPageID(ctx, page.ID, p)
	if err != nil {
		return nil, fmt.Errorf("list page history: %w", err)
	}

	response := &domain.PageHistoryListResponse{Data: entries}
	response.Meta.HasNextPage = nextCursor != ""
	if nextCursor != "" {
		response.Meta.NextCursor = &nextCursor
	}
	return response, nil
}

// GetPageHistoryInfo fetches a single snapshot, content included. The grant
// is checked against the snapshot's own space: history follows the page even
// after the page migrates elsewhere.
func (s *PageHistoryService) GetPageHistoryInfo(ctx context.Context, workspaceID, actorID string, req *domain.PageHistoryInfoRequest) (*domain.PageHistory, error) {
	history, err := s.historyRepo.FindByID(ctx, req.HistoryID)
	if err != nil {
		return nil, err
	}
	if history.WorkspaceID != workspaceID {
		return nil, ErrPageHistoryNotFound
	}

	if err := s.requireRead(ctx, actorID, history.SpaceID); err != nil {
		return nil, err
	}

	return history, nil
}

func (s *PageHistoryService) requireRead(ctx context.Context, actorID, spaceID string) error {
	role, err := s.spaceRepo.GetMemberRole(ctx, actorID, spaceID)
	if err != nil {
		if errors.Is(err, repo.ErrSpaceMemberNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("get member role: %w", err)
	}
	if domain.GrantFor(role).Cannot(domain.ActionRead, domain.SubjectPage) {
		return ErrUnauthorized
	}
	return nil
}
