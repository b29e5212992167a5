package service

import (
	"context"
	"errors"
	"fmt"

	"docspace-api/internal/domain"
	"docspace-api/internal/observability/logger"
	"docspace-api/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrOriginNotFound: create-time failure, the requested origin id does
	// not resolve to a live page.
	ErrOriginNotFound = errors.New("origin page not found")

	// ErrOriginMissing: read/write-time failure, a reference page points at
	// an origin that no longer exists. Signals data corruption; surfaced,
	// never silently defaulted.
	ErrOriginMissing = errors.New("origin page missing for synced page")

	// ErrInvalidSyncTarget: the requested placement would make the reference
	// an immediate sibling duplicate of its origin, or the origin is itself
	// a reference (no transitive indirection).
	ErrInvalidSyncTarget = errors.New("invalid sync target")
)

// SyncedPageService é o resolver de indireção: toda leitura/escrita numa
// página synced passa por aqui para que o conteúdo sempre reflita a origin.
// Resolução é lazy (no momento do acesso) - edições na origin ficam visíveis
// através de todas as references sem etapa de propagação.
type SyncedPageService struct {
	pageRepo   *repo.PageRepository
	syncedRepo *repo.SyncedPageRepository
	log        *logger.Logger
}

func NewSyncedPageService(pageRepo *repo.PageRepository, syncedRepo *repo.SyncedPageRepository, log *logger.Logger) *SyncedPageService {
	return &SyncedPageService{
		pageRepo:   pageRepo,
		syncedRepo: syncedRepo,
		log:        log,
	}
}

// FindByReferenceID exposes the raw binding for a reference page.
func (s *SyncedPageService) FindByReferenceID(ctx context.Context, referencePageID string) (*domain.SyncedPage, error) {
	return s.syncedRepo.FindByReferenceID(ctx, referencePageID)
}

// ResolveForRead overlays the origin's content, title and icon onto the
// reference's placement identity. Non-synced pages pass through untouched.
// A dangling binding or missing origin fails with ErrOriginMissing.
func (s *SyncedPageService) ResolveForRead(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	if !page.IsSynced {
		return page, nil
	}

	binding, err := s.syncedRepo.FindByReferenceID(ctx, page.ID)
	if err != nil {
		if errors.Is(err, repo.ErrSyncedPageNotFound) {
			s.log.Error(ctx, "synced page has no binding",
				logger.Module("sync"),
				logger.Action("resolve_read"),
				zap.String("reference_page_id", page.ID),
			)
			return nil, ErrOriginMissing
		}
		return nil, fmt.Errorf("find sync binding: %w", err)
	}

	origin, err := s.pageRepo.FindByID(ctx, binding.OriginPageID, repo.FindPageOpts{IncludeContent: true})
	if err != nil {
		if errors.Is(err, repo.ErrPageNotFound) {
			s.log.Error(ctx, "synced page origin missing",
				logger.Module("sync"),
				logger.Action("resolve_read"),
				zap.String("reference_page_id", page.ID),
				zap.String("origin_page_id", binding.OriginPageID),
			)
			return nil, ErrOriginMissing
		}
		return nil, fmt.Errorf("find origin page: %w", err)
	}

	page.ApplyOrigin(origin)
	return page, nil
}

// ResolveForWrite redirects a content mutation to the origin page. Content
// writes never touch the reference row.
func (s *SyncedPageService) ResolveForWrite(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	if !page.IsSynced {
		return page, nil
	}

	binding, err := s.syncedRepo.FindByReferenceID(ctx, page.ID)
	if err != nil {
		if errors.Is(err, repo.ErrSyncedPageNotFound) {
			return nil, ErrOriginMissing
		}
		return nil, fmt.Errorf("find sync binding: %w", err)
	}

	origin, err := s.pageRepo.FindByID(ctx, binding.OriginPageID, repo.FindPageOpts{IncludeContent: true})
	if err != nil {
		if errors.Is(err, repo.ErrPageNotFound) {
			return nil, ErrOriginMissing
		}
		return nil, fmt.Errorf("find origin page: %w", err)
	}

	return origin, nil
}

// Create validates and creates a reference page bound to an existing origin.
//
// Invariantes:
//   - a origin existe e não é ela mesma uma reference (sem cadeias sync->sync)
//   - o parent desejado difere do parent atual da origin quando ambas ficam
//     no mesmo espaço (sem duplicata irmã adjacente)
func (s *SyncedPageService) Create(ctx context.Context, req *domain.CreateSyncPageRequest, actorID, workspaceID string) (*domain.Page, error) {
	origin, err := s.pageRepo.FindByID(ctx, req.OriginPageID, repo.FindPageOpts{})
	if err != nil {
		if errors.Is(err, repo.ErrPageNotFound) {
			return nil, ErrOriginNotFound
		}
		return nil, fmt.Errorf("find origin page: %w", err)
	}

	if origin.IsSynced {
		return nil, ErrInvalidSyncTarget
	}

	if req.SpaceID == origin.SpaceID && equalParent(req.ParentPageID, origin.ParentPageID) {
		return nil, ErrInvalidSyncTarget
	}

	reference := &domain.Page{
		ID:           uuid.NewString(),
		SlugID:       generateSlugID(),
		SpaceID:      req.SpaceID,
		WorkspaceID:  workspaceID,
		ParentPageID: req.ParentPageID,
		CreatorID:    actorID,
		Contributors: []string{actorID},
		IsSynced:     true,
	}

	tx, err := s.pageRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	maxPos, err := s.pageRepo.MaxSiblingPosition(ctx, tx, req.SpaceID, req.ParentPageID)
	if err != nil {
		return nil, fmt.Errorf("get max sibling position: %w", err)
	}
	reference.Position = positionAfter(maxPos)

	if err := s.pageRepo.Insert(ctx, tx, reference); err != nil {
		return nil, err
	}

	binding := &domain.SyncedPage{
		ReferencePageID: reference.ID,
		OriginPageID:    origin.ID,
		OriginSpaceID:   origin.SpaceID,
	}
	if err := s.syncedRepo.Insert(ctx, tx, binding); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.log.Info(ctx, "sync page created",
		logger.Module("sync"),
		logger.Action("create"),
		zap.String("reference_page_id", reference.ID),
		zap.String("origin_page_id", origin.ID),
		zap.String("space_id", req.SpaceID),
	)

	return reference, nil
}

// equalParent compara parent ids NULL-safe.
func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
