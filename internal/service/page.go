package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"docspace-api/internal/domain"
	"docspace-api/internal/integrations/search"
	"docspace-api/internal/observability/logger"
	"docspace-api/internal/repo"
	"docspace-api/internal/telemetry"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("user not authorized for this action")

	ErrPageNotFound  = repo.ErrPageNotFound
	ErrSpaceNotFound = repo.ErrSpaceNotFound

	// ErrInvalidParent: create with a parent that is trashed or lives in
	// another space.
	ErrInvalidParent = errors.New("parent page is not a valid attachment point")

	// ErrInvalidMove: the move would create a cycle or cross a space boundary.
	ErrInvalidMove = errors.New("cannot move a page into its own descendant")

	// ErrAlreadyInSpace: cross-space transfer where source equals destination.
	ErrAlreadyInSpace = errors.New("page already belongs to this space")

	// ErrConflict: a structural mutation kept losing to concurrent writers on
	// the same subtree after bounded retries.
	ErrConflict = errors.New("concurrent modification of the same subtree")
)

// txRetryAttempts limita os retries transparentes de uma mutação estrutural
// que perde para escritores concorrentes. O retry é sempre da operação
// inteira, nunca parcial.
const txRetryAttempts = 3

// PageService orquestra a hierarquia de páginas: criação, edição, lixeira,
// moves intra e cross-space, cópias e listagens. Toda mutação recomputa o
// capability grant no momento da escrita (nunca cacheado de uma chamada
// anterior) e toda página synced passa pelo resolver antes de ler ou
// escrever conteúdo.
type PageService struct {
	pageRepo    *repo.PageRepository
	syncedRepo  *repo.SyncedPageRepository
	spaceRepo   *repo.SpaceRepository
	historyRepo *repo.PageHistoryRepository
	auditRepo   *repo.AuditRepo
	resolver    *SyncedPageService
	indexer     *search.IndexerClient
	log         *logger.Logger
}

func NewPageService(
	pageRepo *repo.PageRepository,
	syncedRepo *repo.SyncedPageRepository,
	spaceRepo *repo.SpaceRepository,
	historyRepo *repo.PageHistoryRepository,
	auditRepo *repo.AuditRepo,
	resolver *SyncedPageService,
	indexer *search.IndexerClient,
	log *logger.Logger,
) *PageService {
	return &PageService{
		pageRepo:    pageRepo,
		syncedRepo:  syncedRepo,
		spaceRepo:   spaceRepo,
		historyRepo: historyRepo,
		auditRepo:   auditRepo,
		resolver:    resolver,
		indexer:     indexer,
		log:         log,
	}
}

// generateSlugID cria o identificador curto URL-safe, estável entre renames.
func generateSlugID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b))[:12]
}

// grantFor computes the requesting user's capability grant in a space.
// Absent membership yields the deny-everything grant rather than an error:
// the caller's capability check then fails generically, which keeps space
// membership unenumerable.
func (s *PageService) grantFor(ctx context.Context, actorID, spaceID string) (domain.CapabilityGrant, error) {
	role, err := s.spaceRepo.GetMemberRole(ctx, actorID, spaceID)
	if err != nil {
		if errors.Is(err, repo.ErrSpaceMemberNotFound) {
			return domain.NoGrant(), nil
		}
		s.log.Error(ctx, "failed to get member role",
			logger.Module("page"),
			logger.Action("authorization"),
			zap.String("actor_id", actorID),
			zap.String("space_id", spaceID),
			zap.Error(err),
		)
		return domain.NoGrant(), fmt.Errorf("get member role: %w", err)
	}
	return domain.GrantFor(role), nil
}

// isSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure, the one class eligible for whole-operation retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// withTxRetry runs fn up to txRetryAttempts times, retrying only on
// serialization/deadlock failures. Any other error propagates unchanged.
func (s *PageService) withTxRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= txRetryAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		s.log.Warn(ctx, "structural mutation lost to concurrent writer, retrying",
			logger.Module("page"),
			logger.Action(op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return fmt.Errorf("%s: %w", op, ErrConflict)
}

// findInWorkspace busca uma página e aplica o isolamento de workspace:
// páginas de outro workspace respondem como inexistentes.
func (s *PageService) findInWorkspace(ctx context.Context, workspaceID, pageID string, opts repo.FindPageOpts) (*domain.Page, error) {
	page, err := s.pageRepo.FindByID(ctx, pageID, opts)
	if err != nil {
		return nil, err
	}
	if page.WorkspaceID != workspaceID {
		return nil, ErrPageNotFound
	}
	return page, nil
}

// GetPage fetches a single page with content, resolving sync indirection.
func (s *PageService) GetPage(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) (*domain.Page, error) {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{IncludeContent: true})
	if err != nil {
		return nil, err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return nil, err
	}
	if grant.Cannot(domain.ActionRead, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	return s.resolver.ResolveForRead(ctx, page)
}

// CreatePage creates a new active page appended after the last sibling.
func (s *PageService) CreatePage(ctx context.Context, workspaceID, actorID string, req *domain.CreatePageRequest) (*domain.Page, error) {
	grant, err := s.grantFor(ctx, actorID, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if grant.Cannot(domain.ActionCreate, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	if req.ParentPageID != nil {
		parent, err := s.findInWorkspace(ctx, workspaceID, *req.ParentPageID, repo.FindPageOpts{})
		if err != nil {
			if errors.Is(err, ErrPageNotFound) {
				return nil, ErrInvalidParent
			}
			return nil, err
		}
		if parent.SpaceID != req.SpaceID {
			return nil, ErrInvalidParent
		}
	}

	maxPos, err := s.pageRepo.MaxSiblingPosition(ctx, nil, req.SpaceID, req.ParentPageID)
	if err != nil {
		return nil, fmt.Errorf("get max sibling position: %w", err)
	}

	page := &domain.Page{
		ID:           uuid.NewString(),
		SlugID:       generateSlugID(),
		SpaceID:      req.SpaceID,
		WorkspaceID:  workspaceID,
		ParentPageID: req.ParentPageID,
		Position:     positionAfter(maxPos),
		Title:        req.Title,
		Icon:         req.Icon,
		Content:      req.Content,
		CreatorID:    actorID,
		Contributors: []string{actorID},
	}

	if err := s.pageRepo.Insert(ctx, nil, page); err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "create", page.ID, nil)
	s.indexer.PageUpserted(ctx, workspaceID, page.SpaceID, page.ID)

	return page, nil
}

// UpdatePage applies a partial content update. Synced pages redirect the
// write to their origin; the reference row never receives content. Updates
// carrying content also record an immutable history snapshot.
func (s *PageService) UpdatePage(ctx context.Context, workspaceID, actorID string, req *domain.UpdatePageRequest) (*domain.Page, error) {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return nil, err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return nil, err
	}
	if grant.Cannot(domain.ActionEdit, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	target, err := s.resolver.ResolveForWrite(ctx, page)
	if err != nil {
		return nil, err
	}

	updated, err := s.pageRepo.Update(ctx, target.ID, req, actorID)
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}

	if req.HasContentChange() {
		snapshot := &domain.PageHistory{
			ID:            uuid.NewString(),
			PageID:        updated.ID,
			SpaceID:       updated.SpaceID,
			WorkspaceID:   updated.WorkspaceID,
			Title:         updated.Title,
			Icon:          updated.Icon,
			Content:       updated.Content,
			LastUpdatedBy: actorID,
		}
		if err := s.historyRepo.Insert(ctx, snapshot); err != nil {
			// o snapshot é best-effort; a edição em si já foi persistida
			s.log.Error(ctx, "failed to record history snapshot",
				logger.Module("page"),
				logger.Action("update"),
				zap.String("page_id", updated.ID),
				zap.Error(err),
			)
		}
	}

	s.audit(ctx, workspaceID, actorID, "update", updated.ID, nil)
	s.indexer.PageUpserted(ctx, workspaceID, updated.SpaceID, updated.ID)

	// a resposta mantém a identidade de placement da página pedida
	if page.IsSynced {
		page.ApplyOrigin(updated)
		return page, nil
	}
	return updated, nil
}

// RemovePage soft-trashes the page and its entire subtree atomically.
func (s *PageService) RemovePage(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) error {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return err
	}
	if grant.Cannot(domain.ActionManage, domain.SubjectPage) {
		return ErrUnauthorized
	}

	var removed []string
	err = s.withTxRetry(ctx, "remove", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		// lock na raiz serializa mutações estruturais concorrentes
		if _, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{}); err != nil {
			return err
		}

		ids, err := s.pageRepo.SubtreeIDs(ctx, tx, page.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.pageRepo.SetSubtreeDeleted(ctx, tx, ids, &now); err != nil {
			return err
		}

		removed = ids
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, workspaceID, actorID, "remove", page.ID, map[string]interface{}{
		"space_id":     page.SpaceID,
		"subtree_size": len(removed),
	})
	s.indexer.PagesRemoved(ctx, workspaceID, removed)
	return nil
}

// DeletePage permanently deletes the page and its subtree. When any node in
// the subtree is the origin of synced references, those reference pages are
// cascade-deleted in the same transaction so no dangling pointers survive a
// deliberate permanent delete.
func (s *PageService) DeletePage(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) error {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{IncludeDeleted: true})
	if err != nil {
		return err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return err
	}
	if grant.Cannot(domain.ActionManage, domain.SubjectPage) {
		return ErrUnauthorized
	}

	var deleted []string
	err = s.withTxRetry(ctx, "delete", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{IncludeDeleted: true}); err != nil {
			return err
		}

		ids, err := s.pageRepo.SubtreeIDs(ctx, tx, page.ID)
		if err != nil {
			return err
		}

		refs, err := s.syncedRepo.ReferenceIDsByOriginIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		ids = append(ids, refs...)

		if err := s.pageRepo.DeletePermanently(ctx, tx, ids); err != nil {
			return err
		}

		deleted = ids
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, workspaceID, actorID, "delete", page.ID, map[string]interface{}{
		"space_id":     page.SpaceID,
		"subtree_size": len(deleted),
	})
	s.indexer.PagesRemoved(ctx, workspaceID, deleted)
	return nil
}

// RestorePage clears the trash flag on the page and its subtree, preserving
// the pre-removal parent/child structure.
func (s *PageService) RestorePage(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) error {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{IncludeDeleted: true})
	if err != nil {
		return err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return err
	}
	if grant.Cannot(domain.ActionManage, domain.SubjectPage) {
		return ErrUnauthorized
	}

	err = s.withTxRetry(ctx, "restore", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{IncludeDeleted: true}); err != nil {
			return err
		}

		ids, err := s.pageRepo.SubtreeIDs(ctx, tx, page.ID)
		if err != nil {
			return err
		}

		if err := s.pageRepo.SetSubtreeDeleted(ctx, tx, ids, nil); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, workspaceID, actorID, "restore", page.ID, map[string]interface{}{
		"space_id": page.SpaceID,
	})
	s.indexer.PageUpserted(ctx, workspaceID, page.SpaceID, page.ID)
	return nil
}

// MovePage re-parents/reorders a page within its space. req.Position is a
// target index among the new siblings; it is translated into a fractional
// position key strictly between the new neighbours.
func (s *PageService) MovePage(ctx context.Context, workspaceID, actorID string, req *domain.MovePageRequest) error {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return err
	}

	grant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return err
	}
	if grant.Cannot(domain.ActionEdit, domain.SubjectPage) {
		return ErrUnauthorized
	}

	if req.ParentPageID != nil {
		if *req.ParentPageID == page.ID {
			return ErrInvalidMove
		}

		parent, err := s.findInWorkspace(ctx, workspaceID, *req.ParentPageID, repo.FindPageOpts{})
		if err != nil {
			if errors.Is(err, ErrPageNotFound) {
				return ErrInvalidMove
			}
			return err
		}
		if parent.SpaceID != page.SpaceID {
			return ErrInvalidMove
		}

		// mover para um descendente criaria um ciclo
		descendant, err := s.pageRepo.IsDescendant(ctx, nil, *req.ParentPageID, page.ID)
		if err != nil {
			return err
		}
		if descendant {
			return ErrInvalidMove
		}
	}

	err = s.withTxRetry(ctx, "move", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		locked, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{})
		if err != nil {
			return err
		}

		if req.ParentPageID != nil {
			// recheca sob lock: o check acima rodou fora da transação e
			// um move concorrente pode ter criado a aresta que fecha o ciclo
			parent, err := s.pageRepo.FindByIDTx(ctx, tx, *req.ParentPageID, repo.FindPageOpts{})
			if err != nil {
				if errors.Is(err, ErrPageNotFound) {
					return ErrInvalidMove
				}
				return err
			}
			if parent.SpaceID != locked.SpaceID {
				return ErrInvalidMove
			}

			descendant, err := s.pageRepo.IsDescendant(ctx, tx, *req.ParentPageID, page.ID)
			if err != nil {
				return err
			}
			if descendant {
				return ErrInvalidMove
			}
		}

		positions, err := s.pageRepo.SiblingPositions(ctx, tx, locked.SpaceID, req.ParentPageID, page.ID)
		if err != nil {
			return err
		}

		var pos float64
		if req.Position != nil {
			pos = positionAt(positions, *req.Position)
		} else if len(positions) > 0 {
			pos = positionAfter(positions[len(positions)-1])
		} else {
			pos = positionAfter(0)
		}

		if err := s.pageRepo.Move(ctx, tx, page.ID, req.ParentPageID, pos); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	meta := map[string]interface{}{"space_id": page.SpaceID}
	if req.ParentPageID != nil {
		meta["parent_page_id"] = *req.ParentPageID
	}
	s.audit(ctx, workspaceID, actorID, "move", page.ID, meta)
	s.indexer.PageUpserted(ctx, workspaceID, page.SpaceID, page.ID)
	return nil
}

// MovePageToSpace migrates the page and its entire subtree to another space.
// Requires Edit in both the source and the destination space, evaluated
// before any write begins: if either grant denies, nothing migrates.
func (s *PageService) MovePageToSpace(ctx context.Context, workspaceID, actorID string, req *domain.MovePageToSpaceRequest) (*domain.Page, error) {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return nil, err
	}

	if page.SpaceID == req.SpaceID {
		return nil, ErrAlreadyInSpace
	}

	sourceGrant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return nil, err
	}
	destGrant, err := s.grantFor(ctx, actorID, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if sourceGrant.Cannot(domain.ActionEdit, domain.SubjectPage) || destGrant.Cannot(domain.ActionEdit, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	if _, err := s.spaceRepo.Get(ctx, workspaceID, req.SpaceID); err != nil {
		return nil, err
	}

	if req.ParentPageID != nil {
		destParent, err := s.findInWorkspace(ctx, workspaceID, *req.ParentPageID, repo.FindPageOpts{})
		if err != nil {
			if errors.Is(err, ErrPageNotFound) {
				return nil, ErrInvalidMove
			}
			return nil, err
		}
		if destParent.SpaceID != req.SpaceID {
			return nil, ErrInvalidMove
		}
	}

	var migrated []string
	err = s.withTxRetry(ctx, "move_to_space", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{}); err != nil {
			return err
		}

		ids, err := s.pageRepo.SubtreeIDs(ctx, tx, page.ID)
		if err != nil {
			return err
		}

		maxPos, err := s.pageRepo.MaxSiblingPosition(ctx, tx, req.SpaceID, req.ParentPageID)
		if err != nil {
			return fmt.Errorf("get max sibling position: %w", err)
		}

		if err := s.pageRepo.MigrateSubtreeToSpace(ctx, tx, ids, page.ID, req.SpaceID, req.ParentPageID, positionAfter(maxPos)); err != nil {
			return err
		}

		// referências apontando para dentro da subárvore migrada continuam
		// válidas; só a coluna denormalizada precisa acompanhar
		if err := s.syncedRepo.UpdateOriginSpace(ctx, tx, ids, req.SpaceID); err != nil {
			return err
		}

		migrated = ids
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "move_to_space", page.ID, map[string]interface{}{
		"source_space_id":      page.SpaceID,
		"destination_space_id": req.SpaceID,
		"subtree_size":         len(migrated),
	})
	s.indexer.PageUpserted(ctx, workspaceID, req.SpaceID, page.ID)

	return s.pageRepo.FindByID(ctx, page.ID, repo.FindPageOpts{})
}

// CopyPageToSpace clones the subtree into another space with fresh ids and
// slugs; the acting user becomes creator of every clone. Synced pages in the
// subtree are decoupled: the clone materializes the origin's current content
// as standalone pages, avoiding surprise cross-space content coupling.
func (s *PageService) CopyPageToSpace(ctx context.Context, workspaceID, actorID string, req *domain.CopyPageToSpaceRequest) (*domain.Page, error) {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return nil, err
	}

	if page.SpaceID == req.SpaceID {
		return nil, ErrAlreadyInSpace
	}

	sourceGrant, err := s.grantFor(ctx, actorID, page.SpaceID)
	if err != nil {
		return nil, err
	}
	destGrant, err := s.grantFor(ctx, actorID, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if sourceGrant.Cannot(domain.ActionEdit, domain.SubjectPage) || destGrant.Cannot(domain.ActionEdit, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	if _, err := s.spaceRepo.Get(ctx, workspaceID, req.SpaceID); err != nil {
		return nil, err
	}

	var (
		clonedRootID string
		clonedCount  int
	)
	err = s.withTxRetry(ctx, "copy_to_space", func(ctx context.Context) error {
		tx, err := s.pageRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := s.pageRepo.FindByIDTx(ctx, tx, page.ID, repo.FindPageOpts{}); err != nil {
			return err
		}

		ids, err := s.pageRepo.SubtreeIDs(ctx, tx, page.ID)
		if err != nil {
			return err
		}

		rows, err := s.pageRepo.FindSubtreePages(ctx, tx, ids)
		if err != nil {
			return err
		}

		byID := make(map[string]domain.Page, len(rows))
		for _, row := range rows {
			byID[row.ID] = row
		}

		idMap := make(map[string]string, len(ids))
		for _, id := range ids {
			idMap[id] = uuid.NewString()
		}

		maxPos, err := s.pageRepo.MaxSiblingPosition(ctx, tx, req.SpaceID, nil)
		if err != nil {
			return fmt.Errorf("get max sibling position: %w", err)
		}

		// ids está em ordem de worklist (pais antes de filhos), então cada
		// clone só referencia um pai já inserido
		inserted := 0
		for _, id := range ids {
			src, ok := byID[id]
			if !ok {
				continue
			}

			clone := src
			clone.ID = idMap[id]
			clone.SlugID = generateSlugID()
			clone.SpaceID = req.SpaceID
			clone.CreatorID = actorID
			clone.LastUpdatedBy = nil
			clone.Contributors = []string{actorID}
			clone.CreatedAt = time.Time{}
			clone.DeletedAt = nil

			if id == page.ID {
				clone.ParentPageID = nil
				clone.Position = positionAfter(maxPos)
			} else if src.ParentPageID != nil {
				mapped := idMap[*src.ParentPageID]
				clone.ParentPageID = &mapped
			}

			if src.IsSynced {
				// decoupling: materializa o conteúdo corrente da origin e o
				// clone segue vida própria
				resolved := src
				if _, err := s.resolver.ResolveForRead(ctx, &resolved); err != nil {
					if errors.Is(err, ErrOriginMissing) {
						continue
					}
					return err
				}
				clone.Title = resolved.Title
				clone.Icon = resolved.Icon
				clone.Content = resolved.Content
				clone.IsSynced = false
			}

			if err := s.pageRepo.Insert(ctx, tx, &clone); err != nil {
				return err
			}
			inserted++
		}

		clonedRootID = idMap[page.ID]
		clonedCount = inserted
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "copy_to_space", page.ID, map[string]interface{}{
		"source_space_id":      page.SpaceID,
		"destination_space_id": req.SpaceID,
		"subtree_size":         clonedCount,
	})
	s.indexer.PageUpserted(ctx, workspaceID, req.SpaceID, clonedRootID)

	return s.pageRepo.FindByID(ctx, clonedRootID, repo.FindPageOpts{})
}

// CreateSyncPage creates a reference page bound to an existing origin.
// Requires Create in the destination space and Read in the origin's space:
// a reference exposes the origin's content wherever it is placed.
func (s *PageService) CreateSyncPage(ctx context.Context, workspaceID, actorID string, req *domain.CreateSyncPageRequest) (*domain.Page, error) {
	grant, err := s.grantFor(ctx, actorID, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if grant.Cannot(domain.ActionCreate, domain.SubjectPage) {
		return nil, ErrUnauthorized
	}

	origin, err := s.findInWorkspace(ctx, workspaceID, req.OriginPageID, repo.FindPageOpts{})
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			return nil, ErrOriginNotFound
		}
		return nil, err
	}

	originGrant, err := s.grantFor(ctx, actorID, origin.SpaceID)
	if err != nil {
		return nil, err
	}
	if originGrant.Cannot(domain.ActionRead, domain.SubjectPage) {
		// origem ilegível responde como inexistente (anti-enumeração)
		return nil, ErrOriginNotFound
	}

	if req.ParentPageID != nil {
		parent, err := s.findInWorkspace(ctx, workspaceID, *req.ParentPageID, repo.FindPageOpts{})
		if err != nil {
			if errors.Is(err, ErrPageNotFound) {
				return nil, ErrInvalidParent
			}
			return nil, err
		}
		if parent.SpaceID != req.SpaceID {
			return nil, ErrInvalidParent
		}
	}

	reference, err := s.resolver.Create(ctx, req, actorID, workspaceID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "sync_page", reference.ID, map[string]interface{}{
		"origin_page_id": req.OriginPageID,
	})
	s.indexer.PageUpserted(ctx, workspaceID, reference.SpaceID, reference.ID)

	return s.resolver.ResolveForRead(ctx, reference)
}

// GetSidebarPages lists the direct children of a page (or the space roots)
// for the navigation sidebar, sync-resolved titles/icons included.
func (s *PageService) GetSidebarPages(ctx context.Context, workspaceID, actorID string, req *domain.SidebarPagesRequest, p domain.Pagination) (*domain.PageListResponse, error) {
	if err := s.requireRead(ctx, actorID, req.SpaceID); err != nil {
		return nil, err
	}

	if req.PageID != nil {
		parent, err := s.findInWorkspace(ctx, workspaceID, *req.PageID, repo.FindPageOpts{})
		if err != nil {
			return nil, err
		}
		// expandir um nó de outro espaço contorna o grant checado acima
		if parent.SpaceID != req.SpaceID {
			return nil, ErrUnauthorized
		}
	}

	p.Normalize()
	pages, nextCursor, err := s.pageRepo.ListSidebar(ctx, req.SpaceID, req.PageID, p)
	if err != nil {
		return nil, fmt.Errorf("list sidebar pages: %w", err)
	}

	return s.buildListResponse(ctx, pages, nextCursor), nil
}

// GetPagesInSpace lists the live pages of a space.
func (s *PageService) GetPagesInSpace(ctx context.Context, workspaceID, actorID, spaceID string, p domain.Pagination) (*domain.PageListResponse, error) {
	if err := s.requireRead(ctx, actorID, spaceID); err != nil {
		return nil, err
	}

	p.Normalize()
	pages, nextCursor, err := s.pageRepo.ListInSpace(ctx, spaceID, p)
	if err != nil {
		return nil, fmt.Errorf("list pages in space: %w", err)
	}

	return s.buildListResponse(ctx, pages, nextCursor), nil
}

// GetRecentPages lists recently updated pages. With a space id: recent pages
// in that space. Without: pages the user contributed to across every space
// they can read.
func (s *PageService) GetRecentPages(ctx context.Context, workspaceID, actorID string, req *domain.RecentPagesRequest, p domain.Pagination) (*domain.PageListResponse, error) {
	p.Normalize()

	var (
		pages      []domain.Page
		nextCursor string
		err        error
	)
	if req.SpaceID != nil {
		if err := s.requireRead(ctx, actorID, *req.SpaceID); err != nil {
			return nil, err
		}
		pages, nextCursor, err = s.pageRepo.ListRecentInSpace(ctx, *req.SpaceID, p)
	} else {
		spaceIDs, serr := s.spaceRepo.ReadableSpaceIDs(ctx, actorID, workspaceID)
		if serr != nil {
			return nil, fmt.Errorf("list readable spaces: %w", serr)
		}
		pages, nextCursor, err = s.pageRepo.ListRecentForUser(ctx, actorID, spaceIDs, p)
	}
	if err != nil {
		return nil, fmt.Errorf("list recent pages: %w", err)
	}

	return s.buildListResponse(ctx, pages, nextCursor), nil
}

// GetDeletedPages lists the trash of a space.
func (s *PageService) GetDeletedPages(ctx context.Context, workspaceID, actorID string, req *domain.DeletedPagesRequest, p domain.Pagination) (*domain.PageListResponse, error) {
	if err := s.requireRead(ctx, actorID, req.SpaceID); err != nil {
		return nil, err
	}

	p.Normalize()
	pages, nextCursor, err := s.pageRepo.ListDeleted(ctx, req.SpaceID, p)
	if err != nil {
		return nil, fmt.Errorf("list deleted pages: %w", err)
	}

	return s.buildListResponse(ctx, pages, nextCursor), nil
}

// GetBreadcrumbs returns the ancestor chain of a page, root-first.
func (s *PageService) GetBreadcrumbs(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) ([]domain.Page, error) {
	page, err := s.findInWorkspace(ctx, workspaceID, req.PageID, repo.FindPageOpts{})
	if err != nil {
		return nil, err
	}

	if err := s.requireRead(ctx, actorID, page.SpaceID); err != nil {
		return nil, err
	}

	chain, err := s.pageRepo.Breadcrumbs(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("get breadcrumbs: %w", err)
	}

	return s.resolveRows(ctx, chain), nil
}

// requireRead recomputa o grant e exige leitura de páginas no espaço.
func (s *PageService) requireRead(ctx context.Context, actorID, spaceID string) error {
	grant, err := s.grantFor(ctx, actorID, spaceID)
	if err != nil {
		return err
	}
	if grant.Cannot(domain.ActionRead, domain.SubjectPage) {
		return ErrUnauthorized
	}
	return nil
}

// resolveRows passes synced rows through the resolver. Each row fails closed
// individually: a dangling reference is skipped (and logged) rather than
// crashing the whole listing.
func (s *PageService) resolveRows(ctx context.Context, pages []domain.Page) []domain.Page {
	out := make([]domain.Page, 0, len(pages))
	for i := range pages {
		if !pages[i].IsSynced {
			out = append(out, pages[i])
			continue
		}

		resolved, err := s.resolver.ResolveForRead(ctx, &pages[i])
		if err != nil {
			if errors.Is(err, ErrOriginMissing) {
				continue
			}
			s.log.Error(ctx, "failed to resolve synced row",
				logger.Module("page"),
				logger.Action("resolve_listing"),
				zap.String("page_id", pages[i].ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, *resolved)
	}
	return out
}

func (s *PageService) buildListResponse(ctx context.Context, pages []domain.Page, nextCursor string) *domain.PageListResponse {
	response := &domain.PageListResponse{
		Data: s.resolveRows(ctx, pages),
	}
	response.Meta.HasNextPage = nextCursor != ""
	if nextCursor != "" {
		response.Meta.NextCursor = &nextCursor
	}
	return response
}

// audit registra a mutação no audit log e incrementa o contador da
// operação. Best-effort: falha de auditoria não falha a operação. Operações
// estruturais anexam metadata (espaços de origem/destino, tamanho da
// subárvore afetada).
func (s *PageService) audit(ctx context.Context, workspaceID, actorID, action, pageID string, meta map[string]interface{}) {
	telemetry.PageOperations.WithLabelValues(action).Inc()

	id := pageID
	if err := s.auditRepo.LogAction(ctx, workspaceID, actorID, action, "page", &id, meta, "", ""); err != nil {
		s.log.Warn(ctx, "failed to write audit entry",
			logger.Module("page"),
			logger.Action(action),
			zap.Error(err),
		)
	}
}
