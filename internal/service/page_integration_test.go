package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"docspace-api/internal/database"
	"docspace-api/internal/domain"
	"docspace-api/internal/integrations/search"
	"docspace-api/internal/observability/logger"
	"docspace-api/internal/repo"
	"docspace-api/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests for the page hierarchy service against a real database.
//
// Prerequisites:
//   - DATABASE_URL environment variable must be set
//   - Migrations must be applied (docspace-api migrate up)
//
// Run with: go test -v ./internal/service -run Integration

const (
	intWorkspaceID = "ws-int-pages"

	intSpaceEng  = "space-int-eng"
	intSpaceDocs = "space-int-docs"

	// membro dos dois espaços
	intUserOwner  = "user-int-owner"
	intUserMember = "user-int-member"
	intUserGuest  = "user-int-guest"

	// membro apenas do espaço eng
	intUserEngOnly = "user-int-eng-only"
)

type pageTestEnv struct {
	pool     *pgxpool.Pool
	pages    *service.PageService
	history  *service.PageHistoryService
	resolver *service.SyncedPageService
	pageRepo *repo.PageRepository
}

func setupPageEnv(t *testing.T) *pageTestEnv {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := database.NewPool(ctx, databaseURL)
	require.NoError(t, err, "failed to connect to database")

	log, err := logger.New("docspace-api-test", "error")
	require.NoError(t, err)

	pageRepo := repo.NewPageRepository(pool)
	syncedRepo := repo.NewSyncedPageRepository(pool)
	spaceRepo := repo.NewSpaceRepository(pool)
	historyRepo := repo.NewPageHistoryRepository(pool)
	auditRepo := repo.NewAuditRepo(pool)

	resolver := service.NewSyncedPageService(pageRepo, syncedRepo, log)
	indexer := search.NewIndexerClient("") // desabilitado nos testes
	pages := service.NewPageService(pageRepo, syncedRepo, spaceRepo, historyRepo, auditRepo, resolver, indexer, log)
	history := service.NewPageHistoryService(historyRepo, pageRepo, spaceRepo)

	cleanup := func() {
		_, _ = pool.Exec(ctx, `DELETE FROM pages WHERE workspace_id = $1`, intWorkspaceID)
		_, _ = pool.Exec(ctx, `DELETE FROM spaces WHERE workspace_id = $1`, intWorkspaceID)
		_, _ = pool.Exec(ctx, `DELETE FROM audit_log WHERE workspace_id = $1`, intWorkspaceID)
	}
	cleanup()

	seedSpace := func(spaceID, slug string) {
		_, err := pool.Exec(ctx,
			`INSERT INTO spaces (id, workspace_id, name, slug, creator_id) VALUES ($1, $2, $3, $4, $5)`,
			spaceID, intWorkspaceID, slug, slug, intUserOwner)
		require.NoError(t, err)
	}
	seedMember := func(spaceID, userID string, role domain.SpaceRole) {
		_, err := pool.Exec(ctx,
			`INSERT INTO space_members (space_id, user_id, role) VALUES ($1, $2, $3)`,
			spaceID, userID, role.String())
		require.NoError(t, err)
	}

	seedSpace(intSpaceEng, "engineering")
	seedSpace(intSpaceDocs, "documentation")

	seedMember(intSpaceEng, intUserOwner, domain.SpaceRoleOwner)
	seedMember(intSpaceEng, intUserMember, domain.SpaceRoleMember)
	seedMember(intSpaceEng, intUserGuest, domain.SpaceRoleGuest)
	seedMember(intSpaceEng, intUserEngOnly, domain.SpaceRoleMember)

	seedMember(intSpaceDocs, intUserOwner, domain.SpaceRoleOwner)
	seedMember(intSpaceDocs, intUserMember, domain.SpaceRoleMember)
	seedMember(intSpaceDocs, intUserGuest, domain.SpaceRoleGuest)

	t.Cleanup(func() {
		cleanup()
		pool.Close()
	})

	return &pageTestEnv{
		pool:     pool,
		pages:    pages,
		history:  history,
		resolver: resolver,
		pageRepo: pageRepo,
	}
}

func (env *pageTestEnv) mustCreate(t *testing.T, actorID, spaceID string, parentID *string, title string) *domain.Page {
	t.Helper()
	page, err := env.pages.CreatePage(context.Background(), intWorkspaceID, actorID, &domain.CreatePageRequest{
		SpaceID:      spaceID,
		ParentPageID: parentID,
		Title:        title,
	})
	require.NoError(t, err)
	return page
}

func TestPageService_RemoveRestoreRoundTrip_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	parent := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Parent")
	child := env.mustCreate(t, intUserOwner, intSpaceEng, &parent.ID, "Child")

	// trash: a subárvore inteira some das leituras normais
	err := env.pages.RemovePage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: parent.ID})
	require.NoError(t, err)

	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: parent.ID})
	assert.ErrorIs(t, err, service.ErrPageNotFound)
	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: child.ID})
	assert.ErrorIs(t, err, service.ErrPageNotFound)

	trashedChild, err := env.pageRepo.FindByID(ctx, child.ID, repo.FindPageOpts{IncludeDeleted: true})
	require.NoError(t, err)
	assert.True(t, trashedChild.IsTrashed())

	// restore: estrutura preservada
	err = env.pages.RestorePage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: parent.ID})
	require.NoError(t, err)

	restoredChild, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: child.ID})
	require.NoError(t, err)
	assert.False(t, restoredChild.IsTrashed())
	require.NotNil(t, restoredChild.ParentPageID)
	assert.Equal(t, parent.ID, *restoredChild.ParentPageID)
}

func TestPageService_MoveRejectsCycles_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	a := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "A")
	b := env.mustCreate(t, intUserOwner, intSpaceEng, &a.ID, "B")

	// mover A para baixo do próprio descendente criaria um ciclo
	err := env.pages.MovePage(ctx, intWorkspaceID, intUserOwner, &domain.MovePageRequest{
		PageID:       a.ID,
		ParentPageID: &b.ID,
	})
	assert.ErrorIs(t, err, service.ErrInvalidMove)

	// self-parenting
	err = env.pages.MovePage(ctx, intWorkspaceID, intUserOwner, &domain.MovePageRequest{
		PageID:       a.ID,
		ParentPageID: &a.ID,
	})
	assert.ErrorIs(t, err, service.ErrInvalidMove)

	// reparent válido continua funcionando
	c := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "C")
	zero := 0
	err = env.pages.MovePage(ctx, intWorkspaceID, intUserOwner, &domain.MovePageRequest{
		PageID:       c.ID,
		ParentPageID: &a.ID,
		Position:     &zero,
	})
	require.NoError(t, err)

	moved, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: c.ID})
	require.NoError(t, err)
	require.NotNil(t, moved.ParentPageID)
	assert.Equal(t, a.ID, *moved.ParentPageID)
	// position 0 = antes do irmão existente
	assert.Less(t, moved.Position, b.Position)
}

func TestPageService_SyncedPage_ReadAfterWrite_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	origin, err := env.pages.CreatePage(ctx, intWorkspaceID, intUserOwner, &domain.CreatePageRequest{
		SpaceID: intSpaceEng,
		Title:   "Runbook",
		Content: json.RawMessage(`{"type":"doc","version":1}`),
	})
	require.NoError(t, err)

	ref, err := env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin.ID,
		SpaceID:      intSpaceDocs,
	})
	require.NoError(t, err)
	assert.True(t, ref.IsSynced)
	assert.Equal(t, intSpaceDocs, ref.SpaceID)
	assert.Equal(t, "Runbook", ref.Title, "read resolves through the origin")
	assert.NotEqual(t, origin.ID, ref.ID)

	// escrever através da reference atualiza a origin
	newContent := json.RawMessage(`{"type":"doc","version":2}`)
	updated, err := env.pages.UpdatePage(ctx, intWorkspaceID, intUserOwner, &domain.UpdatePageRequest{
		PageID:  ref.ID,
		Content: newContent,
	})
	require.NoError(t, err)
	assert.Equal(t, ref.ID, updated.ID, "response keeps the reference's identity")
	assert.JSONEq(t, string(newContent), string(updated.Content))

	gotOrigin, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: origin.ID})
	require.NoError(t, err)
	assert.JSONEq(t, string(newContent), string(gotOrigin.Content))

	gotRef, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: ref.ID})
	require.NoError(t, err)
	assert.JSONEq(t, string(newContent), string(gotRef.Content))

	// o snapshot de histórico é gravado contra a origin (dona do conteúdo)
	historyList, err := env.history.ListPageHistory(ctx, intWorkspaceID, intUserOwner,
		&domain.PageHistoryRequest{PageID: origin.ID}, domain.Pagination{})
	require.NoError(t, err)
	assert.NotEmpty(t, historyList.Data)

	// reference ao lado da origin (mesmo espaço, mesmo parent) é rejeitada
	_, err = env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin.ID,
		SpaceID:      intSpaceEng,
	})
	assert.ErrorIs(t, err, service.ErrInvalidSyncTarget)

	// sync de uma página já synced também
	_, err = env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: ref.ID,
		SpaceID:      intSpaceEng,
	})
	assert.ErrorIs(t, err, service.ErrInvalidSyncTarget)
}

func TestPageService_DanglingReference_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	origin := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Origin")
	ref, err := env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin.ID,
		SpaceID:      intSpaceDocs,
	})
	require.NoError(t, err)

	// delete permanente via service cascateia as references junto
	err = env.pages.DeletePage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: origin.ID})
	require.NoError(t, err)

	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: ref.ID})
	assert.ErrorIs(t, err, service.ErrPageNotFound)

	// binding removido fora do service deixa a reference dangling
	origin2 := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Origin2")
	ref2, err := env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin2.ID,
		SpaceID:      intSpaceDocs,
	})
	require.NoError(t, err)

	_, err = env.pool.Exec(ctx, `DELETE FROM synced_pages WHERE reference_page_id = $1`, ref2.ID)
	require.NoError(t, err)

	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: ref2.ID})
	assert.ErrorIs(t, err, service.ErrOriginMissing)
}

func TestPageService_GrantEnforcement_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	page := env.mustCreate(t, intUserMember, intSpaceEng, nil, "Member Page")

	// guest lê mas não cria
	got, err := env.pages.GetPage(ctx, intWorkspaceID, intUserGuest, &domain.PageIDRequest{PageID: page.ID})
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)

	_, err = env.pages.CreatePage(ctx, intWorkspaceID, intUserGuest, &domain.CreatePageRequest{
		SpaceID: intSpaceEng,
		Title:   "Nope",
	})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	// member edita mas não gerencia a lixeira
	err = env.pages.RemovePage(ctx, intWorkspaceID, intUserMember, &domain.PageIDRequest{PageID: page.ID})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	err = env.pages.DeletePage(ctx, intWorkspaceID, intUserMember, &domain.PageIDRequest{PageID: page.ID})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	// não-membro recebe o mesmo erro genérico de autorização
	docsPage := env.mustCreate(t, intUserOwner, intSpaceDocs, nil, "Docs Page")
	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserEngOnly, &domain.PageIDRequest{PageID: docsPage.ID})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestPageService_CopyToSpace_DualGrant_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	root := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Handbook")
	env.mustCreate(t, intUserOwner, intSpaceEng, &root.ID, "Chapter 1")

	// edit na origem sem grant no destino: nada é criado
	_, err := env.pages.CopyPageToSpace(ctx, intWorkspaceID, intUserEngOnly, &domain.CopyPageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceDocs,
	})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	before, err := env.pages.GetPagesInSpace(ctx, intWorkspaceID, intUserOwner, intSpaceDocs, domain.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, before.Data, "failed copy must not leave partial pages behind")

	// copy mesma-space é rejeitado
	_, err = env.pages.CopyPageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.CopyPageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceEng,
	})
	assert.ErrorIs(t, err, service.ErrAlreadyInSpace)

	// com os dois grants a subárvore inteira é clonada
	copied, err := env.pages.CopyPageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.CopyPageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceDocs,
	})
	require.NoError(t, err)
	assert.NotEqual(t, root.ID, copied.ID)
	assert.Equal(t, intSpaceDocs, copied.SpaceID)
	assert.Equal(t, "Handbook", copied.Title)
	assert.Nil(t, copied.ParentPageID)

	after, err := env.pages.GetPagesInSpace(ctx, intWorkspaceID, intUserOwner, intSpaceDocs, domain.Pagination{})
	require.NoError(t, err)
	assert.Len(t, after.Data, 2, "root and child cloned")

	// o original permanece intacto na origem
	_, err = env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: root.ID})
	require.NoError(t, err)
}

func TestPageService_MoveToSpace_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	root := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Migrating")
	child := env.mustCreate(t, intUserOwner, intSpaceEng, &root.ID, "Leaf")

	// same-space é rejeitado antes de qualquer escrita
	_, err := env.pages.MovePageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.MovePageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceEng,
	})
	assert.ErrorIs(t, err, service.ErrAlreadyInSpace)

	moved, err := env.pages.MovePageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.MovePageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceDocs,
	})
	require.NoError(t, err)
	assert.Equal(t, intSpaceDocs, moved.SpaceID)

	// a subárvore inteira migra junto
	movedChild, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: child.ID})
	require.NoError(t, err)
	assert.Equal(t, intSpaceDocs, movedChild.SpaceID)
	require.NotNil(t, movedChild.ParentPageID)
	assert.Equal(t, root.ID, *movedChild.ParentPageID)
}

func TestPageService_MoveToSpace_KeepsSyncBindings_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	origin := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Shared Notes")
	ref, err := env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin.ID,
		SpaceID:      intSpaceDocs,
	})
	require.NoError(t, err)

	// migrar a origin atualiza o espaço denormalizado do binding
	_, err = env.pages.MovePageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.MovePageToSpaceRequest{
		PageID:  origin.ID,
		SpaceID: intSpaceDocs,
	})
	require.NoError(t, err)

	binding, err := env.resolver.FindByReferenceID(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, intSpaceDocs, binding.OriginSpaceID)

	// e a reference continua resolvendo
	got, err := env.pages.GetPage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: ref.ID})
	require.NoError(t, err)
	assert.Equal(t, "Shared Notes", got.Title)
}

func TestPageService_Listings_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	root := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Index")
	for _, title := range []string{"One", "Two", "Three"} {
		env.mustCreate(t, intUserOwner, intSpaceEng, &root.ID, title)
	}

	// sidebar: filhos diretos ordenados por position
	sidebar, err := env.pages.GetSidebarPages(ctx, intWorkspaceID, intUserGuest,
		&domain.SidebarPagesRequest{SpaceID: intSpaceEng, PageID: &root.ID}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, sidebar.Data, 3)
	assert.Equal(t, "One", sidebar.Data[0].Title)
	assert.Equal(t, "Three", sidebar.Data[2].Title)

	// paginação: limit 2 tem próxima página
	firstPage, err := env.pages.GetSidebarPages(ctx, intWorkspaceID, intUserGuest,
		&domain.SidebarPagesRequest{SpaceID: intSpaceEng, PageID: &root.ID}, domain.Pagination{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, firstPage.Data, 2)
	assert.True(t, firstPage.Meta.HasNextPage)
	require.NotNil(t, firstPage.Meta.NextCursor)

	rest, err := env.pages.GetSidebarPages(ctx, intWorkspaceID, intUserGuest,
		&domain.SidebarPagesRequest{SpaceID: intSpaceEng, PageID: &root.ID},
		domain.Pagination{Limit: 2, Cursor: firstPage.Meta.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Data, 1)
	assert.False(t, rest.Meta.HasNextPage)

	// breadcrumbs: root-first, página pedida fora da cadeia
	leaf := env.mustCreate(t, intUserOwner, intSpaceEng, &sidebar.Data[0].ID, "Deep")
	chain, err := env.pages.GetBreadcrumbs(ctx, intWorkspaceID, intUserGuest, &domain.PageIDRequest{PageID: leaf.ID})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, sidebar.Data[0].ID, chain[1].ID)

	// lixeira lista apenas páginas removidas
	err = env.pages.RemovePage(ctx, intWorkspaceID, intUserOwner, &domain.PageIDRequest{PageID: leaf.ID})
	require.NoError(t, err)
	trash, err := env.pages.GetDeletedPages(ctx, intWorkspaceID, intUserOwner,
		&domain.DeletedPagesRequest{SpaceID: intSpaceEng}, domain.Pagination{})
	require.NoError(t, err)
	require.Len(t, trash.Data, 1)
	assert.Equal(t, leaf.ID, trash.Data[0].ID)
}

func TestPageService_ConcurrentReciprocalMoves_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	a := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Alpha")
	b := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Beta")

	// dois moves recíprocos disparados juntos: A vira filho de B enquanto
	// B vira filho de A; no máximo um pode commitar
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = env.pages.MovePage(ctx, intWorkspaceID, intUserOwner, &domain.MovePageRequest{
			PageID:       a.ID,
			ParentPageID: &b.ID,
		})
	}()
	go func() {
		defer wg.Done()
		errs[1] = env.pages.MovePage(ctx, intWorkspaceID, intUserOwner, &domain.MovePageRequest{
			PageID:       b.ID,
			ParentPageID: &a.ID,
		})
	}()
	wg.Wait()

	if errs[0] == nil && errs[1] == nil {
		t.Fatal("both reciprocal moves committed")
	}
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, service.ErrInvalidMove) || errors.Is(err, service.ErrConflict),
				"unexpected move error: %v", err)
		}
	}

	// a cadeia de pais de ambas as páginas termina numa raiz
	for _, id := range []string{a.ID, b.ID} {
		current := id
		for hops := 0; ; hops++ {
			require.Less(t, hops, 10, "parent chain does not terminate")
			page, err := env.pageRepo.FindByID(ctx, current, repo.FindPageOpts{})
			require.NoError(t, err)
			if page.ParentPageID == nil {
				break
			}
			current = *page.ParentPageID
		}
	}
}

func TestPageService_AuditMetadata_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	root := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Handbook")
	env.mustCreate(t, intUserOwner, intSpaceEng, &root.ID, "Chapter")

	_, err := env.pages.MovePageToSpace(ctx, intWorkspaceID, intUserOwner, &domain.MovePageToSpaceRequest{
		PageID:  root.ID,
		SpaceID: intSpaceDocs,
	})
	require.NoError(t, err)

	var raw []byte
	err = env.pool.QueryRow(ctx, `
		SELECT metadata FROM audit_log
		WHERE workspace_id = $1 AND action = 'move_to_space' AND resource_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, intWorkspaceID, root.ID).Scan(&raw)
	require.NoError(t, err)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, intSpaceEng, meta["source_space_id"])
	assert.Equal(t, intSpaceDocs, meta["destination_space_id"])
	assert.EqualValues(t, 2, meta["subtree_size"])
}

func TestPageService_SidebarRejectsCrossSpaceParent_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	docsRoot := env.mustCreate(t, intUserOwner, intSpaceDocs, nil, "Docs Home")

	// expandir um nó de outro espaço não vaza listagem
	_, err := env.pages.GetSidebarPages(ctx, intWorkspaceID, intUserOwner,
		&domain.SidebarPagesRequest{SpaceID: intSpaceEng, PageID: &docsRoot.ID}, domain.Pagination{})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestPageService_SyncReferenceAppendsAfterSiblings_Integration(t *testing.T) {
	env := setupPageEnv(t)
	ctx := context.Background()

	origin := env.mustCreate(t, intUserOwner, intSpaceEng, nil, "Guide")
	first := env.mustCreate(t, intUserOwner, intSpaceDocs, nil, "First")
	second := env.mustCreate(t, intUserOwner, intSpaceDocs, nil, "Second")

	ref, err := env.pages.CreateSyncPage(ctx, intWorkspaceID, intUserOwner, &domain.CreateSyncPageRequest{
		OriginPageID: origin.ID,
		SpaceID:      intSpaceDocs,
	})
	require.NoError(t, err)
	assert.Greater(t, second.Position, first.Position)
	assert.Greater(t, ref.Position, second.Position)
}
