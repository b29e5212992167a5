package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"docspace-api/internal/auth"
	"docspace-api/internal/domain"
	"docspace-api/internal/http/httperr"
	"docspace-api/internal/observability/logger"
	"docspace-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PageHandler expõe as operações de hierarquia de páginas. Seguindo o estilo
// RPC do produto, mutações e listagens usam POST com o payload no corpo.
type PageHandler struct {
	pages   *service.PageService
	history *service.PageHistoryService
}

func NewPageHandler(pages *service.PageService, history *service.PageHistoryService) *PageHandler {
	return &PageHandler{pages: pages, history: history}
}

// requestScope extrai workspace e ator autenticado da requisição.
func requestScope(w http.ResponseWriter, r *http.Request) (ctx context.Context, workspaceID, actorID string, ok bool) {
	ctx = r.Context()
	workspaceID = chi.URLParam(r, "workspaceId")

	claims, found := auth.GetClaims(ctx)
	if !found {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication required")
		return ctx, "", "", false
	}
	return ctx, workspaceID, claims.ActorID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperr.BadRequest400(w, r.Context(), httperr.ErrCodeInvalidFormat, "request body must be valid JSON")
		return false
	}
	return true
}

// GetPageInfo handles POST /v1/workspaces/{workspaceId}/pages/info
func (h *PageHandler) GetPageInfo(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.PageIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.GetPage(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// CreatePage handles POST /v1/workspaces/{workspaceId}/pages/create
func (h *PageHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}
	log := logger.GetLogger(ctx)

	var req domain.CreatePageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.CreatePage(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "page created",
		zap.String("pageId", page.ID),
		zap.String("spaceId", page.SpaceID),
	)
	writeJSON(w, http.StatusOK, page)
}

// UpdatePage handles POST /v1/workspaces/{workspaceId}/pages/update
func (h *PageHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.UpdatePageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.UpdatePage(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// RemovePage handles POST /v1/workspaces/{workspaceId}/pages/remove
func (h *PageHandler) RemovePage(w http.ResponseWriter, r *http.Request) {
	h.subtreeTransition(w, r, "remove", h.pages.RemovePage)
}

// DeletePage handles POST /v1/workspaces/{workspaceId}/pages/delete
func (h *PageHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	h.subtreeTransition(w, r, "delete", h.pages.DeletePage)
}

// RestorePage handles POST /v1/workspaces/{workspaceId}/pages/restore
func (h *PageHandler) RestorePage(w http.ResponseWriter, r *http.Request) {
	h.subtreeTransition(w, r, "restore", h.pages.RestorePage)
}

// subtreeTransition é o corpo comum de remove/delete/restore: mesma entrada
// (pageId), mesma resposta vazia, transições de estado diferentes.
func (h *PageHandler) subtreeTransition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(ctx context.Context, workspaceID, actorID string, req *domain.PageIDRequest) error,
) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}
	log := logger.GetLogger(ctx)

	var req domain.PageIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	if err := fn(ctx, workspaceID, actorID, &req); err != nil {
		handlePageServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "page state transition applied",
		zap.String("action", action),
		zap.String("pageId", req.PageID),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MovePage handles POST /v1/workspaces/{workspaceId}/pages/move
func (h *PageHandler) MovePage(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.MovePageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	if err := h.pages.MovePage(ctx, workspaceID, actorID, &req); err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MovePageToSpace handles POST /v1/workspaces/{workspaceId}/pages/move-to-space
func (h *PageHandler) MovePageToSpace(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.MovePageToSpaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.MovePageToSpace(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// CopyPageToSpace handles POST /v1/workspaces/{workspaceId}/pages/copy-to-space
func (h *PageHandler) CopyPageToSpace(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.CopyPageToSpaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.CopyPageToSpace(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// CreateSyncPage handles POST /v1/workspaces/{workspaceId}/pages/sync-page
func (h *PageHandler) CreateSyncPage(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.CreateSyncPageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	page, err := h.pages.CreateSyncPage(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// GetBreadcrumbs handles POST /v1/workspaces/{workspaceId}/pages/breadcrumbs
func (h *PageHandler) GetBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.PageIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	chain, err := h.pages.GetBreadcrumbs(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": chain})
}

// GetSidebarPages handles POST /v1/workspaces/{workspaceId}/pages/sidebar-pages
func (h *PageHandler) GetSidebarPages(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var body struct {
		domain.SidebarPagesRequest
		domain.Pagination
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := body.SidebarPagesRequest.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	response, err := h.pages.GetSidebarPages(ctx, workspaceID, actorID, &body.SidebarPagesRequest, body.Pagination)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetRecentPages handles POST /v1/workspaces/{workspaceId}/pages/recent
func (h *PageHandler) GetRecentPages(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var body struct {
		domain.RecentPagesRequest
		domain.Pagination
	}
	if !decodeBody(w, r, &body) {
		return
	}

	response, err := h.pages.GetRecentPages(ctx, workspaceID, actorID, &body.RecentPagesRequest, body.Pagination)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetDeletedPages handles POST /v1/workspaces/{workspaceId}/pages/deleted
func (h *PageHandler) GetDeletedPages(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var body struct {
		domain.DeletedPagesRequest
		domain.Pagination
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := body.DeletedPagesRequest.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	response, err := h.pages.GetDeletedPages(ctx, workspaceID, actorID, &body.DeletedPagesRequest, body.Pagination)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// ListPageHistory handles POST /v1/workspaces/{workspaceId}/pages/history
func (h *PageHandler) ListPageHistory(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var body struct {
		domain.PageHistoryRequest
		domain.Pagination
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := body.PageHistoryRequest.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	response, err := h.history.ListPageHistory(ctx, workspaceID, actorID, &body.PageHistoryRequest, body.Pagination)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetPageHistoryInfo handles POST /v1/workspaces/{workspaceId}/pages/history/info
func (h *PageHandler) GetPageHistoryInfo(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req domain.PageHistoryInfoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	history, err := h.history.GetPageHistoryInfo(ctx, workspaceID, actorID, &req)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// ListPages handles GET /v1/workspaces/{workspaceId}/pages/
func (h *PageHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	ctx, workspaceID, actorID, ok := requestScope(w, r)
	if !ok {
		return
	}

	spaceID := r.URL.Query().Get("spaceId")
	if spaceID == "" {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeMissingParameter, "spaceId query parameter is required")
		return
	}

	var p domain.Pagination
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		p.Cursor = &cursor
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidLimit, "limit must be between 1 and 100")
			return
		}
		p.Limit = limit
	}

	response, err := h.pages.GetPagesInSpace(ctx, workspaceID, actorID, spaceID, p)
	if err != nil {
		handlePageServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// handlePageServiceError mapeia erros de domínio da hierarquia para status
// HTTP. Falhas de autorização respondem 403 genérico, sem revelar qual
// verificação falhou.
func handlePageServiceError(w http.ResponseWriter, ctx context.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		log.Warn(ctx, "unauthorized page action", zap.Error(err))
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "insufficient permissions for this action")
	case errors.Is(err, service.ErrPageNotFound):
		httperr.WriteError(w, ctx, http.StatusNotFound, httperr.ErrCodeNotFound, "page not found")
	case errors.Is(err, service.ErrSpaceNotFound):
		httperr.WriteError(w, ctx, http.StatusNotFound, httperr.ErrCodeNotFound, "space not found")
	case errors.Is(err, service.ErrPageHistoryNotFound):
		httperr.WriteError(w, ctx, http.StatusNotFound, httperr.ErrCodeNotFound, "page history not found")
	case errors.Is(err, service.ErrOriginNotFound):
		httperr.WriteError(w, ctx, http.StatusNotFound, httperr.ErrCodeOriginNotFound, "origin page not found")
	case errors.Is(err, service.ErrInvalidParent):
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeInvalidParent, "parent page is not a valid attachment point")
	case errors.Is(err, service.ErrInvalidMove):
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeInvalidMove, "cannot move a page into its own descendant or another space")
	case errors.Is(err, service.ErrAlreadyInSpace):
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeAlreadyInSpace, "page already belongs to this space")
	case errors.Is(err, service.ErrInvalidSyncTarget):
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeInvalidSyncTarget, "sync reference cannot sit next to its origin")
	case errors.Is(err, service.ErrOriginMissing):
		log.Error(ctx, "dangling sync reference detected", zap.Error(err))
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeOriginMissing, "synced page origin is missing")
	case errors.Is(err, service.ErrConflict):
		log.Warn(ctx, "subtree mutation conflict", zap.Error(err))
		httperr.WriteError(w, ctx, http.StatusConflict, httperr.ErrCodeConflict, "page tree was modified by another request, try again")
	default:
		log.Error(ctx, "unhandled page service error", zap.Error(err))
		httperr.InternalError500(w, ctx, "an internal error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
