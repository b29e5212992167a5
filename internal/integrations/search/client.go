package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docspace-api/internal/http/client"
	"docspace-api/internal/observability/logger"

	"go.uber.org/zap"
)

// IndexerClient notifica o serviço interno de indexação de busca sobre
// mutações de páginas. Best-effort: falhas são logadas mas nunca falham a
// operação que originou o evento.
//
// Propaga request_id automaticamente via RequestIDTransport.
type IndexerClient struct {
	httpClient *http.Client
	baseURL    string
	enabled    bool
}

// NewIndexerClient creates a search indexer client. An empty baseURL disables
// notifications (local dev without the indexer running).
func NewIndexerClient(baseURL string) *IndexerClient {
	return &IndexerClient{
		httpClient: client.NewInternalHTTPClient(),
		baseURL:    baseURL,
		enabled:    baseURL != "",
	}
}

// PageUpserted signals that a page was created, updated, restored or moved
// and should be (re)indexed.
func (c *IndexerClient) PageUpserted(ctx context.Context, workspaceID, spaceID, pageID string) {
	c.notify(ctx, "page_upserted", map[string]any{
		"workspace_id": workspaceID,
		"space_id":     spaceID,
		"page_id":      pageID,
	})
}

// PagesRemoved signals that a set of pages left the searchable set (trashed
// or permanently deleted).
func (c *IndexerClient) PagesRemoved(ctx context.Context, workspaceID string, pageIDs []string) {
	c.notify(ctx, "pages_removed", map[string]any{
		"workspace_id": workspaceID,
		"page_ids":     pageIDs,
	})
}

func (c *IndexerClient) notify(ctx context.Context, event string, payload map[string]any) {
	if !c.enabled {
		return
	}

	log := logger.GetLogger(ctx)

	payload["event"] = event
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error(ctx, "failed to marshal indexer payload",
			logger.Module("search"),
			logger.Action(event),
			zap.Error(err),
		)
		return
	}

	url := fmt.Sprintf("%s/v1/index-events", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error(ctx, "failed to build indexer request",
			logger.Module("search"),
			logger.Action(event),
			zap.Error(err),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	// X-Request-Id adicionado pelo RequestIDTransport a partir do ctx

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn(ctx, "indexer request failed",
			logger.Module("search"),
			logger.Action(event),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		log.Warn(ctx, "indexer returned non-ok status",
			logger.Module("search"),
			logger.Action(event),
			zap.Int("status", resp.StatusCode),
		)
	}
}
