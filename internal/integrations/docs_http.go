package integrations

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

// HTTPDocumentClient talks to the document/spreadsheet store REST API.
type HTTPDocumentClient struct {
	rest *restClient
}

// NewHTTPDocumentClient constructs a document store client.
func NewHTTPDocumentClient(baseURL, token string, limiter *ratelimit.Limiter) *HTTPDocumentClient {
	return &HTTPDocumentClient{
		rest: newRESTClient(SystemDocs, baseURL, token, limiter, logger.WithSystem(SystemDocs)),
	}
}

func (c *HTTPDocumentClient) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	payload := map[string]string{"name": name, "parent_id": parentID}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_folder", "/v1/folders", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (c *HTTPDocumentClient) CreateDocument(ctx context.Context, title, content, folderID string) (string, error) {
	payload := map[string]string{"title": title, "content": content, "folder_id": folderID}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_document", "/v1/documents", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (c *HTTPDocumentClient) CreateSpreadsheet(ctx context.Context, title, folderID string) (string, error) {
	payload := map[string]string{"title": title, "folder_id": folderID}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_spreadsheet", "/v1/spreadsheets", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (c *HTTPDocumentClient) AppendRow(ctx context.Context, sheetID string, row []string) error {
	payload := map[string]any{"values": row}
	path := fmt.Sprintf("/v1/spreadsheets/%s/rows", sheetID)
	return c.rest.doJSON(ctx, http.MethodPost, "append_row", path, payload, nil)
}
