package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

// HTTPTrackerClient queries the task tracker REST API. Unlike the other
// clients it authenticates per call with the member's own credential.
type HTTPTrackerClient struct {
	baseURL string
	limiter *ratelimit.Limiter
}

// NewHTTPTrackerClient constructs a tracker client for the given endpoint.
func NewHTTPTrackerClient(baseURL string, limiter *ratelimit.Limiter) *HTTPTrackerClient {
	return &HTTPTrackerClient{baseURL: baseURL, limiter: limiter}
}

func (c *HTTPTrackerClient) restFor(token string) *restClient {
	return newRESTClient(SystemTracker, c.baseURL, token, c.limiter, logger.WithSystem(SystemTracker))
}

// ValidateCredential checks the member token against the tracker. A 401/403
// means the credential is definitively invalid; other failures propagate so
// the caller can distinguish "invalid" from "unknown".
func (c *HTTPTrackerClient) ValidateCredential(ctx context.Context, token string) (bool, error) {
	err := c.restFor(token).doJSON(ctx, http.MethodGet, "validate_credential", "/v1/me", nil, nil)
	if err == nil {
		return true, nil
	}

	var call *CallError
	if errors.As(err, &call) {
		if call.StatusCode == http.StatusUnauthorized || call.StatusCode == http.StatusForbidden {
			return false, nil
		}
	}
	return false, err
}

func (c *HTTPTrackerClient) ListAssignedTasks(ctx context.Context, listID, trackerUserID, token string) ([]Task, error) {
	path := fmt.Sprintf("/v1/lists/%s/tasks?assignee=%s", listID, url.QueryEscape(trackerUserID))

	var parsed struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.restFor(token).doJSON(ctx, http.MethodGet, "list_tasks", path, nil, &parsed); err != nil {
		return nil, err
	}
	return parsed.Tasks, nil
}

func (c *HTTPTrackerClient) ListAllAssignedTasks(ctx context.Context, trackerUserID, token string) ([]Task, error) {
	path := fmt.Sprintf("/v1/tasks?assignee=%s", url.QueryEscape(trackerUserID))

	var parsed struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.restFor(token).doJSON(ctx, http.MethodGet, "list_all_tasks", path, nil, &parsed); err != nil {
		return nil, err
	}
	return parsed.Tasks, nil
}
