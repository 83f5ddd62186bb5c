package integrations

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

// HTTPChatClient drives the chat platform's administrative REST API.
type HTTPChatClient struct {
	rest *restClient
}

// NewHTTPChatClient constructs a chat admin client.
func NewHTTPChatClient(baseURL, token string, limiter *ratelimit.Limiter) *HTTPChatClient {
	return &HTTPChatClient{
		rest: newRESTClient(SystemChat, baseURL, token, limiter, logger.WithSystem(SystemChat)),
	}
}

func (c *HTTPChatClient) CreateRole(ctx context.Context, name, color string) (string, error) {
	payload := map[string]string{"name": name, "color": color}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_role", "/v1/roles", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (c *HTTPChatClient) CreateChannel(ctx context.Context, name, categoryID string) (string, error) {
	payload := map[string]string{"name": name, "category_id": categoryID}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_channel", "/v1/channels", payload, &parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (c *HTTPChatClient) AssignRole(ctx context.Context, identity, roleID string) error {
	payload := map[string]string{"identity": identity}
	path := fmt.Sprintf("/v1/roles/%s/assignments", roleID)
	return c.rest.doJSON(ctx, http.MethodPost, "assign_role", path, payload, nil)
}

func (c *HTTPChatClient) SendDirectMessage(ctx context.Context, identity, content string) error {
	payload := map[string]string{"identity": identity, "content": content}
	return c.rest.doJSON(ctx, http.MethodPost, "send_dm", "/v1/direct-messages", payload, nil)
}

func (c *HTTPChatClient) PostMessage(ctx context.Context, channelID, content string) error {
	payload := map[string]string{"content": content}
	path := fmt.Sprintf("/v1/channels/%s/messages", channelID)
	return c.rest.doJSON(ctx, http.MethodPost, "post_message", path, payload, nil)
}
