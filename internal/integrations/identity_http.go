package integrations

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

// HTTPIdentityClient talks to the identity provider's admin REST API.
type HTTPIdentityClient struct {
	rest *restClient
}

// NewHTTPIdentityClient constructs an identity client for the given endpoint.
func NewHTTPIdentityClient(baseURL, token string, limiter *ratelimit.Limiter) *HTTPIdentityClient {
	return &HTTPIdentityClient{
		rest: newRESTClient(SystemIdentity, baseURL, token, limiter, logger.WithSystem(SystemIdentity)),
	}
}

// CreateUser provisions a user account and returns its id plus a one-time
// temporary credential. The provider treats an existing email as a conflict;
// callers implement reuse semantics above this level.
func (c *HTTPIdentityClient) CreateUser(ctx context.Context, email, name string) (IdentityUser, error) {
	payload := map[string]string{"email": email, "name": name}

	var parsed struct {
		ID             string `json:"id"`
		TempCredential string `json:"temp_credential"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, "create_user", "/v1/users", payload, &parsed); err != nil {
		return IdentityUser{}, err
	}

	c.rest.log.Info("identity user provisioned", zap.String("user_id", parsed.ID))
	return IdentityUser{ID: parsed.ID, TempCredential: parsed.TempCredential}, nil
}
