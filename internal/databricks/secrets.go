package databricks

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type getSecretResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetSecret reads a secret value from a workspace secret scope. The API
// returns the value base64-encoded; the decoded string is returned.
func (c *Client) GetSecret(ctx context.Context, scope, key string) (string, error) {
	scope = strings.TrimSpace(scope)
	key = strings.TrimSpace(key)
	if scope == "" || key == "" {
		return "", fmt.Errorf("secret scope and key are required")
	}

	query := url.Values{}
	query.Set("scope", scope)
	query.Set("key", key)

	var resp getSecretResponse
	if err := c.do(ctx, http.MethodGet, "/api/2.0/secrets/get", query, nil, &resp); err != nil {
		return "", fmt.Errorf("get secret %s/%s: %w", scope, key, err)
	}

	decoded, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return "", fmt.Errorf("decode secret %s/%s: %w", scope, key, err)
	}

	return string(decoded), nil
}
