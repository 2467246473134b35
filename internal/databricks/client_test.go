package databricks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-token")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "token"); err == nil {
		t.Fatalf("expected error for empty host")
	}
	if _, err := NewClient("https://example.cloud.databricks.com", ""); err == nil {
		t.Fatalf("expected error for empty token")
	}

	client, err := NewClient("example.cloud.databricks.com", "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Host() != "https://example.cloud.databricks.com" {
		t.Fatalf("expected https scheme to be assumed, got %q", client.Host())
	}
}

func TestGetSpaceParsesSerializedSpace(t *testing.T) {
	serialized := map[string]interface{}{
		"instructions": "Answer SQL questions",
		"data_sources": map[string]interface{}{
			"tables":       []map[string]string{{"identifier": "sales"}},
			"metric_views": []map[string]string{{"identifier": "revenue_mv"}},
		},
		"example_sql": []string{"SELECT 1"},
	}
	serializedJSON, err := json.Marshal(serialized)
	if err != nil {
		t.Fatalf("marshal serialized space: %v", err)
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.0/genie/spaces/01efABC" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("include_serialized_space") != "true" {
			t.Errorf("expected include_serialized_space=true, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{
			"space_id":         "01efABC",
			"title":            "Sales Assistant",
			"serialized_space": string(serializedJSON),
		})
	}))

	cfg, err := client.GetSpace(context.Background(), "01efABC")
	if err != nil {
		t.Fatalf("GetSpace failed: %v", err)
	}

	if cfg.SpaceID != "01efABC" || cfg.Title != "Sales Assistant" {
		t.Fatalf("unexpected space metadata: %+v", cfg)
	}
	if cfg.Instructions != "Answer SQL questions" {
		t.Fatalf("unexpected instructions %q", cfg.Instructions)
	}
	if len(cfg.TrustedAssets) != 2 ||
		cfg.TrustedAssets[0].String() != "table:sales" ||
		cfg.TrustedAssets[1].String() != "metric_view:revenue_mv" {
		t.Fatalf("unexpected trusted assets: %+v", cfg.TrustedAssets)
	}
	if len(cfg.ExampleSQL) != 1 || cfg.ExampleSQL[0] != "SELECT 1" {
		t.Fatalf("unexpected example sql: %+v", cfg.ExampleSQL)
	}
}

func TestGetSpaceToleratesMissingSerializedSpace(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"space_id": "01efABC", "title": "Empty"})
	}))

	cfg, err := client.GetSpace(context.Background(), "01efABC")
	if err != nil {
		t.Fatalf("GetSpace failed: %v", err)
	}
	if string(cfg.Raw) != "{}" {
		t.Fatalf("expected empty raw document, got %q", cfg.Raw)
	}
	if cfg.Instructions != "" || len(cfg.TrustedAssets) != 0 {
		t.Fatalf("expected empty config fields, got %+v", cfg)
	}
}

func TestGetSpaceNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error_code": "RESOURCE_DOES_NOT_EXIST",
			"message":    "space does not exist",
		})
	}))

	_, err := client.GetSpace(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error for missing space")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
	if IsPermissionDenied(err) {
		t.Fatalf("did not expect permission classification for %v", err)
	}
}

func TestGetSecretDecodesValue(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.0/secrets/get" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("scope") != "my-scope" || r.URL.Query().Get("key") != "git-pat" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"key":   "git-pat",
			"value": base64.StdEncoding.EncodeToString([]byte("s3cret")),
		})
	}))

	value, err := client.GetSecret(context.Background(), "my-scope", "git-pat")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "s3cret" {
		t.Fatalf("unexpected secret value %q", value)
	}
}

func TestGetSecretPermissionDenied(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error_code": "PERMISSION_DENIED",
			"message":    "caller lacks READ permission on scope",
		})
	}))

	_, err := client.GetSecret(context.Background(), "my-scope", "git-pat")
	if err == nil {
		t.Fatalf("expected error for denied secret access")
	}
	if !IsPermissionDenied(err) {
		t.Fatalf("expected permission classification, got %v", err)
	}
}

func TestDoRetriesTransientServerErrors(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"space_id": "01efABC"})
	}))

	if _, err := client.GetSpace(context.Background(), "01efABC"); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error_code": "INVALID_PARAMETER_VALUE"})
	}))

	if _, err := client.GetSpace(context.Background(), "01efABC"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for a client error, got %d", attempts)
	}
}

func TestListSpacesFollowsPagination(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page_token") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"spaces":          []SpaceSummary{{SpaceID: "a", Title: "First"}},
				"next_page_token": "page2",
			})
		case "page2":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"spaces": []SpaceSummary{{SpaceID: "b", Title: "Second"}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("page_token"))
		}
	}))

	spaces, err := client.ListSpaces(context.Background())
	if err != nil {
		t.Fatalf("ListSpaces failed: %v", err)
	}
	if len(spaces) != 2 || spaces[0].SpaceID != "a" || spaces[1].SpaceID != "b" {
		t.Fatalf("unexpected spaces: %+v", spaces)
	}
}

func TestParseTrustedAsset(t *testing.T) {
	asset, err := ParseTrustedAsset("table:sales")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Kind != "table" || asset.Identifier != "sales" {
		t.Fatalf("unexpected asset %+v", asset)
	}

	// Identifiers may themselves contain separators (catalog.schema.table
	// never does, but fully qualified refs keep the first cut only).
	asset, err = ParseTrustedAsset("metric_view:finance.core.revenue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Identifier != "finance.core.revenue" {
		t.Fatalf("unexpected identifier %q", asset.Identifier)
	}

	for _, bad := range []string{"", "table:", ":sales", "sales"} {
		if _, err := ParseTrustedAsset(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
