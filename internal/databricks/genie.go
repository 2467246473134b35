package databricks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TrustedAsset is a data object the Genie space may reference when answering
// questions, identified as kind:identifier (for example "table:sales").
type TrustedAsset struct {
	Kind       string
	Identifier string
}

func (a TrustedAsset) String() string {
	return a.Kind + ":" + a.Identifier
}

// ParseTrustedAsset parses a kind:identifier reference produced by
// TrustedAsset.String.
func ParseTrustedAsset(ref string) (TrustedAsset, error) {
	kind, identifier, ok := strings.Cut(ref, ":")
	if !ok || kind == "" || identifier == "" {
		return TrustedAsset{}, fmt.Errorf("invalid trusted asset reference %q", ref)
	}
	return TrustedAsset{Kind: kind, Identifier: identifier}, nil
}

// GenieSpaceConfig is the fetched configuration of a Genie space. It is
// created from a single API response and never mutated afterwards.
type GenieSpaceConfig struct {
	SpaceID       string
	Title         string
	Instructions  string
	TrustedAssets []TrustedAsset
	ExampleSQL    []string

	// Raw holds the decoded serialized_space document so snapshots retain
	// fields this struct does not model.
	Raw json.RawMessage
}

// SpaceSummary is a Genie space listing entry.
type SpaceSummary struct {
	SpaceID     string `json:"space_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type getSpaceResponse struct {
	SpaceID         string `json:"space_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	SerializedSpace string `json:"serialized_space"`
}

// serializedSpace mirrors the portion of the serialized_space payload the
// backup snapshots per-field. data_sources carries the trusted assets.
type serializedSpace struct {
	Instructions string `json:"instructions"`
	DataSources  struct {
		Tables      []serializedAsset `json:"tables"`
		MetricViews []serializedAsset `json:"metric_views"`
	} `json:"data_sources"`
	ExampleSQL []string `json:"example_sql"`
}

type serializedAsset struct {
	Identifier string `json:"identifier"`
}

// GetSpace fetches the full configuration of a Genie space, including the
// serialized space document.
func (c *Client) GetSpace(ctx context.Context, spaceID string) (GenieSpaceConfig, error) {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return GenieSpaceConfig{}, fmt.Errorf("space id is required")
	}

	query := url.Values{}
	query.Set("include_serialized_space", "true")

	var resp getSpaceResponse
	apiPath := fmt.Sprintf("/api/2.0/genie/spaces/%s", url.PathEscape(spaceID))
	if err := c.do(ctx, http.MethodGet, apiPath, query, nil, &resp); err != nil {
		return GenieSpaceConfig{}, fmt.Errorf("get genie space %s: %w", spaceID, err)
	}

	cfg := GenieSpaceConfig{
		SpaceID: spaceID,
		Title:   resp.Title,
		Raw:     json.RawMessage("{}"),
	}
	if resp.SpaceID != "" {
		cfg.SpaceID = resp.SpaceID
	}

	// An empty serialized_space is unusual but not an error; the snapshot
	// then records an empty document.
	if strings.TrimSpace(resp.SerializedSpace) == "" {
		return cfg, nil
	}

	var serialized serializedSpace
	if err := json.Unmarshal([]byte(resp.SerializedSpace), &serialized); err != nil {
		return GenieSpaceConfig{}, fmt.Errorf("decode serialized space for %s: %w", spaceID, err)
	}

	cfg.Raw = json.RawMessage(resp.SerializedSpace)
	cfg.Instructions = serialized.Instructions
	cfg.ExampleSQL = serialized.ExampleSQL

	for _, table := range serialized.DataSources.Tables {
		if table.Identifier == "" {
			continue
		}
		cfg.TrustedAssets = append(cfg.TrustedAssets, TrustedAsset{Kind: "table", Identifier: table.Identifier})
	}
	for _, view := range serialized.DataSources.MetricViews {
		if view.Identifier == "" {
			continue
		}
		cfg.TrustedAssets = append(cfg.TrustedAssets, TrustedAsset{Kind: "metric_view", Identifier: view.Identifier})
	}

	return cfg, nil
}

type listSpacesResponse struct {
	Spaces        []SpaceSummary `json:"spaces"`
	NextPageToken string         `json:"next_page_token"`
}

// ListSpaces enumerates the Genie spaces visible to the caller, following
// pagination tokens until the listing is exhausted.
func (c *Client) ListSpaces(ctx context.Context) ([]SpaceSummary, error) {
	var results []SpaceSummary

	pageToken := ""
	for {
		query := url.Values{}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		var resp listSpacesResponse
		if err := c.do(ctx, http.MethodGet, "/api/2.0/genie/spaces", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("list genie spaces: %w", err)
		}

		results = append(results, resp.Spaces...)

		if resp.NextPageToken == "" {
			return results, nil
		}
		pageToken = resp.NextPageToken
	}
}
