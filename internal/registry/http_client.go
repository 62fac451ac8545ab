package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient implements Lookup against a JSON registry API
// (e.g. a national business information system).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs a registry client for the given base URL.
func NewHTTPClient(baseURL, apiKey string) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("REGISTRY_BASE_URL is required")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// Lookup fetches company facts by business ID.
func (c *HTTPClient) Lookup(ctx context.Context, businessID string) (CompanyFacts, error) {
	if strings.TrimSpace(businessID) == "" {
		return CompanyFacts{}, ErrNotFound
	}

	endpoint := fmt.Sprintf("%s/companies/%s", c.baseURL, url.PathEscape(strings.TrimSpace(businessID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CompanyFacts{}, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return CompanyFacts{}, ctx.Err()
		}
		return CompanyFacts{}, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CompanyFacts{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return CompanyFacts{}, fmt.Errorf("registry status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompanyFacts{}, fmt.Errorf("read registry response: %w", err)
	}

	var facts CompanyFacts
	if err := json.Unmarshal(body, &facts); err != nil {
		return CompanyFacts{}, fmt.Errorf("decode registry response: %w", err)
	}
	if facts.BusinessID == "" {
		facts.BusinessID = businessID
	}
	return facts, nil
}

var _ Lookup = (*HTTPClient)(nil)
