// Package gophish is the API client for the phishing-simulation server.
// It only fetches snapshots and issues campaign/result operations; all
// reconciliation happens in the results package.
package gophish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/phishsim-monitor/internal/config"
	"github.com/ignite/phishsim-monitor/internal/domain"
	"github.com/ignite/phishsim-monitor/internal/pkg/httpretry"
)

// Client is a phishing-server API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new API client.
func NewClient(cfg config.PhishingConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// doRequest makes an HTTP request to the server API.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetCampaignResults fetches the full snapshot for one campaign: all
// recipients, the complete event log and campaign metadata.
func (c *Client) GetCampaignResults(ctx context.Context, id int64) (*domain.Campaign, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/results", id), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign results: %w", err)
	}

	var campaign domain.Campaign
	if err := json.Unmarshal(body, &campaign); err != nil {
		return nil, fmt.Errorf("parsing campaign results: %w", err)
	}

	return &campaign, nil
}

// GetCampaignStats fetches the stats aggregate for one campaign.
func (c *Client) GetCampaignStats(ctx context.Context, id int64) (*domain.Stats, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/stats", id), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign stats: %w", err)
	}

	var stats domain.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parsing campaign stats: %w", err)
	}

	return &stats, nil
}

// GetCampaignSummaries fetches the multi-campaign summary collection used
// by the dashboard view.
func (c *Client) GetCampaignSummaries(ctx context.Context) ([]domain.Campaign, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/campaigns/summary", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign summaries: %w", err)
	}

	var response struct {
		Campaigns []domain.Campaign `json:"campaigns"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing campaign summaries: %w", err)
	}

	return response.Campaigns, nil
}

// CompleteCampaign tells the server to stop processing events for a
// campaign.
func (c *Client) CompleteCampaign(ctx context.Context, id int64) error {
	if _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/complete", id), nil); err != nil {
		return fmt.Errorf("completing campaign: %w", err)
	}
	return nil
}

// DeleteCampaign deletes a campaign server-side.
func (c *Client) DeleteCampaign(ctx context.Context, id int64) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/campaigns/%d", id), nil); err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}
	return nil
}

// ReportResult flags a recipient result as reported. The report endpoint
// lives on the campaign's own phishing URL, not the admin API, mirroring
// how recipients themselves report.
func (c *Client) ReportResult(ctx context.Context, campaignURL, rid string) error {
	reportURL, err := url.Parse(campaignURL)
	if err != nil {
		return fmt.Errorf("parsing campaign url: %w", err)
	}
	reportURL.Path = "/report"
	reportURL.RawQuery = url.Values{domain.RecipientParameter: {rid}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL.String(), nil)
	if err != nil {
		return fmt.Errorf("creating report request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reporting result: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
