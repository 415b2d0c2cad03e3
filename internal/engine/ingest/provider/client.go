package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"leadrelay/internal/platform/config"
)

// Field is one raw (name, values) pair exactly as the provider reports it.
type Field struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadDetail is the full lead record fetched from the provider API.
type LeadDetail struct {
	ID          string  `json:"id"`
	CreatedTime string  `json:"created_time"`
	FieldData   []Field `json:"field_data"`
}

// Client abstracts the provider's lead API so the pipeline can be fed by
// the real Graph-style endpoint or a fake in tests.
type Client interface {
	FetchLead(ctx context.Context, accessToken, leadID string) (*LeadDetail, error)
	ListLeads(ctx context.Context, accessToken, formID string, since, until time.Time) ([]*LeadDetail, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
	}
}

func (c *HTTPClient) FetchLead(ctx context.Context, accessToken, leadID string) (*LeadDetail, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=id,created_time,field_data&access_token=%s",
		c.baseURL, url.PathEscape(leadID), url.QueryEscape(accessToken))

	var detail LeadDetail
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *HTTPClient) ListLeads(ctx context.Context, accessToken, formID string, since, until time.Time) ([]*LeadDetail, error) {
	endpoint := fmt.Sprintf("%s/%s/leads?fields=id,created_time,field_data&access_token=%s&since=%s&until=%s",
		c.baseURL, url.PathEscape(formID), url.QueryEscape(accessToken),
		strconv.FormatInt(since.Unix(), 10), strconv.FormatInt(until.Unix(), 10))

	var all []*LeadDetail
	for endpoint != "" {
		var page struct {
			Data   []*LeadDetail `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		endpoint = page.Paging.Next
	}
	return all, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		// The upstream error text is kept verbatim; it is the only clue an
		// operator has for an expired or revoked credential.
		return fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}
