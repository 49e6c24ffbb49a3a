package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// timestamp format the feed expects for publish-date windows
	feedTimeFormat = "2006-01-02T15:04:05.000"

	defaultPageSize = 2000
)

// Client fetches CVE entries from the NVD 2.0 API.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: defaultPageSize,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// FetchWindow returns every CVE published in [start, end], following the
// feed's startIndex paging. A non-success status or decode failure aborts
// the whole fetch.
func (c *Client) FetchWindow(ctx context.Context, start, end time.Time) ([]cveItem, error) {
	var items []cveItem
	startIndex := 0

	for {
		page, err := c.fetchPage(ctx, start, end, startIndex)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Vulnerabilities...)

		startIndex += len(page.Vulnerabilities)
		if startIndex >= page.TotalResults || len(page.Vulnerabilities) == 0 {
			return items, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, start, end time.Time, startIndex int) (*cveResponse, error) {
	q := url.Values{}
	q.Set("pubStartDate", start.UTC().Format(feedTimeFormat))
	q.Set("pubEndDate", end.UTC().Format(feedTimeFormat))
	q.Set("resultsPerPage", strconv.Itoa(c.pageSize))
	q.Set("startIndex", strconv.Itoa(startIndex))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var page cveResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding feed response: %w", err)
	}
	return &page, nil
}
