package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"websentry/internal/normalize"
)

// HTTPCaptureClient pulls batches of captured requests from a sensor
// endpoint that serves a JSON array of records
type HTTPCaptureClient struct {
	url    string
	client *http.Client
}

func NewHTTPCaptureClient(url string) *HTTPCaptureClient {
	return &HTTPCaptureClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCaptureClient) Fetch() ([]normalize.CaptureRecord, error) {
	resp, err := c.client.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("capture fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture endpoint returned %s", resp.Status)
	}

	var records []normalize.CaptureRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode capture records: %w", err)
	}
	return records, nil
}
