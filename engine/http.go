package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defHTTPTimeout = 30 * time.Second

// HTTPSource fetches datasets from a local data store serving
// GET {base}/datasets/{slice}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

type datasetResponse struct {
	Schema string   `json:"schema"`
	Data   []Sample `json:"data"`
	Size   int      `json:"size"`
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: defHTTPTimeout}
	}

	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPSource) Load(ctx context.Context, slice string) (Dataset, error) {
	reqURL := s.baseURL + "/datasets/" + url.PathEscape(slice)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to create dataset request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to fetch dataset from %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Dataset{}, fmt.Errorf("dataset store returned status: %s", resp.Status)
	}

	var body datasetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Dataset{}, fmt.Errorf("failed to decode dataset: %w", err)
	}

	ds, err := NewDataset(body.Data)
	if err != nil {
		return Dataset{}, fmt.Errorf("invalid dataset for slice %s: %w", slice, err)
	}

	return ds, nil
}
