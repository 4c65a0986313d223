package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Directory reads table metadata from the table directory service.
type Directory interface {
	ListTables(ctx context.Context) ([]Table, error)
	GetTable(ctx context.Context, id uuid.UUID) (*Table, error)
}

// HTTPDirectory implements Directory over the table service's REST API.
type HTTPDirectory struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (d *HTTPDirectory) ListTables(ctx context.Context) ([]Table, error) {
	var out []Table
	if err := d.get(ctx, "/tables", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *HTTPDirectory) GetTable(ctx context.Context, id uuid.UUID) (*Table, error) {
	var out Table
	if err := d.get(ctx, "/tables/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *HTTPDirectory) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("table directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("table directory returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}
