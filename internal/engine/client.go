package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreReader is the read path the reconciliation loop depends on.
type StoreReader interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
}

// StoreClient issues commands against the remote order store. Every
// command either succeeds or fails with a RemoteError; none of them touch
// the local mirror, which is updated exclusively by the reconciliation
// loop reacting to change notifications.
type StoreClient interface {
	StoreReader

	ActiveOrderForTable(ctx context.Context, tableID uuid.UUID) (*Order, error)
	CreateOrder(ctx context.Context, tableID uuid.UUID, guestCount int, linkedTables []string) (*Order, error)
	AddItem(ctx context.Context, orderID uuid.UUID, item StagingItem) (*OrderItem, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	UpdateGuestCount(ctx context.Context, orderID uuid.UUID, count int) error
	SendToKitchen(ctx context.Context, orderID uuid.UUID) error
	RequestCheck(ctx context.Context, orderID uuid.UUID) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, method string, amount decimal.Decimal) error
	LinkTables(ctx context.Context, orderID uuid.UUID, tableNumbers []string) error
}

// HTTPStoreClient implements StoreClient against the order store's REST
// surface.
type HTTPStoreClient struct {
	baseURL    string
	terminalID string
	httpClient *http.Client
}

func NewHTTPStoreClient(baseURL, terminalID string) *HTTPStoreClient {
	if baseURL == "" {
		baseURL = "http://localhost:8084"
	}
	return &HTTPStoreClient{
		baseURL:    baseURL,
		terminalID: terminalID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type createOrderRequest struct {
	TableID      uuid.UUID `json:"table_id"`
	GuestCount   int       `json:"guest_count"`
	LinkedTables []string  `json:"linked_tables,omitempty"`
	Origin       string    `json:"origin,omitempty"`
}

type addItemRequest struct {
	CorrelationID  uuid.UUID       `json:"correlation_id"`
	MenuItemID     *uuid.UUID      `json:"menu_item_id,omitempty"`
	DishName       string          `json:"dish_name"`
	Category       string          `json:"category,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Notes          string          `json:"notes,omitempty"`
	Customizations []Customization `json:"customizations,omitempty"`
	Origin         string          `json:"origin,omitempty"`
}

func (c *HTTPStoreClient) ActiveOrderForTable(ctx context.Context, tableID uuid.UUID) (*Order, error) {
	path := fmt.Sprintf("/orders?table_id=%s&active=true", tableID)
	var orders []Order
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (c *HTTPStoreClient) CreateOrder(ctx context.Context, tableID uuid.UUID, guestCount int, linkedTables []string) (*Order, error) {
	req := createOrderRequest{
		TableID:      tableID,
		GuestCount:   guestCount,
		LinkedTables: linkedTables,
		Origin:       c.terminalID,
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *HTTPStoreClient) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID.String(), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *HTTPStoreClient) ListItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	var items []OrderItem
	path := fmt.Sprintf("/orders/%s/items", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *HTTPStoreClient) AddItem(ctx context.Context, orderID uuid.UUID, item StagingItem) (*OrderItem, error) {
	req := addItemRequest{
		CorrelationID:  item.LocalID,
		MenuItemID:     item.MenuItemID,
		DishName:       item.DishName,
		Category:       item.Category,
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
		Notes:          item.Notes,
		Customizations: item.Customizations,
		Origin:         c.terminalID,
	}
	var created OrderItem
	path := fmt.Sprintf("/orders/%s/items", orderID)
	if err := c.do(ctx, http.MethodPost, path, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *HTTPStoreClient) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/order-items/"+itemID.String(), nil, nil)
}

func (c *HTTPStoreClient) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	body := map[string]any{"quantity": quantity, "origin": c.terminalID}
	return c.do(ctx, http.MethodPut, "/order-items/"+itemID.String(), body, nil)
}

func (c *HTTPStoreClient) UpdateGuestCount(ctx context.Context, orderID uuid.UUID, count int) error {
	body := map[string]any{"guest_count": count, "origin": c.terminalID}
	return c.do(ctx, http.MethodPatch, "/orders/"+orderID.String()+"/guests", body, nil)
}

func (c *HTTPStoreClient) SendToKitchen(ctx context.Context, orderID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/orders/"+orderID.String()+"/send", nil, nil)
}

func (c *HTTPStoreClient) RequestCheck(ctx context.Context, orderID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/orders/"+orderID.String()+"/check", nil, nil)
}

func (c *HTTPStoreClient) MarkPaid(ctx context.Context, orderID uuid.UUID, method string, amount decimal.Decimal) error {
	body := map[string]any{"method": method, "amount": amount, "origin": c.terminalID}
	return c.do(ctx, http.MethodPost, "/orders/"+orderID.String()+"/pay", body, nil)
}

func (c *HTTPStoreClient) LinkTables(ctx context.Context, orderID uuid.UUID, tableNumbers []string) error {
	body := map[string]any{"table_numbers": tableNumbers, "origin": c.terminalID}
	return c.do(ctx, http.MethodPost, "/orders/"+orderID.String()+"/link-tables", body, nil)
}

// do issues one request and decodes the success envelope into dest.
// Transport failures and 5xx/408/429 responses classify as transient;
// other non-2xx responses are permanent.
func (c *HTTPStoreClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request failed: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Kind: RemoteTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteErrorFrom(resp)
	}

	if dest == nil {
		return nil
	}

	var envelope successEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

func remoteErrorFrom(resp *http.Response) *RemoteError {
	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	}
	return &RemoteError{
		Kind:    classifyStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: msg,
	}
}

func classifyStatus(code int) string {
	if code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return RemoteTransient
	}
	return RemotePermanent
}
