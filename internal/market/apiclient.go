package market

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/pkg/errors"
)

// APIClient talks to the persistence API. Requests are short-lived and
// carry the caller's context; the store itself never authorizes anything.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type createOrderBody struct {
	Parameters seaport.TransportOrder `json:"parameters"`
	Signature  string                 `json:"signature"`
}

func (c *APIClient) CreateOrder(ctx context.Context, params seaport.TransportOrder, signature string) (*models.StoredOrder, error) {
	body, err := json.Marshal(createOrderBody{Parameters: params, Signature: signature})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal order body")
	}

	var order models.StoredOrder
	if err := c.do(ctx, http.MethodPost, "/orders", bytes.NewReader(body), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *APIClient) ActiveOrders(ctx context.Context) ([]*models.StoredOrder, error) {
	var orders []*models.StoredOrder
	if err := c.do(ctx, http.MethodGet, "/orders?status=active", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *APIClient) MarkFulfilled(ctx context.Context, orderHash string) error {
	return c.mark(ctx, "mark-fulfilled", orderHash)
}

func (c *APIClient) MarkCancelled(ctx context.Context, orderHash string) error {
	return c.mark(ctx, "mark-cancelled", orderHash)
}

func (c *APIClient) mark(ctx context.Context, action, orderHash string) error {
	path := "/orders/" + action + "?hash=" + url.QueryEscape(orderHash)
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return errors.Errorf("%s was not acknowledged", action)
	}
	return nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "failed to decode response")
}
