// Package pricing is the client for the external token-price collaborator.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Client fetches USD prices by token symbol.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
}

// GetPrice returns the USD price for a symbol (e.g. "ETH").
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/prices/%s", c.baseURL, symbol)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to create price request")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "price request for %s failed", symbol)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to read price response")
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("price service returned %d for %s", resp.StatusCode, symbol)
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to decode price response")
	}
	if pr.Price.Sign() <= 0 {
		return decimal.Zero, errors.Errorf("non-positive price for %s: %s", symbol, pr.Price)
	}
	return pr.Price, nil
}
