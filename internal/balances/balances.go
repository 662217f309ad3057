// Package balances is the client for the external wallet-balance
// collaborator.
package balances

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
)

// Client discovers token balances for a wallet.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type balancesResponse struct {
	Tokens []types.Token `json:"tokens"`
}

// GetBalances returns every token balance the wallet holds on the chain.
func (c *Client) GetBalances(ctx context.Context, address string, chainID int64) ([]types.Token, error) {
	endpoint := fmt.Sprintf("%s/balances/%d/%s", c.baseURL, chainID, address)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create balances request")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "balances request for %s failed", address)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read balances response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("balance service returned %d for %s", resp.StatusCode, address)
	}

	var br balancesResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, errors.Wrap(err, "failed to decode balances response")
	}
	return br.Tokens, nil
}
