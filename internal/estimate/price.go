package estimate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// priceResponse is the expected shape of the price endpoint's reply.
type priceResponse struct {
	USD float64 `json:"usd"`
}

// HTTPPrice returns a PriceFunc backed by an ETH/USD price endpoint.
// The hard timeout keeps a hung price service from stalling estimation;
// callers already treat any error as "omit the USD figure".
func HTTPPrice(endpoint string, timeout time.Duration) PriceFunc {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context) (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("price endpoint returned %d", resp.StatusCode)
		}

		var pr priceResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return 0, fmt.Errorf("decode price response: %w", err)
		}
		if pr.USD <= 0 {
			return 0, fmt.Errorf("price endpoint returned non-positive price %v", pr.USD)
		}
		return pr.USD, nil
	}
}
