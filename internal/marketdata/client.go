// Package marketdata reads market, order book and midpoint snapshots from the
// ingestion pipeline. Reads are cache-first against Redis with a fallback to
// the ingestion HTTP API; absence of data is not an error, callers get an
// ok=false and decide on their own safe default.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

const fetchTimeout = 10 * time.Second

type Client struct {
	cache        *redis.Client
	http         *http.Client
	ingestionURL string
}

func NewClient(cache *redis.Client, ingestionURL string) *Client {
	return &Client{
		cache:        cache,
		ingestionURL: ingestionURL,
		http: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// GetMarket returns the latest snapshot for one market.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*types.Market, bool) {
	key := fmt.Sprintf("market:%s:latest", conditionID)
	if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
		var market types.Market
		if err := json.Unmarshal([]byte(cached), &market); err == nil {
			return &market, true
		}
	}

	var market types.Market
	if err := c.getJSON(ctx, fmt.Sprintf("/markets/%s", conditionID), nil, &market); err != nil {
		log.Debug().Err(err).Str("condition_id", conditionID).Msg("Market fetch failed")
		return nil, false
	}
	return &market, true
}

// ListActiveMarkets returns up to limit active markets for agents without an
// explicit allowlist.
func (c *Client) ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	var markets []types.Market
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("active", "true")
	if err := c.getJSON(ctx, "/markets", params, &markets); err != nil {
		return nil, fmt.Errorf("failed to list active markets: %w", err)
	}
	return markets, nil
}

// GetOrderBook returns the latest book for a market, cache first.
func (c *Client) GetOrderBook(ctx context.Context, conditionID string) (*types.OrderBook, bool) {
	key := fmt.Sprintf("orderbook:%s:latest", conditionID)
	if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
		var book types.OrderBook
		if err := json.Unmarshal([]byte(cached), &book); err == nil {
			return &book, true
		}
	}

	var book types.OrderBook
	if err := c.getJSON(ctx, fmt.Sprintf("/orderbook/%s", conditionID), nil, &book); err != nil {
		log.Debug().Err(err).Str("condition_id", conditionID).Msg("Orderbook fetch failed")
		return nil, false
	}
	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		return nil, false
	}
	return &book, true
}

// GetMidpoint returns the current reference mid price for a token. Callers
// that cannot obtain one fall back to their own policy (the risk engine's
// slippage check passes open).
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (float64, bool) {
	key := fmt.Sprintf("midpoint:%s", tokenID)
	if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
		var mid float64
		if err := json.Unmarshal([]byte(cached), &mid); err == nil && mid > 0 {
			return mid, true
		}
	}

	var payload struct {
		Mid float64 `json:"mid"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/midpoint/%s", tokenID), nil, &payload); err != nil {
		log.Debug().Err(err).Str("token_id", tokenID).Msg("Midpoint fetch failed")
		return 0, false
	}
	if payload.Mid <= 0 {
		return 0, false
	}
	return payload.Mid, true
}

// ActivityFeed fetches the exchange activity feed for a wallet address.
func (c *Client) ActivityFeed(ctx context.Context, walletAddress string, limit int) ([]types.Activity, error) {
	var activities []types.Activity
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	if err := c.getJSON(ctx, fmt.Sprintf("/activity/%s", walletAddress), params, &activities); err != nil {
		return nil, fmt.Errorf("failed to fetch activity for %s: %w", walletAddress, err)
	}
	return activities, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.ingestionURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingestion returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
