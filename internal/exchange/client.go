// Package exchange is the only code path that talks to the CLOB
// order-placement API. Prices and sizes are scaled to the exchange's
// 6-decimal fixed-point integer convention before submission.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sovrana/trading-engine/internal/wallet"
)

const requestTimeout = 30 * time.Second

// fixed-point scale used by the CLOB contracts
const priceDecimals = 6

type Client struct {
	base    string
	chainID int
	http    *http.Client
}

func NewClient(base string, chainID int) *Client {
	return &Client{
		base:    strings.TrimRight(base, "/"),
		chainID: chainID,
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// ScaleFixedPoint renders a float amount as the exchange's integer string.
func ScaleFixedPoint(v float64) string {
	return decimal.NewFromFloat(v).Shift(priceDecimals).Round(0).String()
}

// BuildOrder constructs the signed order payload for one placement.
func (c *Client) BuildOrder(identity *wallet.Identity, tokenID, side string, price, size float64) map[string]interface{} {
	nonce := fmt.Sprintf("%d", time.Now().UTC().Unix())
	scaledPrice := ScaleFixedPoint(price)
	scaledSize := ScaleFixedPoint(size)

	message := strings.Join([]string{tokenID, strings.ToUpper(side), scaledPrice, scaledSize, nonce}, "|")

	return map[string]interface{}{
		"maker":         identity.Address,
		"tokenId":       tokenID,
		"side":          strings.ToUpper(side),
		"price":         scaledPrice,
		"size":          scaledSize,
		"nonce":         nonce,
		"expiration":    "0",
		"feeRateBps":    "0",
		"chainId":       c.chainID,
		"signatureType": 0,
		"signature":     identity.Sign([]byte(message)),
	}
}

// PlaceOrder submits a signed order and returns the raw response body.
func (c *Client) PlaceOrder(ctx context.Context, order map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("order submission failed (status %d): %v", resp.StatusCode, result)
	}

	return result, nil
}

// CancelOrder submits a signed delete for one exchange order id.
func (c *Client) CancelOrder(ctx context.Context, identity *wallet.Identity, exchangeOrderID string) error {
	timestamp := fmt.Sprintf("%d", time.Now().UTC().Unix())
	message := fmt.Sprintf("cancel_%s_%s", exchangeOrderID, timestamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/orders/%s", c.base, exchangeOrderID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("CLOB-ADDRESS", identity.Address)
	req.Header.Set("CLOB-SIGNATURE", identity.Sign([]byte(message)))
	req.Header.Set("CLOB-TIMESTAMP", timestamp)
	req.Header.Set("CLOB-NONCE", timestamp)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit cancellation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cancellation failed (status %d)", resp.StatusCode)
	}

	return nil
}
