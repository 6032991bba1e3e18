package strategies

import (
	"math"
	"time"

	"github.com/sovrana/trading-engine/internal/types"
)

// LiquidityProvision quotes inside a wide spread to earn it back.
type LiquidityProvision struct {
	confidenceThreshold float64
	maxSizeUSDC         float64
	spreadTarget        float64
	inventoryLimitUSDC  float64
}

func NewLiquidityProvision(config map[string]interface{}) Strategy {
	return &LiquidityProvision{
		confidenceThreshold: floatOption(config, "confidence_threshold", 0.6),
		maxSizeUSDC:         floatOption(config, "max_size_usdc", 50),
		spreadTarget:        floatOption(config, "spread_target", 0.02),
		inventoryLimitUSDC:  floatOption(config, "inventory_limit_usdc", 200),
	}
}

func (s *LiquidityProvision) Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error) {
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return nil, nil
	}

	bestAsk := book.Asks[0].Price
	bestBid := book.Bids[0].Price
	spread := bestAsk - bestBid
	mid := (bestAsk + bestBid) / 2

	if spread < s.spreadTarget {
		return nil, nil
	}

	confidence := math.Min(spread/s.spreadTarget, 1.0)
	if confidence < s.confidenceThreshold {
		return nil, nil
	}

	buyPrice := math.Round((mid-s.spreadTarget/2)*10000) / 10000

	return &types.Signal{
		ConditionID: market.ConditionID,
		TokenID:     book.TokenID,
		Side:        "buy",
		Price:       buyPrice,
		SizeUSDC:    s.maxSizeUSDC,
		Confidence:  confidence,
		TimeHorizon: 300,
		RawData: map[string]interface{}{
			"strategy":  "liquidity_provision",
			"mid":       mid,
			"spread":    spread,
			"buy_price": buyPrice,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}
