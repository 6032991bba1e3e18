package strategies

import (
	"math"
	"time"

	"github.com/sovrana/trading-engine/internal/types"
)

// Momentum enters in the direction of recent price movement when 24h volume
// is elevated and the spread is tight enough to cross.
type Momentum struct {
	confidenceThreshold float64
	maxSizeUSDC         float64
	timeHorizon         int
	momentumThreshold   float64
	minVolume24h        float64
}

func NewMomentum(config map[string]interface{}) Strategy {
	return &Momentum{
		confidenceThreshold: floatOption(config, "confidence_threshold", 0.6),
		maxSizeUSDC:         floatOption(config, "max_size_usdc", 50),
		timeHorizon:         intOption(config, "time_horizon", 3600),
		momentumThreshold:   floatOption(config, "momentum_threshold", 0.05),
		minVolume24h:        floatOption(config, "min_volume_24h", 10000),
	}
}

func (s *Momentum) Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error) {
	if market.YesPrice == 0 || market.Volume24h < s.minVolume24h {
		return nil, nil
	}
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return nil, nil
	}

	bestAsk := book.Asks[0].Price
	bestBid := book.Bids[0].Price

	spreadPct := 1.0
	if bestAsk > 0 {
		spreadPct = (bestAsk - bestBid) / bestAsk
	}
	if spreadPct > 0.1 {
		return nil, nil
	}

	var side string
	var confidence, entryPrice float64
	switch {
	case market.YesPrice > 0.5+s.momentumThreshold:
		side = "buy"
		confidence = math.Min((market.YesPrice-0.5)/0.5, 1.0)
		entryPrice = bestAsk
	case market.YesPrice < 0.5-s.momentumThreshold:
		side = "sell"
		confidence = math.Min((0.5-market.YesPrice)/0.5, 1.0)
		entryPrice = bestBid
	default:
		return nil, nil
	}

	if confidence < s.confidenceThreshold {
		return nil, nil
	}

	return &types.Signal{
		ConditionID: market.ConditionID,
		TokenID:     book.TokenID,
		Side:        side,
		Price:       entryPrice,
		SizeUSDC:    s.maxSizeUSDC * confidence,
		Confidence:  confidence,
		TimeHorizon: s.timeHorizon,
		RawData: map[string]interface{}{
			"strategy":   "momentum",
			"yes_price":  market.YesPrice,
			"volume_24h": market.Volume24h,
			"spread_pct": spreadPct,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}
