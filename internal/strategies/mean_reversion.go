package strategies

import (
	"math"
	"time"

	"github.com/sovrana/trading-engine/internal/types"
)

// MeanReversion buys YES when the market price sits well below a neutral
// fair value and sells when well above it.
type MeanReversion struct {
	confidenceThreshold float64
	maxSizeUSDC         float64
	timeHorizon         int
	deviationThreshold  float64
	lookbackPeriods     int
}

func NewMeanReversion(config map[string]interface{}) Strategy {
	return &MeanReversion{
		confidenceThreshold: floatOption(config, "confidence_threshold", 0.6),
		maxSizeUSDC:         floatOption(config, "max_size_usdc", 50),
		timeHorizon:         intOption(config, "time_horizon", 3600),
		deviationThreshold:  floatOption(config, "deviation_threshold", 0.08),
		lookbackPeriods:     intOption(config, "lookback_periods", 10),
	}
}

func (s *MeanReversion) Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error) {
	if market.YesPrice == 0 || market.NoPrice == 0 {
		return nil, nil
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, nil
	}

	avgBid := averagePrice(book.Bids, s.lookbackPeriods)
	avgAsk := averagePrice(book.Asks, s.lookbackPeriods)
	mid := (avgBid + avgAsk) / 2

	// Neutral prior; adjust with a model
	const fairValue = 0.5

	deviation := market.YesPrice - fairValue
	confidence := math.Min(math.Abs(deviation)/s.deviationThreshold, 1.0)
	if confidence < s.confidenceThreshold {
		return nil, nil
	}

	var side string
	var entryPrice float64
	switch {
	case deviation < -s.deviationThreshold:
		side = "buy"
		entryPrice = book.Asks[0].Price
	case deviation > s.deviationThreshold:
		side = "sell"
		entryPrice = book.Bids[0].Price
	default:
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
			"strategy":   "mean_reversion",
			"yes_price":  market.YesPrice,
			"fair_value": fairValue,
			"deviation":  deviation,
			"mid":        mid,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func averagePrice(levels []types.BookLevel, lookback int) float64 {
	if lookback > len(levels) {
		lookback = len(levels)
	}
	if lookback == 0 {
		return 0
	}

	var sum float64
	for _, level := range levels[:lookback] {
		sum += level.Price
	}
	return sum / float64(lookback)
}
