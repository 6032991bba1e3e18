package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sovrana/trading-engine/internal/types"
)

func book(bid, ask float64) *types.OrderBook {
	return &types.OrderBook{
		TokenID: "token-yes",
		Bids:    []types.BookLevel{{Price: bid, Size: 100}},
		Asks:    []types.BookLevel{{Price: ask, Size: 100}},
	}
}

func market(yesPrice, volume float64) *types.Market {
	return &types.Market{
		ConditionID: "0xmarket",
		YesPrice:    yesPrice,
		NoPrice:     1 - yesPrice,
		Volume24h:   volume,
		Active:      true,
	}
}

func TestRegistry(t *testing.T) {
	RegisterAll()

	for _, template := range []string{"mean_reversion", "momentum", "liquidity_provision"} {
		strategy, err := New(template, nil)
		require.NoError(t, err, template)
		assert.NotNil(t, strategy)
	}

	_, err := New("arbitrage", nil)
	assert.Error(t, err)
}

func TestMeanReversion(t *testing.T) {
	strategy := NewMeanReversion(nil)

	t.Run("buys deep below fair value", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.35, 50000), book(0.34, 0.36))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, "buy", signal.Side)
		assert.Equal(t, 0.36, signal.Price) // crosses the ask
		assert.Equal(t, 1.0, signal.Confidence)
	})

	t.Run("sells far above fair value", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.70, 50000), book(0.69, 0.71))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, "sell", signal.Side)
		assert.Equal(t, 0.69, signal.Price) // hits the bid
	})

	t.Run("no signal near fair value", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.52, 50000), book(0.51, 0.53))
		require.NoError(t, err)
		assert.Nil(t, signal)
	})

	t.Run("no signal on empty book", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.35, 50000), &types.OrderBook{TokenID: "token-yes"})
		require.NoError(t, err)
		assert.Nil(t, signal)
	})

	t.Run("size scales with confidence", func(t *testing.T) {
		sized := NewMeanReversion(map[string]interface{}{"max_size_usdc": 80.0})
		signal, err := sized.Evaluate(market(0.35, 50000), book(0.34, 0.36))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, 80.0, signal.SizeUSDC)
	})
}

func TestMomentum(t *testing.T) {
	strategy := NewMomentum(nil)

	t.Run("follows an uptrend", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.80, 50000), book(0.79, 0.81))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, "buy", signal.Side)
		assert.Equal(t, 0.81, signal.Price)
		assert.InDelta(t, 0.6, signal.Confidence, 1e-9)
	})

	t.Run("fades toward NO on a downtrend", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.20, 50000), book(0.19, 0.21))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, "sell", signal.Side)
		assert.Equal(t, 0.19, signal.Price)
	})

	t.Run("skips thin markets", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.80, 500), book(0.79, 0.81))
		require.NoError(t, err)
		assert.Nil(t, signal)
	})

	t.Run("skips wide spreads", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.80, 50000), book(0.60, 0.85))
		require.NoError(t, err)
		assert.Nil(t, signal)
	})

	t.Run("weak momentum stays out", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.57, 50000), book(0.56, 0.58))
		require.NoError(t, err)
		assert.Nil(t, signal)
	})
}

func TestLiquidityProvision(t *testing.T) {
	strategy := NewLiquidityProvision(nil)

	t.Run("quotes inside a wide spread", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.50, 50000), book(0.45, 0.55))
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, "buy", signal.Side)
		// mid 0.50, half the spread target inside
		assert.Equal(t, 0.49, signal.Price)
		assert.Equal(t, 1.0, signal.Confidence)
	})

	t.Run("stays out of tight spreads", func(t *testing.T) {
		signal, err := strategy.Evaluate(market(0.50, 50000), book(0.495, 0.505))
		require.NoError(t, err)
		assert.Nil(t, signal)
	})
}

func TestConfigOptions(t *testing.T) {
	// JSON-decoded configs carry numbers as float64
	config := map[string]interface{}{
		"confidence_threshold": 0.9,
		"time_horizon":         float64(600),
	}

	strategy := NewMeanReversion(config).(*MeanReversion)
	assert.Equal(t, 0.9, strategy.confidenceThreshold)
	assert.Equal(t, 600, strategy.timeHorizon)

	// missing keys fall back to defaults
	bare := NewMomentum(map[string]interface{}{}).(*Momentum)
	assert.Equal(t, 0.05, bare.momentumThreshold)
}
