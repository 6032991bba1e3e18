// Package strategies holds the pluggable strategy templates. Templates
// register into a factory map at startup; no dynamic code loading.
package strategies

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// Strategy evaluates one market snapshot and returns a signal, or nil when
// there is nothing to trade.
type Strategy interface {
	Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error)
}

// Factory builds a strategy instance from an agent's strategy config.
type Factory func(config map[string]interface{}) Strategy

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func Register(templateType string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	registry[templateType] = factory
	log.Info().Str("template", templateType).Msg("Registered strategy template")
}

// New constructs a strategy for the template type. An unknown template is a
// configuration error; the agent's cycle is aborted by the caller.
func New(templateType string, config map[string]interface{}) (Strategy, error) {
	mu.RLock()
	factory, ok := registry[templateType]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy template: %s", templateType)
	}
	return factory(config), nil
}

// RegisterAll registers every built-in strategy template.
func RegisterAll() {
	Register("mean_reversion", NewMeanReversion)
	Register("momentum", NewMomentum)
	Register("liquidity_provision", NewLiquidityProvision)
}

// shared config helpers

func floatOption(config map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := config[key].(float64); ok {
		return v
	}
	return fallback
}

func intOption(config map[string]interface{}, key string, fallback int) int {
	if v, ok := config[key].(float64); ok {
		return int(v)
	}
	if v, ok := config[key].(int); ok {
		return v
	}
	return fallback
}
