// Package signals runs the periodic strategy evaluation cycle: one run per
// eligible agent per interval, agents in parallel with failure isolation,
// markets within an agent in sequence under a per-cycle cap.
package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/strategies"
	"github.com/sovrana/trading-engine/internal/types"
)

// Store is the persistence surface the generator reads and writes.
type Store interface {
	EligibleAgentRuns(ctx context.Context) ([]storage.AgentRun, error)
	AllowlistMarkets(ctx context.Context, agentID string) ([]string, error)
	InsertSignal(ctx context.Context, signal *types.Signal, runID, status string) error
	CreateStrategyRun(ctx context.Context, runID, agentID, strategyID string, config map[string]interface{}) error
	CompleteStrategyRun(ctx context.Context, runID string, signalsGenerated int) error
	Audit(ctx context.Context, eventType, agentID, entityType, entityID, message string, metadata map[string]interface{}, severity string) error
}

// MarketSource supplies cached market and order book snapshots.
type MarketSource interface {
	GetMarket(ctx context.Context, conditionID string) (*types.Market, bool)
	ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error)
	GetOrderBook(ctx context.Context, conditionID string) (*types.OrderBook, bool)
}

// Bus publishes signal notifications.
type Bus interface {
	PublishSignal(ctx context.Context, signal *types.Signal) error
}

// Submitter is the risk-then-execute pipeline.
type Submitter interface {
	Submit(ctx context.Context, request types.OrderRequest) types.ExecutionResult
}

type Generator struct {
	store    Store
	markets  MarketSource
	bus      Bus
	pipeline Submitter

	interval        time.Duration
	marketsPerCycle int
	activeLimit     int
}

func NewGenerator(store Store, markets MarketSource, bus Bus, pipeline Submitter, interval time.Duration, marketsPerCycle, activeLimit int) *Generator {
	return &Generator{
		store:           store,
		markets:         markets,
		bus:             bus,
		pipeline:        pipeline,
		interval:        interval,
		marketsPerCycle: marketsPerCycle,
		activeLimit:     activeLimit,
	}
}

// Run loops until ctx is cancelled. Cycle failures are logged and the loop
// continues on the next tick; nothing inside a cycle is fatal.
func (g *Generator) Run(ctx context.Context) {
	log.Info().Dur("interval", g.interval).Msg("Signal generator started")

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if err := g.cycle(ctx); err != nil {
			log.Error().Err(err).Msg("Signal generator cycle failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Signal generator stopped")
			return
		case <-ticker.C:
		}
	}
}

// cycle evaluates all eligible agents concurrently. One agent's failure
// never aborts another's evaluation.
func (g *Generator) cycle(ctx context.Context) error {
	runs, err := g.store.EligibleAgentRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func(run storage.AgentRun) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("agent", run.Agent.Name).
						Interface("panic", r).
						Msg("Agent evaluation panicked")
				}
			}()
			g.evaluateAgent(ctx, run)
		}(run)
	}
	wg.Wait()

	return nil
}

func (g *Generator) evaluateAgent(ctx context.Context, run storage.AgentRun) {
	agent := run.Agent

	// An unknown template aborts the agent's cycle before a strategy run is
	// opened.
	strategy, err := strategies.New(run.TemplateType, run.StrategyConfig)
	if err != nil {
		log.Warn().Str("agent", agent.Name).Err(err).Msg("Strategy construction failed")
		return
	}

	markets := g.resolveMarkets(ctx, agent.ID)
	if len(markets) == 0 {
		return
	}

	runID := uuid.NewString()
	if err := g.store.CreateStrategyRun(ctx, runID, agent.ID, run.StrategyID, run.StrategyConfig); err != nil {
		log.Error().Err(err).Str("agent", agent.Name).Msg("Failed to open strategy run")
		return
	}

	if len(markets) > g.marketsPerCycle {
		markets = markets[:g.marketsPerCycle]
	}

	signalsCreated := 0
	for _, market := range markets {
		if market.ConditionID == "" {
			continue
		}

		book, ok := g.markets.GetOrderBook(ctx, market.ConditionID)
		if !ok {
			continue
		}

		signal, err := g.evaluateMarket(strategy, &market, book)
		if err != nil {
			log.Error().
				Err(err).
				Str("agent", agent.Name).
				Str("condition_id", market.ConditionID).
				Msg("Strategy evaluation failed")
			continue
		}
		if signal == nil {
			continue
		}

		if g.dispatchSignal(ctx, agent, runID, signal) {
			signalsCreated++
		}
	}

	if err := g.store.CompleteStrategyRun(ctx, runID, signalsCreated); err != nil {
		log.Error().Err(err).Str("agent", agent.Name).Msg("Failed to close strategy run")
	}

	log.Info().
		Str("agent", agent.Name).
		Int("signals", signalsCreated).
		Msg("Agent evaluated")
}

// evaluateMarket isolates a single strategy invocation; a panicking strategy
// only skips its market.
func (g *Generator) evaluateMarket(strategy strategies.Strategy, market *types.Market, book *types.OrderBook) (signal *types.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			signal = nil
			err = asError(r)
		}
	}()
	return strategy.Evaluate(market, book)
}

// resolveMarkets fetches the agent's explicit allowlist markets, or a bounded
// top-N of active markets when the agent has no allowlist.
func (g *Generator) resolveMarkets(ctx context.Context, agentID string) []types.Market {
	allowlist, err := g.store.AllowlistMarkets(ctx, agentID)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Failed to read allowlist")
		return nil
	}

	if len(allowlist) > 0 {
		var markets []types.Market
		for _, conditionID := range allowlist {
			if market, ok := g.markets.GetMarket(ctx, conditionID); ok {
				markets = append(markets, *market)
			}
		}
		return markets
	}

	markets, err := g.markets.ListActiveMarkets(ctx, g.activeLimit)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Could not fetch markets")
		return nil
	}
	return markets
}

// dispatchSignal persists and publishes one signal, and forwards it to the
// execution pipeline when the agent qualifies for auto-submission.
func (g *Generator) dispatchSignal(ctx context.Context, agent types.Agent, runID string, signal *types.Signal) bool {
	signal.ID = uuid.NewString()
	signal.AgentID = agent.ID

	status := types.SignalApproved
	if agent.ManualApprove {
		status = types.SignalPending
	}

	if err := g.store.InsertSignal(ctx, signal, runID, status); err != nil {
		log.Error().Err(err).Str("agent", agent.Name).Msg("Failed to persist signal")
		return false
	}

	message := fmt.Sprintf("Signal generated: %s %s confidence=%.3f",
		signal.Side, signal.ConditionID, signal.Confidence)
	if err := g.store.Audit(ctx, "signal_generated", agent.ID, "signal", signal.ID,
		message, signal.RawData, types.SeverityInfo); err != nil {
		log.Error().Err(err).Str("signal_id", signal.ID).Msg("Failed to audit signal")
	}

	if err := g.bus.PublishSignal(ctx, signal); err != nil {
		log.Error().Err(err).Str("signal_id", signal.ID).Msg("Failed to publish signal")
	}

	if !agent.ManualApprove && agent.Mode == types.ModeTradingEnabled && !agent.IsSimulate {
		result := g.pipeline.Submit(ctx, types.OrderRequest{
			AgentID:     agent.ID,
			SignalID:    signal.ID,
			ConditionID: signal.ConditionID,
			TokenID:     signal.TokenID,
			Side:        signal.Side,
			Price:       signal.Price,
			SizeUSDC:    signal.SizeUSDC,
			Confidence:  signal.Confidence,
			OrderType:   "limit",
		})
		log.Info().
			Str("signal_id", signal.ID).
			Str("status", result.Status).
			Str("order_id", result.OrderID).
			Msg("Signal submitted to execution")
	}

	return true
}

func asError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("strategy panic: %v", r)
}
