// Package risk gates every order request behind the per-agent limit set.
// Checks run in a strict order and short-circuit at the first failure; a
// blocked request is never silently dropped, the caller persists it.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sovrana/trading-engine/internal/types"
)

// Check names reported in RiskDecision.Checks, in evaluation order.
const (
	CheckGlobalKillSwitch = "global_kill_switch"
	CheckAgentKillSwitch  = "agent_kill_switch"
	CheckAgentMode        = "agent_mode"
	CheckMarketAllowlist  = "market_allowlist"
	CheckMarketDenylist   = "market_denylist"
	CheckMaxOrderSize     = "max_order_size"
	CheckMaxExposure      = "max_exposure"
	CheckDailyLossCap     = "daily_loss_cap"
	CheckSlippageCap      = "slippage_cap"
	CheckCooldown         = "cooldown"
	CheckMaxOpenOrders    = "max_open_orders"
)

// Store is the read-only persistence surface the engine evaluates against.
// Everything is read fresh on each call; kill switches are never cached.
type Store interface {
	GlobalKillSwitch(ctx context.Context) (bool, error)
	Agent(ctx context.Context, id string) (*types.Agent, error)
	RiskLimits(ctx context.Context, agentID string) (*types.RiskLimits, error)
	AllowlistCount(ctx context.Context, agentID string) (int, error)
	AllowlistContains(ctx context.Context, agentID, conditionID string) (bool, error)
	DenylistContains(ctx context.Context, agentID, conditionID string) (bool, error)
	MarketExposure(ctx context.Context, agentID, conditionID string) (float64, error)
	DailyLoss(ctx context.Context, agentID string, day time.Time) (float64, error)
	CountActiveOrdersSince(ctx context.Context, agentID, conditionID string, cutoff time.Time) (int, error)
	CountOpenOrders(ctx context.Context, agentID string) (int, error)
}

// MidpointSource supplies the reference mid price for the slippage check.
type MidpointSource interface {
	GetMidpoint(ctx context.Context, tokenID string) (float64, bool)
}

type Engine struct {
	store      Store
	midpoints  MidpointSource
	staticKill bool
}

// NewEngine builds a risk engine. staticKill is the configuration-level
// global kill switch; the persisted toggle is read on every evaluation.
func NewEngine(store Store, midpoints MidpointSource, staticKill bool) *Engine {
	return &Engine{
		store:      store,
		midpoints:  midpoints,
		staticKill: staticKill,
	}
}

// Evaluate runs all checks for the request. The returned decision carries the
// outcome of every check attempted before the decision was finalized and, on
// approval, the cumulative adjusted size (never above the requested size).
// Errors are infrastructure read failures; the caller blocks the order.
func (e *Engine) Evaluate(ctx context.Context, request types.OrderRequest) (types.RiskDecision, error) {
	checks := make(map[string]bool)

	denied := func(reason string) types.RiskDecision {
		return types.RiskDecision{Approved: false, Reason: reason, Checks: checks}
	}

	// 1. Global kill switch: static config flag OR persisted toggle.
	persistedKill, err := e.store.GlobalKillSwitch(ctx)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read global kill switch: %w", err)
	}
	globalKill := e.staticKill || persistedKill
	checks[CheckGlobalKillSwitch] = !globalKill
	if globalKill {
		return denied("Global kill switch is active"), nil
	}

	agent, err := e.store.Agent(ctx, request.AgentID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent == nil {
		return denied("Agent not found"), nil
	}

	limits, err := e.store.RiskLimits(ctx, request.AgentID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to load risk limits: %w", err)
	}
	if limits == nil {
		return denied("Risk limits not configured"), nil
	}

	// 2. Agent kill switch
	checks[CheckAgentKillSwitch] = !agent.KillSwitch
	if agent.KillSwitch {
		return denied("Agent kill switch is active"), nil
	}

	// 3. Agent must be trading enabled
	checks[CheckAgentMode] = agent.Mode == types.ModeTradingEnabled
	if !checks[CheckAgentMode] {
		return denied("Agent is in read-only mode"), nil
	}

	// 4. Market allowlist; an agent with no allowlist entries is unrestricted
	allowlistCount, err := e.store.AllowlistCount(ctx, request.AgentID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read allowlist: %w", err)
	}
	allowed := true
	if allowlistCount > 0 {
		allowed, err = e.store.AllowlistContains(ctx, request.AgentID, request.ConditionID)
		if err != nil {
			return types.RiskDecision{}, fmt.Errorf("failed to read allowlist: %w", err)
		}
	}
	checks[CheckMarketAllowlist] = allowed
	if !allowed {
		return denied(fmt.Sprintf("Market %s not in agent allowlist", request.ConditionID)), nil
	}

	// 5. Market denylist, independent of the allowlist
	deniedMarket, err := e.store.DenylistContains(ctx, request.AgentID, request.ConditionID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read denylist: %w", err)
	}
	checks[CheckMarketDenylist] = !deniedMarket
	if deniedMarket {
		return denied(fmt.Sprintf("Market %s is in agent denylist", request.ConditionID)), nil
	}

	// 6. Max order size: clamp, not a rejection
	checks[CheckMaxOrderSize] = request.SizeUSDC <= limits.MaxOrderSizeUSDC
	adjustedSize := math.Min(request.SizeUSDC, limits.MaxOrderSizeUSDC)

	// 7. Exposure headroom: zero or negative headroom blocks; otherwise the
	// size is further capped, cumulative with the order-size clamp.
	exposure, err := e.store.MarketExposure(ctx, request.AgentID, request.ConditionID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read market exposure: %w", err)
	}
	headroom := limits.MaxExposureUSDC - exposure
	checks[CheckMaxExposure] = headroom > 0
	if headroom <= 0 {
		return denied(fmt.Sprintf("Max exposure reached for market %s: %.2f/%.2f USDC",
			request.ConditionID, exposure, limits.MaxExposureUSDC)), nil
	}
	adjustedSize = math.Min(adjustedSize, headroom)

	// 8. Daily loss cap
	dailyLoss, err := e.store.DailyLoss(ctx, request.AgentID, time.Now().UTC())
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read daily loss: %w", err)
	}
	checks[CheckDailyLossCap] = dailyLoss < limits.DailyLossCapUSDC
	if !checks[CheckDailyLossCap] {
		return denied(fmt.Sprintf("Daily loss cap reached: %.2f/%.2f USDC",
			dailyLoss, limits.DailyLossCapUSDC)), nil
	}

	// 9. Slippage cap; passes open when no reference mid is available
	slippageCap := limits.SlippageCapPct / 100
	slippageOK := true
	if mid, ok := e.midpoints.GetMidpoint(ctx, request.TokenID); ok && mid > 0 {
		slippageOK = math.Abs(request.Price-mid)/mid <= slippageCap
	}
	checks[CheckSlippageCap] = slippageOK
	if !slippageOK {
		return denied(fmt.Sprintf("Order price %g exceeds slippage cap of %.1f%%",
			request.Price, limits.SlippageCapPct)), nil
	}

	// 10. Cooldown between orders for the same market
	cutoff := time.Now().UTC().Add(-time.Duration(limits.CooldownSeconds) * time.Second)
	recent, err := e.store.CountActiveOrdersSince(ctx, request.AgentID, request.ConditionID, cutoff)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to read recent orders: %w", err)
	}
	checks[CheckCooldown] = recent == 0
	if recent > 0 {
		return denied("Cooldown period not elapsed for this market"), nil
	}

	// 11. Max open orders
	openOrders, err := e.store.CountOpenOrders(ctx, request.AgentID)
	if err != nil {
		return types.RiskDecision{}, fmt.Errorf("failed to count open orders: %w", err)
	}
	checks[CheckMaxOpenOrders] = openOrders < limits.MaxOpenOrders
	if !checks[CheckMaxOpenOrders] {
		return denied(fmt.Sprintf("Max open orders reached: %d/%d",
			openOrders, limits.MaxOpenOrders)), nil
	}

	return types.RiskDecision{
		Approved:     true,
		Reason:       "All risk checks passed",
		Checks:       checks,
		AdjustedSize: adjustedSize,
	}, nil
}
