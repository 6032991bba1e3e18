// Package reconciler closes the loop between exchange-reported fills and
// local order, position and PnL state. It runs on its own interval,
// independent of signal generation, so risk checks see fresh exposure and
// loss numbers.
package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/types"
)

const activityLimit = 200

// Store is the persistence surface the reconciler reads and writes.
type Store interface {
	AgentsWithWallets(ctx context.Context) ([]storage.WalletRef, error)
	FillExists(ctx context.Context, exchangeFillID string) (bool, error)
	InsertFill(ctx context.Context, fill *types.Fill) error
	LatestOpenOrderID(ctx context.Context, agentID, conditionID string) (string, error)
	DayFillStats(ctx context.Context, agentID string, day time.Time) (realized, volume float64, tradeCount int, err error)
	OpenPositions(ctx context.Context, agentID string) ([]types.Position, error)
	UpdatePositionMark(ctx context.Context, positionID string, markPrice, unrealized float64) error
	SumUnrealizedPnL(ctx context.Context, agentID string) (float64, error)
	UpsertPnLSnapshot(ctx context.Context, snap *types.PnLSnapshot) error
}

// ActivitySource supplies the exchange activity feed for a wallet.
type ActivitySource interface {
	ActivityFeed(ctx context.Context, walletAddress string, limit int) ([]types.Activity, error)
}

// MidpointSource supplies mark prices for open positions.
type MidpointSource interface {
	GetMidpoint(ctx context.Context, tokenID string) (float64, bool)
}

type Reconciler struct {
	store     Store
	activity  ActivitySource
	midpoints MidpointSource
	interval  time.Duration
}

func NewReconciler(store Store, activity ActivitySource, midpoints MidpointSource, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:     store,
		activity:  activity,
		midpoints: midpoints,
		interval:  interval,
	}
}

// Run loops until ctx is cancelled; cycle errors are logged, never fatal.
func (r *Reconciler) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("Position reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.reconcileAll(ctx); err != nil {
			log.Error().Err(err).Msg("Reconciler cycle failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Position reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) reconcileAll(ctx context.Context) error {
	agents, err := r.store.AgentsWithWallets(ctx)
	if err != nil {
		return err
	}

	for _, agent := range agents {
		if err := r.reconcileAgent(ctx, agent.AgentID, agent.Address); err != nil {
			log.Error().Err(err).Str("agent_id", agent.AgentID).Msg("Reconcile failed for agent")
		}
	}

	return nil
}

func (r *Reconciler) reconcileAgent(ctx context.Context, agentID, walletAddress string) error {
	activities, err := r.activity.ActivityFeed(ctx, walletAddress, activityLimit)
	if err != nil {
		log.Warn().Err(err).Str("wallet", walletAddress).Msg("Could not fetch activity")
		return nil
	}

	for _, activity := range activities {
		if activity.Type != "trade" {
			continue
		}
		if err := r.recordFill(ctx, agentID, activity); err != nil {
			log.Error().Err(err).Str("fill_id", activity.ID).Msg("Failed to record fill")
		}
	}

	r.refreshPositionMarks(ctx, agentID)

	if err := r.updatePnLSnapshot(ctx, agentID); err != nil {
		return err
	}

	log.Debug().Int("activities", len(activities)).Str("agent_id", agentID).Msg("Reconciled agent")
	return nil
}

// recordFill inserts one exchange fill, skipping ids already recorded.
func (r *Reconciler) recordFill(ctx context.Context, agentID string, activity types.Activity) error {
	if activity.ID == "" {
		return nil
	}

	exists, err := r.store.FillExists(ctx, activity.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	orderID := r.matchOrder(ctx, agentID, activity.ConditionID)

	filledAt := activity.Timestamp
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}

	raw, _ := json.Marshal(activity)

	side := activity.Side
	if side == "" {
		side = "buy"
	}

	return r.store.InsertFill(ctx, &types.Fill{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		AgentID:        agentID,
		ExchangeFillID: activity.ID,
		ConditionID:    activity.ConditionID,
		TokenID:        activity.TokenID,
		Side:           side,
		Price:          activity.Price,
		SizeUSDC:       activity.SizeUSDC,
		FeeUSDC:        activity.FeeUSDC,
		FilledAt:       filledAt,
		RawData:        string(raw),
	})
}

// matchOrder associates a fill with the most recent non-terminal order for
// the same agent+market. The heuristic is deliberately isolated here so a
// stricter match (price/size/timestamp proximity) can replace it without
// touching persistence.
func (r *Reconciler) matchOrder(ctx context.Context, agentID, conditionID string) string {
	orderID, err := r.store.LatestOpenOrderID(ctx, agentID, conditionID)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Order match lookup failed")
	}
	if orderID == "" {
		// No candidate; synthesize an order reference so the fill is kept.
		return uuid.NewString()
	}
	return orderID
}

// refreshPositionMarks updates each open position's mark price and
// unrealized PnL from the current midpoint. A missing midpoint leaves the
// previous mark in place.
func (r *Reconciler) refreshPositionMarks(ctx context.Context, agentID string) {
	positions, err := r.store.OpenPositions(ctx, agentID)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Could not load open positions")
		return
	}

	for _, pos := range positions {
		mid, ok := r.midpoints.GetMidpoint(ctx, pos.TokenID)
		if !ok {
			continue
		}

		unrealized := UnrealizedPnL(pos, mid)
		if err := r.store.UpdatePositionMark(ctx, pos.ID, mid, unrealized); err != nil {
			log.Error().Err(err).Str("position_id", pos.ID).Msg("Failed to update position mark")
		}
	}
}

// UnrealizedPnL values an open position against a mark price. Sizes are in
// quote currency, so the PnL is the relative price move applied to the
// position size, signed by direction.
func UnrealizedPnL(pos types.Position, markPrice float64) float64 {
	if pos.AvgEntryPrice == 0 {
		return 0
	}

	size := decimal.NewFromFloat(pos.SizeUSDC)
	entry := decimal.NewFromFloat(pos.AvgEntryPrice)
	mark := decimal.NewFromFloat(markPrice)

	move := mark.Sub(entry).Div(entry)
	if pos.Side == "sell" {
		move = move.Neg()
	}

	result, _ := size.Mul(move).Round(6).Float64()
	return result
}

// updatePnLSnapshot recomputes the day's snapshot: realized PnL under the
// cash-flow convention plus current unrealized PnL from open positions,
// upserted idempotently by (agent, date).
func (r *Reconciler) updatePnLSnapshot(ctx context.Context, agentID string) error {
	today := time.Now().UTC()

	realized, volume, tradeCount, err := r.store.DayFillStats(ctx, agentID, today)
	if err != nil {
		return err
	}

	unrealized, err := r.store.SumUnrealizedPnL(ctx, agentID)
	if err != nil {
		return err
	}

	return r.store.UpsertPnLSnapshot(ctx, &types.PnLSnapshot{
		AgentID:       agentID,
		SnapshotDate:  today,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      realized + unrealized,
		TotalVolume:   volume,
		TradeCount:    tradeCount,
	})
}
