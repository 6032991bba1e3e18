package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// MarketExposure sums open position sizes for the agent in one market.
func (s *Postgres) MarketExposure(ctx context.Context, agentID, conditionID string) (float64, error) {
	var exposure float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size_usdc), 0)
		FROM positions
		WHERE agent_id = $1 AND condition_id = $2 AND is_open = TRUE
	`, agentID, conditionID).Scan(&exposure)
	return exposure, err
}

func (s *Postgres) OpenPositions(ctx context.Context, agentID string) ([]types.Position, error) {
	return s.scanPositions(ctx, `
		SELECT id, agent_id, condition_id, token_id, side, size_usdc,
		       avg_entry_price, current_price, unrealized_pnl, realized_pnl,
		       is_open, opened_at, closed_at
		FROM positions
		WHERE agent_id = $1 AND is_open = TRUE
	`, agentID)
}

// UpdatePositionMark refreshes a position's mark price and unrealized PnL.
func (s *Postgres) UpdatePositionMark(ctx context.Context, positionID string, markPrice, unrealized float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET current_price = $1, unrealized_pnl = $2, updated_at = NOW()
		WHERE id = $3
	`, markPrice, unrealized, positionID)
	return err
}

// SumUnrealizedPnL totals unrealized PnL over the agent's open positions.
func (s *Postgres) SumUnrealizedPnL(ctx context.Context, agentID string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(unrealized_pnl), 0)
		FROM positions
		WHERE agent_id = $1 AND is_open = TRUE
	`, agentID).Scan(&total)
	return total, err
}

func (s *Postgres) ListPositions(ctx context.Context, agentID string, isOpen *bool) ([]types.Position, error) {
	query := `
		SELECT id, agent_id, condition_id, token_id, side, size_usdc,
		       avg_entry_price, current_price, unrealized_pnl, realized_pnl,
		       is_open, opened_at, closed_at
		FROM positions
		WHERE TRUE`
	var args []interface{}
	query, args = filterEqual(query, args, "agent_id", agentID)
	if isOpen != nil {
		args = append(args, *isOpen)
		query = fmt.Sprintf("%s AND is_open = $%d", query, len(args))
	}
	query += ` ORDER BY opened_at DESC`

	return s.scanPositions(ctx, query, args...)
}

func (s *Postgres) scanPositions(ctx context.Context, query string, args ...interface{}) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		var pos types.Position
		err := rows.Scan(
			&pos.ID,
			&pos.AgentID,
			&pos.ConditionID,
			&pos.TokenID,
			&pos.Side,
			&pos.SizeUSDC,
			&pos.AvgEntryPrice,
			&pos.CurrentPrice,
			&pos.UnrealizedPnL,
			&pos.RealizedPnL,
			&pos.IsOpen,
			&pos.OpenedAt,
			&pos.ClosedAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan position")
			continue
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}
