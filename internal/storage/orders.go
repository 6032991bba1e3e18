package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// InsertOrder persists one execution attempt. Every risk-gated request ends
// up here exactly once, blocked attempts included.
func (s *Postgres) InsertOrder(ctx context.Context, order *types.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, agent_id, signal_id, exchange_order_id, condition_id, token_id,
			 side, order_type, price, size_usdc, status, block_reason,
			 raw_response, placed_at, created_at, updated_at)
		VALUES
			($1, $2, NULLIF($3, '')::uuid, NULLIF($4, ''), $5, $6,
			 $7, $8, $9, $10, $11, NULLIF($12, ''),
			 $13, $14, NOW(), NOW())
	`,
		order.ID,
		order.AgentID,
		order.SignalID,
		order.ExchangeOrderID,
		order.ConditionID,
		order.TokenID,
		order.Side,
		order.OrderType,
		order.Price,
		order.SizeUSDC,
		order.Status,
		order.BlockReason,
		order.RawResponse,
		order.PlacedAt,
	)
	return err
}

// OrderStatus returns the current lifecycle status of an order.
func (s *Postgres) OrderStatus(ctx context.Context, orderID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1`, orderID,
	).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("order %s not found", orderID)
		}
		return "", err
	}
	return status, nil
}

// MarkOrderCancelled moves an order to cancelled. Terminal states are never
// left; cancelling an already-terminal order is a no-op.
func (s *Postgres) MarkOrderCancelled(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND status NOT IN ('filled', 'cancelled', 'rejected', 'blocked')
	`, orderID)
	return err
}

// CountActiveOrdersSince counts recently created orders of the agent+market
// in an active status, for the cooldown check.
func (s *Postgres) CountActiveOrdersSince(ctx context.Context, agentID, conditionID string, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE agent_id = $1 AND condition_id = $2
		  AND status IN ('placed', 'partial', 'filled')
		  AND created_at > $3
	`, agentID, conditionID, cutoff).Scan(&count)
	return count, err
}

func (s *Postgres) CountOpenOrders(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE agent_id = $1 AND status IN ('pending', 'placed', 'partial')
	`, agentID).Scan(&count)
	return count, err
}

// LatestOpenOrderID finds the most recent non-terminal order for the same
// agent+market. The reconciler uses it as the best-effort fill match.
func (s *Postgres) LatestOpenOrderID(ctx context.Context, agentID, conditionID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM orders
		WHERE agent_id = $1 AND condition_id = $2
		  AND status IN ('placed', 'partial')
		ORDER BY created_at DESC LIMIT 1
	`, agentID, conditionID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (s *Postgres) ListOrders(ctx context.Context, agentID, status string, limit, offset int) ([]types.Order, error) {
	query := `
		SELECT id, agent_id, COALESCE(signal_id::text, ''), COALESCE(exchange_order_id, ''),
		       condition_id, token_id, side, order_type, price, size_usdc,
		       status, COALESCE(block_reason, ''), placed_at, cancelled_at,
		       created_at, updated_at
		FROM orders
		WHERE TRUE`
	var args []interface{}
	query, args = filterEqual(query, args, "agent_id", agentID)
	query, args = filterEqual(query, args, "status", status)
	query, args = withPage(query+` ORDER BY created_at DESC`, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var order types.Order
		err := rows.Scan(
			&order.ID,
			&order.AgentID,
			&order.SignalID,
			&order.ExchangeOrderID,
			&order.ConditionID,
			&order.TokenID,
			&order.Side,
			&order.OrderType,
			&order.Price,
			&order.SizeUSDC,
			&order.Status,
			&order.BlockReason,
			&order.PlacedAt,
			&order.CancelledAt,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan order")
			continue
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
