package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// FillExists reports whether an exchange fill id has already been recorded.
// The unique key keeps fill persistence idempotent under retry.
func (s *Postgres) FillExists(ctx context.Context, exchangeFillID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fills WHERE exchange_fill_id = $1`,
		exchangeFillID,
	).Scan(&count)
	return count > 0, err
}

func (s *Postgres) InsertFill(ctx context.Context, fill *types.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills
			(id, order_id, agent_id, exchange_fill_id, condition_id, token_id,
			 side, fill_price, fill_size_usdc, fee_usdc, filled_at, raw_data)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (exchange_fill_id) DO NOTHING
	`,
		fill.ID,
		fill.OrderID,
		fill.AgentID,
		fill.ExchangeFillID,
		fill.ConditionID,
		fill.TokenID,
		fill.Side,
		fill.Price,
		fill.SizeUSDC,
		fill.FeeUSDC,
		fill.FilledAt,
		fill.RawData,
	)
	return err
}

// DayFillStats aggregates one day of fills under the cash-flow convention:
// sells add to realized PnL, buys subtract.
func (s *Postgres) DayFillStats(ctx context.Context, agentID string, day time.Time) (realized, volume float64, tradeCount int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN side = 'sell' THEN fill_size_usdc ELSE -fill_size_usdc END), 0),
			COALESCE(SUM(fill_size_usdc), 0),
			COUNT(*)
		FROM fills
		WHERE agent_id = $1 AND filled_at::date = $2::date
	`, agentID, day).Scan(&realized, &volume, &tradeCount)
	return realized, volume, tradeCount, err
}

func (s *Postgres) ListFills(ctx context.Context, agentID string, limit, offset int) ([]types.Fill, error) {
	query := `
		SELECT id, order_id, agent_id, exchange_fill_id, condition_id, token_id,
		       side, fill_price, fill_size_usdc, fee_usdc, filled_at
		FROM fills
		WHERE TRUE`
	var args []interface{}
	query, args = filterEqual(query, args, "agent_id", agentID)
	query, args = withPage(query+` ORDER BY filled_at DESC`, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []types.Fill
	for rows.Next() {
		var fill types.Fill
		err := rows.Scan(
			&fill.ID,
			&fill.OrderID,
			&fill.AgentID,
			&fill.ExchangeFillID,
			&fill.ConditionID,
			&fill.TokenID,
			&fill.Side,
			&fill.Price,
			&fill.SizeUSDC,
			&fill.FeeUSDC,
			&fill.FilledAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan fill")
			continue
		}
		fills = append(fills, fill)
	}

	return fills, rows.Err()
}
