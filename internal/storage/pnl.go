package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// DailyLoss returns the absolute value of the day's negative realized PnL,
// zero when the agent is flat or profitable.
func (s *Postgres) DailyLoss(ctx context.Context, agentID string, day time.Time) (float64, error) {
	var loss float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(ABS(MIN(realized_pnl)), 0)
		FROM pnl_snapshots
		WHERE agent_id = $1 AND snapshot_date = $2::date AND realized_pnl < 0
	`, agentID, day).Scan(&loss)
	return loss, err
}

// UpsertPnLSnapshot writes the day's snapshot keyed by (agent, date).
func (s *Postgres) UpsertPnLSnapshot(ctx context.Context, snap *types.PnLSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pnl_snapshots
			(agent_id, snapshot_date, realized_pnl, unrealized_pnl, total_pnl,
			 total_volume, trade_count)
		VALUES
			($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id, snapshot_date)
		DO UPDATE SET
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			total_pnl = EXCLUDED.total_pnl,
			total_volume = EXCLUDED.total_volume,
			trade_count = EXCLUDED.trade_count
	`,
		snap.AgentID,
		snap.SnapshotDate,
		snap.RealizedPnL,
		snap.UnrealizedPnL,
		snap.TotalPnL,
		snap.TotalVolume,
		snap.TradeCount,
	)
	return err
}

func (s *Postgres) ListPnLSnapshots(ctx context.Context, agentID string, days int) ([]types.PnLSnapshot, error) {
	query := `
		SELECT agent_id, snapshot_date, realized_pnl, unrealized_pnl, total_pnl,
		       total_volume, trade_count
		FROM pnl_snapshots
		WHERE snapshot_date >= CURRENT_DATE - $1::int`
	args := []interface{}{days}
	query, args = filterEqual(query, args, "agent_id", agentID)
	query += ` ORDER BY snapshot_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []types.PnLSnapshot
	for rows.Next() {
		var snap types.PnLSnapshot
		err := rows.Scan(
			&snap.AgentID,
			&snap.SnapshotDate,
			&snap.RealizedPnL,
			&snap.UnrealizedPnL,
			&snap.TotalPnL,
			&snap.TotalVolume,
			&snap.TradeCount,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan pnl snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}
