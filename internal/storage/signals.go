package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sovrana/trading-engine/internal/types"
)

func (s *Postgres) InsertSignal(ctx context.Context, signal *types.Signal, runID, status string) error {
	rawData, err := json.Marshal(signal.RawData)
	if err != nil {
		return fmt.Errorf("failed to marshal signal raw data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals
			(id, agent_id, strategy_run_id, condition_id, token_id,
			 side, price, size_usdc, confidence, time_horizon,
			 status, raw_data, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`,
		signal.ID,
		signal.AgentID,
		runID,
		signal.ConditionID,
		signal.TokenID,
		signal.Side,
		signal.Price,
		signal.SizeUSDC,
		signal.Confidence,
		signal.TimeHorizon,
		status,
		rawData,
	)
	return err
}

// CreateStrategyRun opens a run record in status running.
func (s *Postgres) CreateStrategyRun(ctx context.Context, runID, agentID, strategyID string, config map[string]interface{}) error {
	meta, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategy_runs
			(id, agent_id, strategy_id, status, started_at, run_metadata)
		VALUES
			($1, $2, $3, 'running', NOW(), $4)
	`, runID, agentID, strategyID, meta)
	return err
}

// CompleteStrategyRun closes a run with its signal count, regardless of how
// many markets were actually evaluated.
func (s *Postgres) CompleteStrategyRun(ctx context.Context, runID string, signalsGenerated int) error {
	meta, _ := json.Marshal(map[string]interface{}{"signals_generated": signalsGenerated})

	_, err := s.db.ExecContext(ctx, `
		UPDATE strategy_runs
		SET status = 'completed', completed_at = NOW(),
		    run_metadata = run_metadata || $1
		WHERE id = $2
	`, meta, runID)
	return err
}
