package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

// AgentRun joins an eligible agent with its active strategy configuration.
type AgentRun struct {
	Agent          types.Agent
	StrategyID     string
	TemplateType   string
	StrategyConfig map[string]interface{}
}

// WalletRef points at an agent's signing key without holding key material.
type WalletRef struct {
	AgentID       string
	Address       string
	SecretRef     string
	SecretBackend string
}

func (s *Postgres) Agent(ctx context.Context, id string) (*types.Agent, error) {
	var (
		agent  types.Agent
		wallet sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, mode, is_simulate, manual_approve, kill_switch,
		       is_enabled, status, wallet_profile_id, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Mode,
		&agent.IsSimulate,
		&agent.ManualApprove,
		&agent.KillSwitch,
		&agent.IsEnabled,
		&agent.Status,
		&wallet,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	agent.WalletProfileID = wallet.String
	return &agent, nil
}

// EligibleAgentRuns loads all agents the signal generator should evaluate:
// enabled, kill switch off, not in a terminal error state, with an active
// strategy attached.
func (s *Postgres) EligibleAgentRuns(ctx context.Context) ([]AgentRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.mode, a.is_simulate, a.manual_approve,
		       a.kill_switch, a.is_enabled, a.status, a.wallet_profile_id,
		       a.created_at, a.updated_at,
		       st.id, st.template_type, ast.config
		FROM agents a
		JOIN agent_strategies ast ON ast.agent_id = a.id AND ast.is_active = TRUE
		JOIN strategies st ON st.id = ast.strategy_id
		WHERE a.is_enabled = TRUE
		  AND a.status NOT IN ('killed', 'errored')
		  AND a.kill_switch = FALSE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AgentRun
	for rows.Next() {
		var (
			run        AgentRun
			wallet     sql.NullString
			configJSON []byte
		)
		err := rows.Scan(
			&run.Agent.ID,
			&run.Agent.Name,
			&run.Agent.Mode,
			&run.Agent.IsSimulate,
			&run.Agent.ManualApprove,
			&run.Agent.KillSwitch,
			&run.Agent.IsEnabled,
			&run.Agent.Status,
			&wallet,
			&run.Agent.CreatedAt,
			&run.Agent.UpdatedAt,
			&run.StrategyID,
			&run.TemplateType,
			&configJSON,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan agent run")
			continue
		}
		run.Agent.WalletProfileID = wallet.String

		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &run.StrategyConfig); err != nil {
				log.Error().Err(err).Str("agent", run.Agent.Name).Msg("Failed to parse strategy config")
				continue
			}
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// AgentWallet resolves the wallet reference attached to an agent.
// Returns nil when the agent has no wallet profile.
func (s *Postgres) AgentWallet(ctx context.Context, agentID string) (*WalletRef, error) {
	var ref WalletRef
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, wp.evm_address, wp.secret_ref, wp.secret_backend
		FROM agents a
		JOIN wallet_profiles wp ON wp.id = a.wallet_profile_id
		WHERE a.id = $1
	`, agentID).Scan(&ref.AgentID, &ref.Address, &ref.SecretRef, &ref.SecretBackend)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// AgentsWithWallets lists every enabled, non-killed agent that has a wallet,
// for position reconciliation.
func (s *Postgres) AgentsWithWallets(ctx context.Context) ([]WalletRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, wp.evm_address, wp.secret_ref, wp.secret_backend
		FROM agents a
		JOIN wallet_profiles wp ON wp.id = a.wallet_profile_id
		WHERE a.is_enabled = TRUE AND a.status NOT IN ('killed')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []WalletRef
	for rows.Next() {
		var ref WalletRef
		if err := rows.Scan(&ref.AgentID, &ref.Address, &ref.SecretRef, &ref.SecretBackend); err != nil {
			log.Error().Err(err).Msg("Failed to scan wallet ref")
			continue
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

func (s *Postgres) RiskLimits(ctx context.Context, agentID string) (*types.RiskLimits, error) {
	var limits types.RiskLimits
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, max_order_size_usdc, max_exposure_usdc, daily_loss_cap_usdc,
		       slippage_cap_pct, cooldown_seconds, max_open_orders
		FROM agent_risk_limits WHERE agent_id = $1
	`, agentID).Scan(
		&limits.AgentID,
		&limits.MaxOrderSizeUSDC,
		&limits.MaxExposureUSDC,
		&limits.DailyLossCapUSDC,
		&limits.SlippageCapPct,
		&limits.CooldownSeconds,
		&limits.MaxOpenOrders,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &limits, nil
}

func (s *Postgres) AllowlistCount(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_market_permissions
		WHERE agent_id = $1 AND permission_type = 'allowlist'
	`, agentID).Scan(&count)
	return count, err
}

func (s *Postgres) AllowlistContains(ctx context.Context, agentID, conditionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_market_permissions
		WHERE agent_id = $1 AND condition_id = $2 AND permission_type = 'allowlist'
	`, agentID, conditionID).Scan(&count)
	return count > 0, err
}

func (s *Postgres) DenylistContains(ctx context.Context, agentID, conditionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_market_permissions
		WHERE agent_id = $1 AND condition_id = $2 AND permission_type = 'denylist'
	`, agentID, conditionID).Scan(&count)
	return count > 0, err
}

// AllowlistMarkets returns the explicit allowlist condition ids for an agent.
func (s *Postgres) AllowlistMarkets(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id FROM agent_market_permissions
		WHERE agent_id = $1 AND permission_type = 'allowlist'
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
