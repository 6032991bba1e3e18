// Package pipeline joins the risk engine and the order executor into the
// single synchronous path every order request travels: evaluate, then either
// record the denial or execute. Both the HTTP boundary and the signal
// generator submit through it.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/types"
)

type RiskEngine interface {
	Evaluate(ctx context.Context, request types.OrderRequest) (types.RiskDecision, error)
}

type Executor interface {
	Execute(ctx context.Context, request types.OrderRequest, decision types.RiskDecision) types.ExecutionResult
	RecordBlocked(ctx context.Context, request types.OrderRequest, decision types.RiskDecision) types.ExecutionResult
	Cancel(ctx context.Context, agentID, orderID, exchangeOrderID string) types.CancelResult
}

type Pipeline struct {
	risk RiskEngine
	exec Executor
}

func New(risk RiskEngine, exec Executor) *Pipeline {
	return &Pipeline{risk: risk, exec: exec}
}

// Submit runs one request through risk gating and execution. A risk denial
// or an evaluation failure still produces exactly one persisted blocked
// order; Submit never returns an error.
func (p *Pipeline) Submit(ctx context.Context, request types.OrderRequest) types.ExecutionResult {
	if request.OrderType == "" {
		request.OrderType = "limit"
	}

	decision, err := p.risk.Evaluate(ctx, request)
	if err != nil {
		log.Error().Err(err).Str("agent_id", request.AgentID).Msg("Risk evaluation failed")
		return p.exec.RecordBlocked(ctx, request, types.RiskDecision{
			Reason: fmt.Sprintf("Risk evaluation failed: %v", err),
			Checks: map[string]bool{},
		})
	}

	if !decision.Approved {
		log.Warn().
			Str("agent_id", request.AgentID).
			Str("condition_id", request.ConditionID).
			Str("reason", decision.Reason).
			Msg("Order blocked")
		return p.exec.RecordBlocked(ctx, request, decision)
	}

	return p.exec.Execute(ctx, request, decision)
}

// Cancel passes a cancellation through to the executor.
func (p *Pipeline) Cancel(ctx context.Context, agentID, orderID, exchangeOrderID string) types.CancelResult {
	return p.exec.Cancel(ctx, agentID, orderID, exchangeOrderID)
}
