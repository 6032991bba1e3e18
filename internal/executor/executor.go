// Package executor owns the signing, submission and status-recording
// lifecycle of orders. It is the only component that talks to the exchange's
// order-placement endpoint, and it never propagates a failure to its caller:
// every outcome is a persisted order plus an audit entry.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/types"
	"github.com/sovrana/trading-engine/internal/wallet"
)

// Store is the persistence surface the executor writes through.
type Store interface {
	Agent(ctx context.Context, id string) (*types.Agent, error)
	AgentWallet(ctx context.Context, agentID string) (*storage.WalletRef, error)
	InsertOrder(ctx context.Context, order *types.Order) error
	OrderStatus(ctx context.Context, orderID string) (string, error)
	MarkOrderCancelled(ctx context.Context, orderID string) error
	Audit(ctx context.Context, eventType, agentID, entityType, entityID, message string, metadata map[string]interface{}, severity string) error
}

// Exchange is the CLOB surface: build a signed payload, submit it, cancel.
type Exchange interface {
	BuildOrder(identity *wallet.Identity, tokenID, side string, price, size float64) map[string]interface{}
	PlaceOrder(ctx context.Context, order map[string]interface{}) (map[string]interface{}, error)
	CancelOrder(ctx context.Context, identity *wallet.Identity, exchangeOrderID string) error
}

type Executor struct {
	store   Store
	wallets wallet.Resolver
	clob    Exchange
}

func NewExecutor(store Store, wallets wallet.Resolver, clob Exchange) *Executor {
	return &Executor{
		store:   store,
		wallets: wallets,
		clob:    clob,
	}
}

// Execute places an order after risk approval. Wallet resolution failures are
// configuration errors: the order is persisted as blocked and never signed.
func (e *Executor) Execute(ctx context.Context, request types.OrderRequest, decision types.RiskDecision) types.ExecutionResult {
	orderID := uuid.NewString()

	walletRef, err := e.store.AgentWallet(ctx, request.AgentID)
	if err != nil || walletRef == nil {
		reason := "No wallet configured"
		if err != nil {
			reason = fmt.Sprintf("Wallet lookup failed: %v", err)
		}
		e.writeOrder(ctx, orderID, request, types.OrderBlocked, reason, "", request.SizeUSDC, nil)
		e.audit(ctx, "order_blocked", request.AgentID, orderID, "Order blocked: "+reason,
			map[string]interface{}{"reason": reason}, types.SeverityWarning)
		return types.ExecutionResult{OrderID: orderID, Status: types.OrderBlocked, Reason: reason}
	}

	identity, err := e.wallets.Resolve(ctx, walletRef.SecretRef, walletRef.SecretBackend)
	if err != nil {
		reason := fmt.Sprintf("Could not load wallet: %v", err)
		e.writeOrder(ctx, orderID, request, types.OrderBlocked, reason, "", request.SizeUSDC, nil)
		e.audit(ctx, "order_blocked", request.AgentID, orderID, "Order blocked: "+reason,
			map[string]interface{}{"secret_backend": walletRef.SecretBackend}, types.SeverityWarning)
		return types.ExecutionResult{OrderID: orderID, Status: types.OrderBlocked, Reason: reason}
	}

	agent, err := e.store.Agent(ctx, request.AgentID)
	if err != nil || agent == nil {
		reason := "Agent not found"
		if err != nil {
			reason = fmt.Sprintf("Agent lookup failed: %v", err)
		}
		e.writeOrder(ctx, orderID, request, types.OrderBlocked, reason, "", request.SizeUSDC, nil)
		e.audit(ctx, "order_blocked", request.AgentID, orderID, "Order blocked: "+reason, nil, types.SeverityWarning)
		return types.ExecutionResult{OrderID: orderID, Status: types.OrderBlocked, Reason: reason}
	}

	finalSize := request.SizeUSDC
	if decision.AdjustedSize > 0 {
		finalSize = decision.AdjustedSize
	}

	if agent.IsSimulate {
		return e.executeSimulated(ctx, orderID, request, finalSize)
	}

	return e.executeLive(ctx, orderID, request, identity, finalSize)
}

// executeSimulated runs the full lifecycle without contacting the exchange.
// The persisted shape is identical to a live placement except the simulate
// tag in the audit metadata and the sim_ exchange order id.
func (e *Executor) executeSimulated(ctx context.Context, orderID string, request types.OrderRequest, finalSize float64) types.ExecutionResult {
	exchangeOrderID := "sim_" + orderID

	log.Info().
		Str("order_id", orderID).
		Str("side", request.Side).
		Float64("size_usdc", finalSize).
		Str("condition_id", request.ConditionID).
		Msg("Simulated order placed")

	e.writeOrder(ctx, orderID, request, types.OrderPlaced, "", exchangeOrderID, finalSize, nil)
	e.audit(ctx, "order_placed", request.AgentID, orderID,
		fmt.Sprintf("[SIMULATE] Order placed: %s %.2f USDC on %s", request.Side, finalSize, request.ConditionID),
		map[string]interface{}{"simulate": true}, types.SeverityInfo)

	return types.ExecutionResult{
		OrderID:         orderID,
		ExchangeOrderID: exchangeOrderID,
		Status:          types.OrderPlaced,
		Simulate:        true,
	}
}

func (e *Executor) executeLive(ctx context.Context, orderID string, request types.OrderRequest, identity *wallet.Identity, finalSize float64) (result types.ExecutionResult) {
	// Signing and submission must never take the service down; a panic in
	// either is recorded as a rejected order.
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("order execution panic: %v", r)
			log.Error().Str("order_id", orderID).Msg(reason)
			e.writeOrder(ctx, orderID, request, types.OrderRejected, reason, "", finalSize, nil)
			e.audit(ctx, "error", request.AgentID, orderID, "Order execution error: "+reason,
				map[string]interface{}{"error": reason}, types.SeverityError)
			result = types.ExecutionResult{OrderID: orderID, Status: types.OrderRejected, Reason: reason}
		}
	}()

	signedOrder := e.clob.BuildOrder(identity, request.TokenID, request.Side, request.Price, finalSize)

	response, err := e.clob.PlaceOrder(ctx, signedOrder)
	if err != nil {
		reason := err.Error()
		log.Error().Err(err).Str("order_id", orderID).Msg("Order execution failed")
		e.writeOrder(ctx, orderID, request, types.OrderRejected, reason, "", finalSize, response)
		e.audit(ctx, "error", request.AgentID, orderID, "Order execution error: "+reason,
			map[string]interface{}{"error": reason}, types.SeverityError)
		return types.ExecutionResult{OrderID: orderID, Status: types.OrderRejected, Reason: reason}
	}

	exchangeOrderID, _ := response["orderID"].(string)
	success, _ := response["success"].(bool)

	status := types.OrderRejected
	if success || exchangeOrderID != "" {
		status = types.OrderPlaced
	}

	e.writeOrder(ctx, orderID, request, status, "", exchangeOrderID, finalSize, response)

	eventType := "order_placed"
	severity := types.SeverityInfo
	if status == types.OrderRejected {
		eventType = "order_blocked"
		severity = types.SeverityWarning
	}
	e.audit(ctx, eventType, request.AgentID, orderID,
		fmt.Sprintf("Order %s: %s %.2f USDC on %s", status, request.Side, finalSize, request.ConditionID),
		response, severity)

	return types.ExecutionResult{
		OrderID:         orderID,
		ExchangeOrderID: exchangeOrderID,
		Status:          status,
		Response:        response,
	}
}

// RecordBlocked persists a risk-denied request as a blocked order with its
// reason and checks. Exactly one order row exists per denied request.
func (e *Executor) RecordBlocked(ctx context.Context, request types.OrderRequest, decision types.RiskDecision) types.ExecutionResult {
	orderID := uuid.NewString()

	e.writeOrder(ctx, orderID, request, types.OrderBlocked, decision.Reason, "", request.SizeUSDC, nil)
	e.audit(ctx, "order_blocked", request.AgentID, orderID, "Order blocked: "+decision.Reason,
		map[string]interface{}{"checks": decision.Checks}, types.SeverityWarning)

	return types.ExecutionResult{
		OrderID: orderID,
		Status:  types.OrderBlocked,
		Reason:  decision.Reason,
		Checks:  decision.Checks,
	}
}

// Cancel signs and submits a cancellation. Cancelling an already-cancelled
// order is a no-op; other terminal orders cannot be cancelled. Local state is
// only mutated after the exchange confirms; a resolver or network failure
// leaves the order in its prior status.
func (e *Executor) Cancel(ctx context.Context, agentID, orderID, exchangeOrderID string) types.CancelResult {
	status, err := e.store.OrderStatus(ctx, orderID)
	if err != nil {
		return types.CancelResult{Status: "error", Reason: err.Error()}
	}
	if types.IsTerminalOrderStatus(status) {
		if status == types.OrderCancelled {
			return types.CancelResult{Status: types.OrderCancelled, OrderID: orderID}
		}
		return types.CancelResult{Status: "error", Reason: fmt.Sprintf("order is already %s", status)}
	}

	walletRef, err := e.store.AgentWallet(ctx, agentID)
	if err != nil || walletRef == nil {
		return types.CancelResult{Status: "error", Reason: "No wallet configured"}
	}

	identity, err := e.wallets.Resolve(ctx, walletRef.SecretRef, walletRef.SecretBackend)
	if err != nil {
		return types.CancelResult{Status: "error", Reason: fmt.Sprintf("Could not load wallet: %v", err)}
	}

	if err := e.clob.CancelOrder(ctx, identity, exchangeOrderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Cancel failed")
		return types.CancelResult{Status: "error", Reason: err.Error()}
	}

	if err := e.store.MarkOrderCancelled(ctx, orderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to record cancellation")
		return types.CancelResult{Status: "error", Reason: err.Error()}
	}

	e.audit(ctx, "order_cancelled", agentID, orderID,
		fmt.Sprintf("Order %s cancelled", exchangeOrderID), nil, types.SeverityInfo)

	return types.CancelResult{Status: types.OrderCancelled, OrderID: orderID}
}

func (e *Executor) writeOrder(ctx context.Context, orderID string, request types.OrderRequest, status, blockReason, exchangeOrderID string, finalSize float64, response map[string]interface{}) {
	raw := ""
	if response != nil {
		if data, err := json.Marshal(response); err == nil {
			raw = string(data)
		}
	}

	order := &types.Order{
		ID:              orderID,
		AgentID:         request.AgentID,
		SignalID:        request.SignalID,
		ExchangeOrderID: exchangeOrderID,
		ConditionID:     request.ConditionID,
		TokenID:         request.TokenID,
		Side:            request.Side,
		OrderType:       request.OrderType,
		Price:           request.Price,
		SizeUSDC:        finalSize,
		Status:          status,
		BlockReason:     blockReason,
		RawResponse:     raw,
	}
	if status == types.OrderPlaced {
		now := time.Now().UTC()
		order.PlacedAt = &now
	}

	if err := e.store.InsertOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to persist order")
	}
}

func (e *Executor) audit(ctx context.Context, eventType, agentID, orderID, message string, metadata map[string]interface{}, severity string) {
	if err := e.store.Audit(ctx, eventType, agentID, "order", orderID, message, metadata, severity); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to write audit entry")
	}
}
