package types

import "time"

// Agent operating modes
const (
	ModeReadOnly       = "read_only"
	ModeTradingEnabled = "trading_enabled"
)

// Order lifecycle statuses
const (
	OrderPending   = "pending"
	OrderPlaced    = "placed"
	OrderPartial   = "partial"
	OrderFilled    = "filled"
	OrderCancelled = "cancelled"
	OrderRejected  = "rejected"
	OrderBlocked   = "blocked"
)

// Signal statuses
const (
	SignalPending  = "pending"
	SignalApproved = "approved"
	SignalRejected = "rejected"
)

// Audit severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// IsTerminalOrderStatus reports whether an order status can never change again.
func IsTerminalOrderStatus(status string) bool {
	switch status {
	case OrderFilled, OrderCancelled, OrderRejected, OrderBlocked:
		return true
	}
	return false
}

// Agent is a named trading entity with its own wallet, strategy and limits.
type Agent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Mode            string    `json:"mode"` // read_only, trading_enabled
	IsSimulate      bool      `json:"is_simulate"`
	ManualApprove   bool      `json:"manual_approve"`
	KillSwitch      bool      `json:"kill_switch"`
	IsEnabled       bool      `json:"is_enabled"`
	Status          string    `json:"status"` // idle, running, stopped, killed, errored
	WalletProfileID string    `json:"wallet_profile_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RiskLimits is the per-agent limit set read fresh on every risk evaluation.
type RiskLimits struct {
	AgentID          string  `json:"agent_id"`
	MaxOrderSizeUSDC float64 `json:"max_order_size_usdc"`
	MaxExposureUSDC  float64 `json:"max_exposure_usdc"`
	DailyLossCapUSDC float64 `json:"daily_loss_cap_usdc"`
	SlippageCapPct   float64 `json:"slippage_cap_pct"`
	CooldownSeconds  int     `json:"cooldown_seconds"`
	MaxOpenOrders    int     `json:"max_open_orders"`
}

// OrderRequest is the ephemeral input to the risk/execution pipeline.
// It is never persisted until a decision has been reached.
type OrderRequest struct {
	AgentID     string  `json:"agent_id"`
	SignalID    string  `json:"signal_id"`
	ConditionID string  `json:"condition_id"`
	TokenID     string  `json:"token_id"`
	Side        string  `json:"side"` // buy, sell
	Price       float64 `json:"price"`
	SizeUSDC    float64 `json:"size_usdc"`
	Confidence  float64 `json:"confidence"`
	OrderType   string  `json:"order_type"` // limit
}

// RiskDecision is the synchronous result of a risk evaluation. Checks holds
// the outcome of every check attempted before the decision was finalized;
// checks after the first failure are not attempted. AdjustedSize is only
// meaningful when Approved is true and never exceeds the requested size.
type RiskDecision struct {
	Approved     bool            `json:"approved"`
	Reason       string          `json:"reason"`
	Checks       map[string]bool `json:"checks"`
	AdjustedSize float64         `json:"adjusted_size,omitempty"`
}

// Signal is a strategy's trade recommendation prior to risk gating.
type Signal struct {
	ID          string                 `json:"id,omitempty"`
	AgentID     string                 `json:"agent_id,omitempty"`
	ConditionID string                 `json:"condition_id"`
	TokenID     string                 `json:"token_id"`
	Side        string                 `json:"side"`
	Price       float64                `json:"price"`
	SizeUSDC    float64                `json:"size_usdc"`
	Confidence  float64                `json:"confidence"`
	TimeHorizon int                    `json:"time_horizon"` // seconds
	RawData     map[string]interface{} `json:"raw_data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Order is the persistent record of a risk-gated execution attempt.
// Blocked attempts are recorded too, never silently dropped.
type Order struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agent_id"`
	SignalID        string     `json:"signal_id"`
	ExchangeOrderID string     `json:"exchange_order_id,omitempty"`
	ConditionID     string     `json:"condition_id"`
	TokenID         string     `json:"token_id"`
	Side            string     `json:"side"`
	OrderType       string     `json:"order_type"`
	Price           float64    `json:"price"`
	SizeUSDC        float64    `json:"size_usdc"`
	Status          string     `json:"status"`
	BlockReason     string     `json:"block_reason,omitempty"`
	RawResponse     string     `json:"raw_response,omitempty"`
	PlacedAt        *time.Time `json:"placed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Fill is an exchange-confirmed execution, deduplicated by ExchangeFillID.
type Fill struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	AgentID        string    `json:"agent_id"`
	ExchangeFillID string    `json:"exchange_fill_id"`
	ConditionID    string    `json:"condition_id"`
	TokenID        string    `json:"token_id"`
	Side           string    `json:"side"`
	Price          float64   `json:"fill_price"`
	SizeUSDC       float64   `json:"fill_size_usdc"`
	FeeUSDC        float64   `json:"fee_usdc"`
	FilledAt       time.Time `json:"filled_at"`
	RawData        string    `json:"raw_data,omitempty"`
}

// Position is the per agent+market aggregate of open exposure.
type Position struct {
	ID            string     `json:"id"`
	AgentID       string     `json:"agent_id"`
	ConditionID   string     `json:"condition_id"`
	TokenID       string     `json:"token_id"`
	Side          string     `json:"side"`
	SizeUSDC      float64    `json:"size_usdc"`
	AvgEntryPrice float64    `json:"avg_entry_price"`
	CurrentPrice  float64    `json:"current_price"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	RealizedPnL   float64    `json:"realized_pnl"`
	IsOpen        bool       `json:"is_open"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// PnLSnapshot is one row per agent per calendar day, upserted idempotently.
type PnLSnapshot struct {
	AgentID       string    `json:"agent_id"`
	SnapshotDate  time.Time `json:"snapshot_date"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TotalPnL      float64   `json:"total_pnl"`
	TotalVolume   float64   `json:"total_volume"`
	TradeCount    int       `json:"trade_count"`
}

// Market is a cached prediction-market snapshot from the ingestion service.
type Market struct {
	ConditionID string  `json:"condition_id"`
	Question    string  `json:"question,omitempty"`
	YesTokenID  string  `json:"yes_token_id,omitempty"`
	NoTokenID   string  `json:"no_token_id,omitempty"`
	YesPrice    float64 `json:"yes_price"`
	NoPrice     float64 `json:"no_price"`
	Volume24h   float64 `json:"volume_24h"`
	Active      bool    `json:"active"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a cached book snapshot, possibly stale.
type OrderBook struct {
	ConditionID string      `json:"condition_id"`
	TokenID     string      `json:"token_id"`
	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	Timestamp   time.Time   `json:"timestamp,omitempty"`
}

// Activity is one entry of the exchange's wallet activity feed.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // trade, deposit, ...
	ConditionID string    `json:"condition_id"`
	TokenID     string    `json:"token_id"`
	Side        string    `json:"side"`
	Price       float64   `json:"price"`
	SizeUSDC    float64   `json:"size"`
	FeeUSDC     float64   `json:"fee"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExecutionResult is the terminal outcome of one execution attempt.
type ExecutionResult struct {
	OrderID         string                 `json:"order_id,omitempty"`
	ExchangeOrderID string                 `json:"exchange_order_id,omitempty"`
	Status          string                 `json:"status"` // placed, rejected, blocked
	Reason          string                 `json:"reason,omitempty"`
	Checks          map[string]bool        `json:"checks,omitempty"`
	Simulate        bool                   `json:"simulate,omitempty"`
	Response        map[string]interface{} `json:"response,omitempty"`
}

// CancelResult is the outcome of a cancellation attempt.
type CancelResult struct {
	Status  string `json:"status"` // cancelled, error
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
