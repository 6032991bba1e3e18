package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/strategies"
	"github.com/sovrana/trading-engine/internal/types"
)

type fakeStore struct {
	runs          []storage.AgentRun
	allowlist     []string
	signals       []*types.Signal
	signalStatus  []string
	runsOpened    int
	runsCompleted int
	lastRunCount  int
	auditEvents   []string
}

func (f *fakeStore) EligibleAgentRuns(ctx context.Context) ([]storage.AgentRun, error) {
	return f.runs, nil
}

func (f *fakeStore) AllowlistMarkets(ctx context.Context, agentID string) ([]string, error) {
	return f.allowlist, nil
}

func (f *fakeStore) InsertSignal(ctx context.Context, signal *types.Signal, runID, status string) error {
	f.signals = append(f.signals, signal)
	f.signalStatus = append(f.signalStatus, status)
	return nil
}

func (f *fakeStore) CreateStrategyRun(ctx context.Context, runID, agentID, strategyID string, config map[string]interface{}) error {
	f.runsOpened++
	return nil
}

func (f *fakeStore) CompleteStrategyRun(ctx context.Context, runID string, signalsGenerated int) error {
	f.runsCompleted++
	f.lastRunCount = signalsGenerated
	return nil
}

func (f *fakeStore) Audit(ctx context.Context, eventType, agentID, entityType, entityID, message string, metadata map[string]interface{}, severity string) error {
	f.auditEvents = append(f.auditEvents, eventType)
	return nil
}

type fakeMarkets struct {
	markets map[string]*types.Market
	active  []types.Market
	books   map[string]*types.OrderBook
}

func (f *fakeMarkets) GetMarket(ctx context.Context, conditionID string) (*types.Market, bool) {
	market, ok := f.markets[conditionID]
	return market, ok
}

func (f *fakeMarkets) ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	if limit < len(f.active) {
		return f.active[:limit], nil
	}
	return f.active, nil
}

func (f *fakeMarkets) GetOrderBook(ctx context.Context, conditionID string) (*types.OrderBook, bool) {
	book, ok := f.books[conditionID]
	return book, ok
}

type fakeBus struct {
	published []*types.Signal
}

func (f *fakeBus) PublishSignal(ctx context.Context, signal *types.Signal) error {
	f.published = append(f.published, signal)
	return nil
}

type fakePipeline struct {
	submitted []types.OrderRequest
}

func (f *fakePipeline) Submit(ctx context.Context, request types.OrderRequest) types.ExecutionResult {
	f.submitted = append(f.submitted, request)
	return types.ExecutionResult{OrderID: "order-1", Status: types.OrderPlaced}
}

type stubStrategy struct {
	signal *types.Signal
	err    error
}

func (s *stubStrategy) Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error) {
	return s.signal, s.err
}

func registerStub(t *testing.T, template string, strategy strategies.Strategy) {
	t.Helper()
	strategies.Register(template, func(config map[string]interface{}) strategies.Strategy {
		return strategy
	})
}

func agentRun(template string, agent types.Agent) storage.AgentRun {
	return storage.AgentRun{
		Agent:        agent,
		StrategyID:   "strat-1",
		TemplateType: template,
	}
}

func tradableSignal() *types.Signal {
	return &types.Signal{
		ConditionID: "0xmarket",
		TokenID:     "token-yes",
		Side:        "buy",
		Price:       0.45,
		SizeUSDC:    25,
		Confidence:  0.8,
		CreatedAt:   time.Now().UTC(),
	}
}

func marketFixture() *fakeMarkets {
	return &fakeMarkets{
		markets: map[string]*types.Market{
			"0xmarket": {ConditionID: "0xmarket", YesPrice: 0.45, Active: true},
		},
		active: []types.Market{{ConditionID: "0xmarket", YesPrice: 0.45, Active: true}},
		books: map[string]*types.OrderBook{
			"0xmarket": {TokenID: "token-yes", Bids: []types.BookLevel{{Price: 0.44}}, Asks: []types.BookLevel{{Price: 0.46}}},
		},
	}
}

func TestCycleAutoSubmitsApprovedSignals(t *testing.T) {
	registerStub(t, "stub_auto", &stubStrategy{signal: tradableSignal()})

	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("stub_auto", types.Agent{ID: "agent-1", Name: "alpha", Mode: types.ModeTradingEnabled}),
	}}
	bus := &fakeBus{}
	pipe := &fakePipeline{}

	generator := NewGenerator(store, marketFixture(), bus, pipe, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	assert.Equal(t, 1, store.runsOpened)
	assert.Equal(t, 1, store.runsCompleted)
	assert.Equal(t, 1, store.lastRunCount)

	require.Len(t, store.signals, 1)
	assert.Equal(t, types.SignalApproved, store.signalStatus[0])
	assert.NotEmpty(t, store.signals[0].ID)
	assert.Equal(t, "agent-1", store.signals[0].AgentID)

	assert.Len(t, bus.published, 1)
	require.Len(t, pipe.submitted, 1)
	assert.Equal(t, store.signals[0].ID, pipe.submitted[0].SignalID)
	assert.Contains(t, store.auditEvents, "signal_generated")
}

func TestCycleManualApproveHoldsSignal(t *testing.T) {
	registerStub(t, "stub_manual", &stubStrategy{signal: tradableSignal()})

	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("stub_manual", types.Agent{ID: "agent-1", Mode: types.ModeTradingEnabled, ManualApprove: true}),
	}}
	pipe := &fakePipeline{}

	generator := NewGenerator(store, marketFixture(), &fakeBus{}, pipe, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	require.Len(t, store.signalStatus, 1)
	assert.Equal(t, types.SignalPending, store.signalStatus[0])
	assert.Empty(t, pipe.submitted)
}

func TestCycleReadOnlyAgentNeverSubmits(t *testing.T) {
	registerStub(t, "stub_readonly", &stubStrategy{signal: tradableSignal()})

	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("stub_readonly", types.Agent{ID: "agent-1", Mode: types.ModeReadOnly}),
	}}
	pipe := &fakePipeline{}

	generator := NewGenerator(store, marketFixture(), &fakeBus{}, pipe, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	// signal is still recorded and published, only submission is gated
	assert.Len(t, store.signals, 1)
	assert.Empty(t, pipe.submitted)
}

func TestCycleUnknownTemplateSkipsRun(t *testing.T) {
	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("no_such_template", types.Agent{ID: "agent-1", Mode: types.ModeTradingEnabled}),
	}}

	generator := NewGenerator(store, marketFixture(), &fakeBus{}, &fakePipeline{}, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	assert.Zero(t, store.runsOpened)
	assert.Empty(t, store.signals)
}

func TestCycleStrategyErrorIsolatedToMarket(t *testing.T) {
	registerStub(t, "stub_error", &stubStrategy{err: errors.New("bad model state")})

	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("stub_error", types.Agent{ID: "agent-1", Mode: types.ModeTradingEnabled}),
	}}

	generator := NewGenerator(store, marketFixture(), &fakeBus{}, &fakePipeline{}, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	// run still opens and closes with zero signals
	assert.Equal(t, 1, store.runsOpened)
	assert.Equal(t, 1, store.runsCompleted)
	assert.Zero(t, store.lastRunCount)
}

func TestCyclePanickingStrategyDoesNotAbort(t *testing.T) {
	registerStub(t, "stub_panic", panicStrategy{})

	store := &fakeStore{runs: []storage.AgentRun{
		agentRun("stub_panic", types.Agent{ID: "agent-1", Mode: types.ModeTradingEnabled}),
	}}

	generator := NewGenerator(store, marketFixture(), &fakeBus{}, &fakePipeline{}, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	assert.Equal(t, 1, store.runsCompleted)
	assert.Empty(t, store.signals)
}

type panicStrategy struct{}

func (panicStrategy) Evaluate(market *types.Market, book *types.OrderBook) (*types.Signal, error) {
	panic("division by zero in model")
}

func TestCycleAllowlistRestrictsMarkets(t *testing.T) {
	registerStub(t, "stub_allowlist", &stubStrategy{signal: tradableSignal()})

	markets := marketFixture()
	markets.markets["0xother"] = &types.Market{ConditionID: "0xother", YesPrice: 0.3, Active: true}
	markets.books["0xother"] = markets.books["0xmarket"]

	store := &fakeStore{
		runs: []storage.AgentRun{
			agentRun("stub_allowlist", types.Agent{ID: "agent-1", Mode: types.ModeTradingEnabled, ManualApprove: true}),
		},
		allowlist: []string{"0xother"},
	}

	generator := NewGenerator(store, markets, &fakeBus{}, &fakePipeline{}, time.Minute, 20, 50)
	require.NoError(t, generator.cycle(context.Background()))

	// one signal from the single allowlisted market, not from the active list
	assert.Len(t, store.signals, 1)
}
