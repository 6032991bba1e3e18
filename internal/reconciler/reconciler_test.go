package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/types"
)

type fakeStore struct {
	agents        []storage.WalletRef
	existingFills map[string]bool
	inserted      []*types.Fill
	openOrderID   string
	realized      float64
	volume        float64
	tradeCount    int
	positions     []types.Position
	marks         map[string][2]float64 // positionID -> mark, unrealized
	unrealizedSum float64
	snapshots     []*types.PnLSnapshot
}

func (f *fakeStore) AgentsWithWallets(ctx context.Context) ([]storage.WalletRef, error) {
	return f.agents, nil
}

func (f *fakeStore) FillExists(ctx context.Context, exchangeFillID string) (bool, error) {
	return f.existingFills[exchangeFillID], nil
}

func (f *fakeStore) InsertFill(ctx context.Context, fill *types.Fill) error {
	f.inserted = append(f.inserted, fill)
	return nil
}

func (f *fakeStore) LatestOpenOrderID(ctx context.Context, agentID, conditionID string) (string, error) {
	return f.openOrderID, nil
}

func (f *fakeStore) DayFillStats(ctx context.Context, agentID string, day time.Time) (float64, float64, int, error) {
	return f.realized, f.volume, f.tradeCount, nil
}

func (f *fakeStore) OpenPositions(ctx context.Context, agentID string) ([]types.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) UpdatePositionMark(ctx context.Context, positionID string, markPrice, unrealized float64) error {
	if f.marks == nil {
		f.marks = make(map[string][2]float64)
	}
	f.marks[positionID] = [2]float64{markPrice, unrealized}
	return nil
}

func (f *fakeStore) SumUnrealizedPnL(ctx context.Context, agentID string) (float64, error) {
	return f.unrealizedSum, nil
}

func (f *fakeStore) UpsertPnLSnapshot(ctx context.Context, snap *types.PnLSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

type fakeActivity struct {
	activities []types.Activity
}

func (f *fakeActivity) ActivityFeed(ctx context.Context, walletAddress string, limit int) ([]types.Activity, error) {
	return f.activities, nil
}

type fakeMidpoints struct {
	mids map[string]float64
}

func (f *fakeMidpoints) GetMidpoint(ctx context.Context, tokenID string) (float64, bool) {
	mid, ok := f.mids[tokenID]
	return mid, ok
}

func trade(id string) types.Activity {
	return types.Activity{
		ID:          id,
		Type:        "trade",
		ConditionID: "0xmarket",
		TokenID:     "token-yes",
		Side:        "buy",
		Price:       0.5,
		SizeUSDC:    20,
		Timestamp:   time.Now().UTC(),
	}
}

func TestReconcileRecordsNewFills(t *testing.T) {
	store := &fakeStore{
		agents:        []storage.WalletRef{{AgentID: "agent-1", Address: "0xwallet"}},
		existingFills: map[string]bool{"fill-known": true},
		openOrderID:   "order-1",
	}
	activity := &fakeActivity{activities: []types.Activity{
		trade("fill-known"),
		trade("fill-new"),
		{ID: "dep-1", Type: "deposit"},
	}}

	recon := NewReconciler(store, activity, &fakeMidpoints{}, time.Minute)
	require.NoError(t, recon.reconcileAll(context.Background()))

	// only the unseen trade lands; the known fill and the deposit are skipped
	require.Len(t, store.inserted, 1)
	fill := store.inserted[0]
	assert.Equal(t, "fill-new", fill.ExchangeFillID)
	assert.Equal(t, "agent-1", fill.AgentID)
	assert.Equal(t, "order-1", fill.OrderID)
	assert.NotEmpty(t, fill.ID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &fakeStore{
		agents:        []storage.WalletRef{{AgentID: "agent-1", Address: "0xwallet"}},
		existingFills: map[string]bool{},
	}
	activity := &fakeActivity{activities: []types.Activity{trade("fill-1")}}
	recon := NewReconciler(store, activity, &fakeMidpoints{}, time.Minute)

	require.NoError(t, recon.reconcileAll(context.Background()))
	store.existingFills["fill-1"] = true
	require.NoError(t, recon.reconcileAll(context.Background()))

	assert.Len(t, store.inserted, 1)
}

func TestMatchOrderFallsBackToSyntheticID(t *testing.T) {
	store := &fakeStore{openOrderID: ""}
	recon := NewReconciler(store, &fakeActivity{}, &fakeMidpoints{}, time.Minute)

	orderID := recon.matchOrder(context.Background(), "agent-1", "0xmarket")
	assert.NotEmpty(t, orderID)

	store.openOrderID = "order-9"
	assert.Equal(t, "order-9", recon.matchOrder(context.Background(), "agent-1", "0xmarket"))
}

func TestRefreshPositionMarks(t *testing.T) {
	store := &fakeStore{
		agents: []storage.WalletRef{{AgentID: "agent-1", Address: "0xwallet"}},
		positions: []types.Position{
			{ID: "pos-1", TokenID: "token-yes", Side: "buy", SizeUSDC: 100, AvgEntryPrice: 0.50},
			{ID: "pos-2", TokenID: "token-unknown", Side: "buy", SizeUSDC: 50, AvgEntryPrice: 0.40},
		},
	}
	midpoints := &fakeMidpoints{mids: map[string]float64{"token-yes": 0.55}}

	recon := NewReconciler(store, &fakeActivity{}, midpoints, time.Minute)
	require.NoError(t, recon.reconcileAll(context.Background()))

	// marked position gets the new mid and its PnL; the one with no midpoint
	// keeps its previous mark
	require.Contains(t, store.marks, "pos-1")
	assert.Equal(t, 0.55, store.marks["pos-1"][0])
	assert.InDelta(t, 10.0, store.marks["pos-1"][1], 1e-9)
	assert.NotContains(t, store.marks, "pos-2")
}

func TestUnrealizedPnL(t *testing.T) {
	long := types.Position{Side: "buy", SizeUSDC: 100, AvgEntryPrice: 0.50}
	assert.InDelta(t, 10.0, UnrealizedPnL(long, 0.55), 1e-9)
	assert.InDelta(t, -10.0, UnrealizedPnL(long, 0.45), 1e-9)

	short := types.Position{Side: "sell", SizeUSDC: 100, AvgEntryPrice: 0.50}
	assert.InDelta(t, -10.0, UnrealizedPnL(short, 0.55), 1e-9)

	zeroEntry := types.Position{Side: "buy", SizeUSDC: 100}
	assert.Zero(t, UnrealizedPnL(zeroEntry, 0.55))
}

func TestPnLSnapshotUpsert(t *testing.T) {
	store := &fakeStore{
		agents:        []storage.WalletRef{{AgentID: "agent-1", Address: "0xwallet"}},
		realized:      -42.5,
		volume:        310,
		tradeCount:    7,
		unrealizedSum: 12.5,
	}

	recon := NewReconciler(store, &fakeActivity{}, &fakeMidpoints{}, time.Minute)
	require.NoError(t, recon.reconcileAll(context.Background()))

	require.Len(t, store.snapshots, 1)
	snap := store.snapshots[0]
	assert.Equal(t, "agent-1", snap.AgentID)
	assert.Equal(t, -42.5, snap.RealizedPnL)
	assert.Equal(t, 12.5, snap.UnrealizedPnL)
	assert.Equal(t, -30.0, snap.TotalPnL)
	assert.Equal(t, 310.0, snap.TotalVolume)
	assert.Equal(t, 7, snap.TradeCount)
}
