package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	testEngine Identity = "engine"
	testAdmin  Identity = "admin"
	testSeller Identity = "seller"
	testAsset  AssetRef = "asset-1"
)

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// checkAmount reports a mismatch without stopping the test, like check.Equal.
func checkAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("amount = %s, want %s", got, want)
	}
}

// MockClock is a manually advanced Clock.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

// MockAssets implements AssetRegistry over in-memory owner and approval maps.
// TransferFunc, if set, runs before the ownership change and may fail it.
type MockAssets struct {
	mu        sync.Mutex
	owners    map[AssetRef]Identity
	approved  map[AssetRef]Identity
	transfers []assetTransfer

	TransferFunc func(ctx context.Context, from, to Identity, asset AssetRef) error
}

type assetTransfer struct {
	From, To Identity
	Asset    AssetRef
}

func NewMockAssets() *MockAssets {
	return &MockAssets{
		owners:   make(map[AssetRef]Identity),
		approved: make(map[AssetRef]Identity),
	}
}

// Mint gives asset to owner and approves the test engine as operator.
func (m *MockAssets) Mint(asset AssetRef, owner Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[asset] = owner
	m.approved[asset] = testEngine
}

func (m *MockAssets) Revoke(asset AssetRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.approved, asset)
}

func (m *MockAssets) OwnerOf(_ context.Context, asset AssetRef) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[asset]
	if !ok {
		return "", fmt.Errorf("unknown asset %s", asset)
	}
	return owner, nil
}

func (m *MockAssets) IsTransferApproved(_ context.Context, owner, operator Identity, asset AssetRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[asset] == owner && m.approved[asset] == operator, nil
}

func (m *MockAssets) Transfer(ctx context.Context, from, to Identity, asset AssetRef) error {
	if m.TransferFunc != nil {
		if err := m.TransferFunc(ctx, from, to, asset); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[asset] != from {
		return fmt.Errorf("%s is not owned by %s", asset, from)
	}
	m.owners[asset] = to
	delete(m.approved, asset)
	m.transfers = append(m.transfers, assetTransfer{From: from, To: to, Asset: asset})
	return nil
}

func (m *MockAssets) Owner(asset AssetRef) Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[asset]
}

func (m *MockAssets) Transfers() []assetTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]assetTransfer(nil), m.transfers...)
}

// MockFunds implements ValueTransfer and records every completed transfer.
// TransferFunc runs before the transfer is recorded; it may fail it or call
// back into the engine.
type MockFunds struct {
	mu   sync.Mutex
	paid []Credit

	TransferFunc func(ctx context.Context, to Identity, amount decimal.Decimal) error
}

func (m *MockFunds) Transfer(ctx context.Context, to Identity, amount decimal.Decimal) error {
	if m.TransferFunc != nil {
		if err := m.TransferFunc(ctx, to, amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid = append(m.paid, Credit{Party: to, Amount: amount})
	return nil
}

func (m *MockFunds) Paid() []Credit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Credit(nil), m.paid...)
}

func (m *MockFunds) PaidTo(who Identity) decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.Paid() {
		if c.Party == who {
			total = total.Add(c.Amount)
		}
	}
	return total
}

func (m *MockFunds) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.Paid() {
		total = total.Add(c.Amount)
	}
	return total
}

// RecordingNotifier keeps every event it receives.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *RecordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *RecordingNotifier) Kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]EventKind, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (n *RecordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

func (n *RecordingNotifier) Last(kind EventKind) (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Kind == kind {
			return n.events[i], true
		}
	}
	return Event{}, false
}

type testHarness struct {
	Engine   *Engine
	Assets   *MockAssets
	Funds    *MockFunds
	Clock    *MockClock
	Notifier *RecordingNotifier
}

// fatalHelper is satisfied by *testing.T and *rapid.T.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

func newHarness(t fatalHelper, opts ...func(*Config)) *testHarness {
	t.Helper()
	h := &testHarness{
		Assets:   NewMockAssets(),
		Funds:    &MockFunds{},
		Clock:    &MockClock{now: testEpoch},
		Notifier: &RecordingNotifier{},
	}
	cfg := Config{
		Identity: testEngine,
		Admin:    testAdmin,
		Assets:   h.Assets,
		Funds:    h.Funds,
		Notifier: h.Notifier,
		Clock:    h.Clock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.Engine = engine
	h.Assets.Mint(testAsset, testSeller)
	return h
}

// createDefault opens the scenario auction: starting bid 1.0, increment 0.1, one day.
func (h *testHarness) createDefault(t fatalHelper) AuctionID {
	t.Helper()
	id, err := h.Engine.CreateAuction(context.Background(), testSeller, testAsset, d("1.0"), d("0.1"), 24*time.Hour)
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	return id
}

func (h *testHarness) bid(t fatalHelper, id AuctionID, who Identity, amount string) {
	t.Helper()
	if _, err := h.Engine.PlaceBid(context.Background(), id, who, d(amount)); err != nil {
		t.Fatalf("PlaceBid(%s, %s): %v", who, amount, err)
	}
}
