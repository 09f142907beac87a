package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/custody"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_NotifyAndEvents(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	at := time.Date(2025, 1, 1, 10, 30, 0, 123456789, time.UTC)

	bidID := uuid.New()
	events := []core.Event{
		{ID: uuid.New(), Kind: core.EventPauseChanged, OccurredAt: at, Payload: core.PauseChanged{Paused: true, By: "admin"}},
		{ID: uuid.New(), Kind: core.EventBidAccepted, AuctionID: 1, OccurredAt: at, Payload: core.BidAccepted{
			BidID: bidID, Bidder: "alice", Amount: d("1.25"), Sequence: 1, RefundCredited: decimal.Zero,
		}},
		{ID: uuid.New(), Kind: core.EventCreditWithdrawn, AuctionID: 2, OccurredAt: at, Payload: core.CreditWithdrawn{Recipient: "bob", Amount: d("3")}},
	}
	for _, ev := range events {
		assert.NoError(t, store.Notify(ctx, ev))
	}

	all, err := store.Events(ctx, 0)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(all))
	for i, entry := range all {
		check.Equal(t, int64(i+1), entry.Seq)
		check.Equal(t, events[i].ID, entry.ID)
		check.Equal(t, events[i].Kind, entry.Kind)
		check.True(t, entry.OccurredAt.Equal(at))
	}
	check.Equal(t, core.PauseChanged{Paused: true, By: "admin"}, all[0].Payload.(core.PauseChanged))

	one, err := store.Events(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(one))
	bid := one[0].Payload.(core.BidAccepted)
	check.Equal(t, bidID, bid.BidID)
	check.Equal(t, core.Identity("alice"), bid.Bidder)
	check.True(t, bid.Amount.Equal(d("1.25")))
	check.Equal(t, uint64(1), bid.Sequence)

	none, err := store.Events(ctx, 99)
	assert.NoError(t, err)
	check.Equal(t, 0, len(none))
}

func TestStore_DuplicateEvent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ev := core.Event{ID: uuid.New(), Kind: core.EventPauseChanged, OccurredAt: time.Now(), Payload: core.PauseChanged{}}

	assert.NoError(t, store.Notify(ctx, ev))
	err := store.Notify(ctx, ev)
	check.True(t, errors.Is(err, ErrDuplicateEvent))

	err = store.Notify(ctx, core.Event{Kind: core.EventPauseChanged})
	check.Error(t, err)
}

func TestStore_ReopenKeepsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(ctx, path)
	assert.NoError(t, err)
	assert.NoError(t, store.Notify(ctx, core.Event{ID: uuid.New(), Kind: core.EventAssetReleased, AuctionID: 4, OccurredAt: time.Now(),
		Payload: core.AssetReleased{Asset: "art-1", Recipient: "alice"}}))
	assert.NoError(t, store.Close())

	// Migrations are not re-applied on the second open.
	store, err = Open(ctx, path)
	assert.NoError(t, err)
	defer store.Close()

	entries, err := store.Events(ctx, 4)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
	check.Equal(t, core.AssetReleased{Asset: "art-1", Recipient: "alice"}, entries[0].Payload.(core.AssetReleased))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	check.Error(t, err)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode("mystery", []byte{0xa0})
	check.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecode_AuctionCreatedKeepsEndTime(t *testing.T) {
	end := time.Date(2025, 1, 2, 0, 0, 0, 1, time.UTC)
	data, err := EncodePayload(core.AuctionCreated{Seller: "s", Asset: "a", StartingBid: d("1"), MinIncrement: d("0.1"), EndTime: end})
	assert.NoError(t, err)

	v, err := Decode(core.EventAuctionCreated, data)
	assert.NoError(t, err)
	created := v.(core.AuctionCreated)
	check.True(t, created.EndTime.Equal(end))
	check.True(t, created.MinIncrement.Equal(d("0.1")))
}

// The journal records a full auction when wired as the engine's notifier.
func TestStore_AsEngineNotifier(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	book := custody.NewAssetBook()
	wallets := custody.NewWallets()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	engine, err := core.NewEngine(core.Config{
		Identity: "engine",
		Admin:    "admin",
		Assets:   book,
		Funds:    wallets,
		Notifier: store,
		Clock:    clockFunc(func() time.Time { return now }),
	})
	assert.NoError(t, err)

	assert.NoError(t, book.Register("seller", "art-1"))
	assert.NoError(t, book.Approve("seller", "engine", "art-1"))
	id, err := engine.CreateAuction(ctx, "seller", "art-1", d("1"), d("0.5"), 24*time.Hour)
	assert.NoError(t, err)

	assert.NoError(t, wallets.Deposit("alice", d("5")))
	assert.NoError(t, wallets.Collect("alice", d("2")))
	_, err = engine.PlaceBid(ctx, id, "alice", d("2"))
	assert.NoError(t, err)

	now = now.Add(24 * time.Hour)
	_, err = engine.FinalizeAuction(ctx, id, "alice")
	assert.NoError(t, err)

	entries, err := store.Events(ctx, id)
	assert.NoError(t, err)
	var kinds []core.EventKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	check.Equal(t, core.EventAuctionCreated, kinds[0])
	check.Equal(t, core.EventBidAccepted, kinds[1])
	check.Equal(t, core.EventAuctionFinalized, kinds[len(kinds)-1])

	finalized := entries[len(entries)-1].Payload.(core.AuctionFinalized)
	check.Equal(t, core.Identity("alice"), finalized.Winner)
	check.True(t, finalized.Amount.Equal(d("2")))
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }
