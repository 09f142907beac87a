package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestPause_OnlyAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	err := h.Engine.Pause(ctx, "mallory")
	check.True(t, errors.Is(err, ErrNotAdmin))
	check.False(t, h.Engine.State().Paused)

	assert.NoError(t, h.Engine.Pause(ctx, testAdmin))
	check.True(t, h.Engine.State().Paused)

	err = h.Engine.Unpause(ctx, testSeller)
	check.True(t, errors.Is(err, ErrNotAdmin))
	check.True(t, h.Engine.State().Paused)

	assert.NoError(t, h.Engine.Unpause(ctx, testAdmin))
	check.False(t, h.Engine.State().Paused)
}

func TestPause_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.NoError(t, h.Engine.Pause(ctx, testAdmin))
	assert.NoError(t, h.Engine.Pause(ctx, testAdmin))
	assert.NoError(t, h.Engine.Unpause(ctx, testAdmin))
	assert.NoError(t, h.Engine.Unpause(ctx, testAdmin))

	check.Equal(t, []EventKind{EventPauseChanged, EventPauseChanged}, h.Notifier.Kinds())
	ev, _ := h.Notifier.Last(EventPauseChanged)
	check.Equal(t, PauseChanged{Paused: false, By: testAdmin}, ev.Payload.(PauseChanged))
}

func TestPause_GatesCreateAndBid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.createDefault(t)
	h.bid(t, id, "A", "1")
	h.bid(t, id, "B", "2")

	assert.NoError(t, h.Engine.Pause(ctx, testAdmin))

	h.Assets.Mint("asset-2", testSeller)
	_, err := h.Engine.CreateAuction(ctx, testSeller, "asset-2", d("1"), d("0.1"), 24*time.Hour)
	check.True(t, errors.Is(err, ErrPaused))
	check.Equal(t, testSeller, h.Assets.Owner("asset-2"))

	_, err = h.Engine.PlaceBid(ctx, id, "C", d("5"))
	check.True(t, errors.Is(err, ErrPaused))

	// Pull payments stay open while paused.
	amount, err := h.Engine.Withdraw(ctx, id, "A")
	assert.NoError(t, err)
	checkAmount(t, "1", amount)

	assert.NoError(t, h.Engine.Unpause(ctx, testAdmin))
	h.bid(t, id, "C", "5")
}

func TestPause_FinalizePolicy(t *testing.T) {
	t.Run("finalize allowed while paused by default", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t)
		id := h.createDefault(t)
		h.bid(t, id, "A", "1")
		h.Clock.Advance(24 * time.Hour)

		assert.NoError(t, h.Engine.Pause(ctx, testAdmin))
		_, err := h.Engine.FinalizeAuction(ctx, id, "A")
		check.NoError(t, err)
	})

	t.Run("finalize blocked when configured", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, func(cfg *Config) { cfg.PauseBlocksFinalize = true })
		id := h.createDefault(t)
		h.bid(t, id, "A", "1")
		h.Clock.Advance(24 * time.Hour)

		assert.NoError(t, h.Engine.Pause(ctx, testAdmin))
		_, err := h.Engine.FinalizeAuction(ctx, id, "A")
		check.True(t, errors.Is(err, ErrPaused))
		a, _ := h.Engine.GetAuction(id)
		check.Equal(t, StatusActive, a.Status)

		assert.NoError(t, h.Engine.Unpause(ctx, testAdmin))
		_, err = h.Engine.FinalizeAuction(ctx, id, "A")
		check.NoError(t, err)
	})
}

func TestPause_DoesNotAffectOtherEngines(t *testing.T) {
	ctx := context.Background()
	h1 := newHarness(t)
	h2 := newHarness(t)

	assert.NoError(t, h1.Engine.Pause(ctx, testAdmin))
	_, err := h2.Engine.CreateAuction(ctx, testSeller, testAsset, d("1"), d("0.1"), 24*time.Hour)
	check.NoError(t, err)
}
