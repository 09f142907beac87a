package core

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// CreateAuction escrows asset and opens an auction for it.
//
// Processing flow:
//  1. Reject while paused, and reject out-of-range parameters
//  2. Verify caller owns asset and has approved the engine as operator
//  3. Reserve the asset so a concurrent create for it fails fast
//  4. Transfer the asset into the engine's custody
//  5. Assign the next id and insert the Active auction
func (e *Engine) CreateAuction(
	ctx context.Context,
	caller Identity,
	asset AssetRef,
	startingBid decimal.Decimal,
	minIncrement decimal.Decimal,
	duration time.Duration,
) (AuctionID, error) {
	if e.paused() {
		return 0, newError(CodePaused, 0, "engine is paused")
	}
	if caller == "" || asset == "" {
		return 0, newError(CodeInvalidParameters, 0, "caller and asset are required")
	}
	if !ValidAmount(startingBid) {
		return 0, newError(CodeInvalidParameters, 0, "invalid starting bid %s", startingBid)
	}
	if !ValidAmount(minIncrement) {
		return 0, newError(CodeInvalidParameters, 0, "invalid minimum increment %s", minIncrement)
	}
	if !DurationAllowed(duration, e.minDuration, e.boundary) {
		return 0, newError(CodeInvalidParameters, 0, "duration %v below minimum %v", duration, e.minDuration)
	}

	owner, err := e.assets.OwnerOf(ctx, asset)
	if err != nil {
		return 0, wrapError(CodeNotOwner, 0, err, "lookup owner of %s", asset)
	}
	if owner != caller {
		return 0, newError(CodeNotOwner, 0, "%q does not own %s", caller, asset)
	}
	approved, err := e.assets.IsTransferApproved(ctx, caller, e.identity, asset)
	if err != nil {
		return 0, wrapError(CodeTransferNotAuthorized, 0, err, "check approval for %s", asset)
	}
	if !approved {
		return 0, newError(CodeTransferNotAuthorized, 0, "engine is not approved to transfer %s", asset)
	}

	e.stateMu.Lock()
	if e.state.Paused {
		e.stateMu.Unlock()
		return 0, newError(CodePaused, 0, "engine is paused")
	}
	if _, held := e.escrowed[asset]; held {
		e.stateMu.Unlock()
		return 0, newError(CodeAssetInEscrow, 0, "%s is already in escrow", asset)
	}
	e.escrowed[asset] = 0
	e.stateMu.Unlock()

	if err := e.assets.Transfer(ctx, caller, e.identity, asset); err != nil {
		e.stateMu.Lock()
		delete(e.escrowed, asset)
		e.stateMu.Unlock()
		return 0, wrapError(CodeTransferFailed, 0, err, "escrow %s", asset)
	}

	now := e.clock.Now()
	e.stateMu.Lock()
	id := e.state.NextAuctionID
	e.state.NextAuctionID++
	e.escrowed[asset] = id
	e.stateMu.Unlock()

	ent := &auctionEntry{
		auction: Auction{
			ID:           id,
			Asset:        asset,
			Seller:       caller,
			StartingBid:  startingBid,
			MinIncrement: minIncrement,
			HighestBid:   decimal.Zero,
			CreatedAt:    now,
			EndTime:      now.Add(duration),
			Status:       StatusActive,
			Custody:      CustodyEscrowed,
		},
		credits: make(map[Identity]decimal.Decimal),
		accounts: Accounting{
			Received:  decimal.Zero,
			Payout:    decimal.Zero,
			Refunded:  decimal.Zero,
			Withdrawn: decimal.Zero,
		},
	}
	// Queued before the entry is visible so no bid event can precede it.
	ent.events.push(e.newEvent(EventAuctionCreated, id, now, AuctionCreated{
		Seller:       caller,
		Asset:        asset,
		StartingBid:  startingBid,
		MinIncrement: minIncrement,
		EndTime:      ent.auction.EndTime,
	}))
	e.auctionsMu.Lock()
	e.auctions[id] = ent
	e.auctionsMu.Unlock()

	e.log.Info().
		Uint64("auction_id", uint64(id)).
		Str("seller", string(caller)).
		Str("asset", string(asset)).
		Str("starting_bid", startingBid.String()).
		Time("end_time", ent.auction.EndTime).
		Msg("auction created")

	e.deliver(ctx, &ent.events)
	return id, nil
}

// GetAuction returns a copy of the auction record.
func (e *Engine) GetAuction(id AuctionID) (Auction, error) {
	ent, err := e.entry(id)
	if err != nil {
		return Auction{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.auction, nil
}

// Bids returns the auction's bids in arrival order.
func (e *Engine) Bids(id AuctionID) ([]Bid, error) {
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.copyBids(), nil
}

// CreditOf returns the withdrawable balance of who in auction id.
func (e *Engine) CreditOf(id AuctionID, who Identity) (decimal.Decimal, error) {
	ent, err := e.entry(id)
	if err != nil {
		return decimal.Zero, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.credits[who], nil
}

// Credits returns every non-zero withdrawable balance of auction id.
func (e *Engine) Credits(id AuctionID) ([]Credit, error) {
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.creditList(), nil
}

// Accounting returns the value totals of auction id.
func (e *Engine) Accounting(id AuctionID) (Accounting, error) {
	ent, err := e.entry(id)
	if err != nil {
		return Accounting{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.accounts, nil
}

// ListActive yields active auctions in id order. Each auction's status is
// read when it is reached, so an auction finalized mid-iteration is skipped.
func (e *Engine) ListActive() iter.Seq[Auction] {
	return func(yield func(Auction) bool) {
		for _, id := range e.sortedIDs() {
			a, err := e.GetAuction(id)
			if err != nil || !a.Active() {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}
