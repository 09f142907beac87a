package core

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceBid records a bid of amount by caller on auction id.
//
// The value of the bid is already in the engine's custody when PlaceBid is
// called; if PlaceBid returns an error the caller keeps responsibility for
// returning it. Outbidding never moves funds: the previous highest bidder is
// credited and withdraws later.
func (e *Engine) PlaceBid(ctx context.Context, id AuctionID, caller Identity, amount decimal.Decimal) (Bid, error) {
	if e.paused() {
		return Bid{}, newError(CodePaused, id, "engine is paused")
	}
	ent, err := e.entry(id)
	if err != nil {
		return Bid{}, err
	}
	if caller == "" {
		return Bid{}, newError(CodeInvalidParameters, id, "bidder is required")
	}

	now := e.clock.Now()

	ent.mu.Lock()
	a := &ent.auction
	if !a.Active() {
		ent.mu.Unlock()
		return Bid{}, newError(CodeAuctionNotActive, id, "auction is %s", a.Status)
	}
	if !now.Before(a.EndTime) {
		ent.mu.Unlock()
		return Bid{}, newError(CodeAuctionExpired, id, "auction ended at %s", a.EndTime)
	}
	if !ValidAmount(amount) {
		ent.mu.Unlock()
		return Bid{}, newError(CodeInvalidParameters, id, "invalid bid amount %s", amount)
	}
	if !a.HasBid() {
		if !BidMeetsStartingBid(amount, a.StartingBid) {
			ent.mu.Unlock()
			return Bid{}, newError(CodeBidTooLow, id, "bid %s below starting bid %s", amount, a.StartingBid)
		}
	} else if !BidMeetsIncrement(amount, a.HighestBid, a.MinIncrement) {
		ent.mu.Unlock()
		return Bid{}, newError(CodeBidTooLow, id, "bid %s below minimum %s", amount, MinimumNextBid(*a))
	}

	var (
		previousBidder Identity
		refund         = decimal.Zero
	)
	if prev := ent.highestBidIndex(); prev >= 0 {
		pb := &ent.bids[prev]
		pb.Refunded = true
		previousBidder = pb.Bidder
		refund = pb.Amount
		ent.credit(pb.Bidder, pb.Amount)
		ent.accounts.Refunded = ent.accounts.Refunded.Add(pb.Amount)
	}

	bid := Bid{
		ID:        uuid.New(),
		AuctionID: id,
		Bidder:    caller,
		Amount:    amount,
		Sequence:  uint64(len(ent.bids)) + 1,
		PlacedAt:  now,
	}
	ent.bids = append(ent.bids, bid)
	a.HighestBid = amount
	a.HighestBidder = caller
	ent.accounts.Received = ent.accounts.Received.Add(amount)
	ent.events.push(e.newEvent(EventBidAccepted, id, now, BidAccepted{
		BidID:          bid.ID,
		Bidder:         caller,
		Amount:         amount,
		Sequence:       bid.Sequence,
		PreviousBidder: previousBidder,
		RefundCredited: refund,
	}))
	ent.mu.Unlock()

	e.log.Info().
		Uint64("auction_id", uint64(id)).
		Str("bidder", string(caller)).
		Str("amount", amount.String()).
		Uint64("sequence", bid.Sequence).
		Msg("bid accepted")

	e.deliver(ctx, &ent.events)
	return bid, nil
}

// creditList returns the non-zero credits ordered by party. ent.mu must be held.
func (ent *auctionEntry) creditList() []Credit {
	out := make([]Credit, 0, len(ent.credits))
	for who, amt := range ent.credits {
		if amt.IsPositive() {
			out = append(out, Credit{Party: who, Amount: amt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Party < out[j].Party })
	return out
}
