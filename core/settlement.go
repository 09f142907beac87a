package core

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// FinalizeAuction closes auction id after its end time. Any identity may call it.
//
// The finalized status, the seller's payout credit and all refund credits are
// committed before any transfer is attempted, so a transfer that calls back
// into the engine sees the auction already finalized. Transfers then run
// without engine locks held:
//  1. Release the asset to the winner, or back to the seller if nobody bid
//  2. Push the seller's payout through the same path as Withdraw
//
// Outbid bidders keep pull credits and call Withdraw themselves.
//
// If a transfer fails the auction stays finalized: the returned Settlement is
// non-nil and the error carries CodeTransferFailed. The asset can be retried
// with DeliverAsset and the payout with Withdraw.
func (e *Engine) FinalizeAuction(ctx context.Context, id AuctionID, caller Identity) (*Settlement, error) {
	if e.pauseBlocksFinalize && e.paused() {
		return nil, newError(CodePaused, id, "engine is paused")
	}
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()

	ent.mu.Lock()
	a := &ent.auction
	if !a.Active() {
		ent.mu.Unlock()
		return nil, newError(CodeAuctionNotActive, id, "auction is %s", a.Status)
	}
	if now.Before(a.EndTime) {
		ent.mu.Unlock()
		return nil, newError(CodeAuctionNotEnded, id, "auction ends at %s", a.EndTime)
	}

	a.Status = StatusFinalized
	a.FinalizedAt = now
	a.Custody = CustodyReleasing

	settlement := &Settlement{
		AuctionID:      id,
		Asset:          a.Asset,
		Seller:         a.Seller,
		Amount:         decimal.Zero,
		AssetRecipient: a.Seller,
		FinalizedAt:    now,
	}
	if w := ent.highestBidIndex(); w >= 0 {
		winning := &ent.bids[w]
		winning.Settled = true
		ent.credit(a.Seller, winning.Amount)
		ent.accounts.Payout = winning.Amount

		won := *winning
		settlement.Winner = winning.Bidder
		settlement.WinningBid = &won
		settlement.Amount = winning.Amount
		settlement.AssetRecipient = winning.Bidder
	}
	for i := range ent.bids {
		b := &ent.bids[i]
		if b.Settled || b.Refunded {
			continue
		}
		b.Refunded = true
		ent.credit(b.Bidder, b.Amount)
		ent.accounts.Refunded = ent.accounts.Refunded.Add(b.Amount)
	}
	for _, c := range ent.creditList() {
		if c.Party == a.Seller {
			// A seller who bid on their own auction keeps that refund.
			c.Amount = c.Amount.Sub(settlement.Amount)
			if !c.Amount.IsPositive() {
				continue
			}
		}
		settlement.Refunds = append(settlement.Refunds, c)
	}
	ent.mu.Unlock()

	e.log.Info().
		Uint64("auction_id", uint64(id)).
		Str("winner", string(settlement.Winner)).
		Str("amount", settlement.Amount.String()).
		Str("finalized_by", string(caller)).
		Msg("auction finalized")

	var errs []error
	if err := e.releaseAsset(ctx, ent); err != nil {
		errs = append(errs, err)
	} else {
		settlement.AssetDelivered = true
	}

	if settlement.Winner != "" {
		_, err := e.withdraw(ctx, ent, settlement.Seller)
		switch {
		case err == nil, errors.Is(err, ErrNothingToWithdraw):
			// Already withdrawn counts as delivered: the seller pulled it
			// during the asset transfer.
			settlement.PayoutDelivered = true
		default:
			errs = append(errs, err)
		}
	}

	e.publish(ctx, ent, id, EventAuctionFinalized, AuctionFinalized{
		Winner:         settlement.Winner,
		Amount:         settlement.Amount,
		Seller:         settlement.Seller,
		AssetRecipient: settlement.AssetRecipient,
		FinalizedBy:    caller,
	})

	if len(errs) > 0 {
		return settlement, &Error{
			Code:      CodeTransferFailed,
			Message:   "auction finalized but not all transfers completed",
			AuctionID: id,
			Cause:     errors.Join(errs...),
		}
	}
	return settlement, nil
}

// Withdraw transfers caller's whole credited balance in auction id to caller.
// The balance is cleared before the transfer and restored if it fails.
func (e *Engine) Withdraw(ctx context.Context, id AuctionID, caller Identity) (decimal.Decimal, error) {
	ent, err := e.entry(id)
	if err != nil {
		return decimal.Zero, err
	}
	return e.withdraw(ctx, ent, caller)
}

func (e *Engine) withdraw(ctx context.Context, ent *auctionEntry, who Identity) (decimal.Decimal, error) {
	ent.mu.Lock()
	id := ent.auction.ID
	amount := ent.credits[who]
	if !amount.IsPositive() {
		ent.mu.Unlock()
		return decimal.Zero, newError(CodeNothingToWithdraw, id, "no credit for %q", who)
	}
	delete(ent.credits, who)
	ent.accounts.Withdrawn = ent.accounts.Withdrawn.Add(amount)
	ent.mu.Unlock()

	if err := e.funds.Transfer(ctx, who, amount); err != nil {
		ent.mu.Lock()
		ent.credit(who, amount)
		ent.accounts.Withdrawn = ent.accounts.Withdrawn.Sub(amount)
		ent.mu.Unlock()

		e.log.Warn().Err(err).
			Uint64("auction_id", uint64(id)).
			Str("recipient", string(who)).
			Str("amount", amount.String()).
			Msg("withdrawal transfer failed, credit restored")
		return decimal.Zero, wrapError(CodeTransferFailed, id, err, "transfer %s to %q", amount, who)
	}

	e.log.Info().
		Uint64("auction_id", uint64(id)).
		Str("recipient", string(who)).
		Str("amount", amount.String()).
		Msg("credit withdrawn")
	e.publish(ctx, ent, id, EventCreditWithdrawn, CreditWithdrawn{Recipient: who, Amount: amount})
	return amount, nil
}

// DeliverAsset retries the release of a finalized auction's asset after an
// earlier transfer failed. Any identity may call it.
func (e *Engine) DeliverAsset(ctx context.Context, id AuctionID) error {
	ent, err := e.entry(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	a := &ent.auction
	if a.Active() {
		ent.mu.Unlock()
		return newError(CodeAuctionActive, id, "auction has not been finalized")
	}
	if a.Custody != CustodyEscrowed {
		ent.mu.Unlock()
		return newError(CodeAssetReleased, id, "asset is %s", a.Custody)
	}
	a.Custody = CustodyReleasing
	ent.mu.Unlock()

	return e.releaseAsset(ctx, ent)
}

// releaseAsset moves the escrowed asset to its final recipient. The caller
// must have set Custody to CustodyReleasing under ent.mu, which makes it the
// only goroutine allowed to attempt the transfer.
func (e *Engine) releaseAsset(ctx context.Context, ent *auctionEntry) error {
	ent.mu.Lock()
	id := ent.auction.ID
	asset := ent.auction.Asset
	recipient := ent.auction.Seller
	if ent.auction.HasBid() {
		recipient = ent.auction.HighestBidder
	}
	ent.mu.Unlock()

	if err := e.assets.Transfer(ctx, e.identity, recipient, asset); err != nil {
		ent.mu.Lock()
		ent.auction.Custody = CustodyEscrowed
		ent.mu.Unlock()

		e.log.Error().Err(err).
			Uint64("auction_id", uint64(id)).
			Str("asset", string(asset)).
			Str("recipient", string(recipient)).
			Msg("asset release failed, asset stays in escrow")
		return wrapError(CodeTransferFailed, id, err, "release %s to %q", asset, recipient)
	}

	ent.mu.Lock()
	ent.auction.Custody = CustodyReleased
	ent.mu.Unlock()

	e.stateMu.Lock()
	if e.escrowed[asset] == id {
		delete(e.escrowed, asset)
	}
	e.stateMu.Unlock()

	e.publish(ctx, ent, id, EventAssetReleased, AssetReleased{Asset: asset, Recipient: recipient})
	return nil
}
