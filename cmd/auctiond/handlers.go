package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/receipt"
)

type handlerFunc func(ctx context.Context, raw []byte) (any, error)

var errJournalDisabled = errors.New("event journal is disabled")

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		auctionapi.TypePing:            s.handlePing,
		auctionapi.TypeRegisterAsset:   s.handleRegisterAsset,
		auctionapi.TypeApprove:         s.handleApprove,
		auctionapi.TypeDeposit:         s.handleDeposit,
		auctionapi.TypeBalance:         s.handleBalance,
		auctionapi.TypeCreateAuction:   s.handleCreateAuction,
		auctionapi.TypePlaceBid:        s.handlePlaceBid,
		auctionapi.TypeFinalizeAuction: s.handleFinalizeAuction,
		auctionapi.TypeWithdraw:        s.handleWithdraw,
		auctionapi.TypeDeliverAsset:    s.handleDeliverAsset,
		auctionapi.TypePause:           s.handlePause,
		auctionapi.TypeUnpause:         s.handleUnpause,
		auctionapi.TypeGetAuction:      s.handleGetAuction,
		auctionapi.TypeListActive:      s.handleListActive,
		auctionapi.TypeEvents:          s.handleEvents,
		auctionapi.TypeSigningKey:      s.handleSigningKey,
	}
}

func (s *Server) handlePing(context.Context, []byte) (any, error) {
	return auctionapi.PongResponse{
		Type:      "pong",
		Message:   "auctiond is healthy",
		Timestamp: s.clock.Now().Unix(),
	}, nil
}

func (s *Server) handleRegisterAsset(_ context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AssetRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.assets.Register(req.Owner, req.Asset); err != nil {
		return nil, err
	}
	return auctionapi.AckResponse{Type: "ack", Message: fmt.Sprintf("asset %s registered to %s", req.Asset, req.Owner)}, nil
}

// handleApprove lets the engine move the owner's asset into escrow.
func (s *Server) handleApprove(_ context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AssetRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.assets.Approve(req.Owner, s.engine.Identity(), req.Asset); err != nil {
		return nil, err
	}
	return auctionapi.AckResponse{Type: "ack", Message: fmt.Sprintf("engine approved for %s", req.Asset)}, nil
}

func (s *Server) handleDeposit(_ context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AccountRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Deposit(req.Account, req.Amount); err != nil {
		return nil, err
	}
	return auctionapi.BalanceResponse{Type: "balance", Account: req.Account, Balance: s.wallets.Balance(req.Account)}, nil
}

func (s *Server) handleBalance(_ context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AccountRequest](raw)
	if err != nil {
		return nil, err
	}
	return auctionapi.BalanceResponse{Type: "balance", Account: req.Account, Balance: s.wallets.Balance(req.Account)}, nil
}

func (s *Server) handleCreateAuction(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.CreateAuctionRequest](raw)
	if err != nil {
		return nil, err
	}
	id, err := s.engine.CreateAuction(ctx, req.Caller, req.Asset, req.StartingBid, req.MinIncrement, req.Duration())
	if err != nil {
		return nil, err
	}
	a, err := s.engine.GetAuction(id)
	if err != nil {
		return nil, err
	}
	return auctionapi.CreateAuctionResponse{Type: "auction_created", Auction: auctionapi.NewAuctionView(a)}, nil
}

// handlePlaceBid collects the bid value from the caller's wallet before the
// engine sees the bid, and hands it back if the engine rejects it.
func (s *Server) handlePlaceBid(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.PlaceBidRequest](raw)
	if err != nil {
		return nil, err
	}
	if !core.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("%w: amount %s", core.ErrInvalidParameters, req.Amount)
	}
	if err := s.wallets.Collect(req.Caller, req.Amount); err != nil {
		return nil, err
	}

	bid, err := s.engine.PlaceBid(ctx, req.AuctionID, req.Caller, req.Amount)
	if err != nil {
		if refundErr := s.wallets.Transfer(ctx, req.Caller, req.Amount); refundErr != nil {
			s.log.Error().Err(refundErr).
				Uint64("auction_id", uint64(req.AuctionID)).
				Str("bidder", string(req.Caller)).
				Str("amount", req.Amount.String()).
				Msg("failed to return rejected bid value")
		}
		return nil, err
	}

	a, err := s.engine.GetAuction(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return auctionapi.BidResponse{
		Type:           "bid_accepted",
		AuctionID:      bid.AuctionID,
		BidID:          bid.ID,
		Sequence:       bid.Sequence,
		Amount:         bid.Amount,
		MinimumNextBid: core.MinimumNextBid(a),
	}, nil
}

// handleFinalizeAuction settles the auction and attaches a signed receipt.
// A transfer failure still returns the settlement, with the failure as Warning.
func (s *Server) handleFinalizeAuction(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AuctionRequest](raw)
	if err != nil {
		return nil, err
	}

	settlement, err := s.engine.FinalizeAuction(ctx, req.AuctionID, req.Caller)
	if settlement == nil {
		return nil, err
	}
	resp := auctionapi.SettlementResponse{
		Type:            "settlement",
		AuctionID:       settlement.AuctionID,
		Winner:          settlement.Winner,
		Amount:          settlement.Amount,
		AssetRecipient:  settlement.AssetRecipient,
		Refunds:         settlement.Refunds,
		AssetDelivered:  settlement.AssetDelivered,
		PayoutDelivered: settlement.PayoutDelivered,
	}
	if err != nil {
		resp.Warning = err.Error()
	}

	bids, err := s.engine.Bids(req.AuctionID)
	if err != nil {
		return nil, err
	}
	_, signed, err := receipt.Issue(s.signer, settlement, bids, s.clock.Now())
	if err != nil {
		// The auction is final either way; report the receipt failure alongside it.
		s.log.Error().Err(err).Uint64("auction_id", uint64(req.AuctionID)).Msg("failed to issue receipt")
		resp.Warning = joinWarning(resp.Warning, err.Error())
		return resp, nil
	}
	resp.Receipt = signed.EncodeBase64()
	return resp, nil
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func (s *Server) handleWithdraw(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AuctionRequest](raw)
	if err != nil {
		return nil, err
	}
	amount, err := s.engine.Withdraw(ctx, req.AuctionID, req.Caller)
	if err != nil {
		return nil, err
	}
	return auctionapi.WithdrawResponse{Type: "withdrawn", AuctionID: req.AuctionID, Recipient: req.Caller, Amount: amount}, nil
}

func (s *Server) handleDeliverAsset(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AuctionRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeliverAsset(ctx, req.AuctionID); err != nil {
		return nil, err
	}
	return auctionapi.AckResponse{Type: "ack", Message: fmt.Sprintf("asset of auction %d delivered", req.AuctionID)}, nil
}

func (s *Server) handlePause(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AdminRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Pause(ctx, req.Caller); err != nil {
		return nil, err
	}
	return auctionapi.AckResponse{Type: "ack", Message: "paused"}, nil
}

func (s *Server) handleUnpause(ctx context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AdminRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Unpause(ctx, req.Caller); err != nil {
		return nil, err
	}
	return auctionapi.AckResponse{Type: "ack", Message: "unpaused"}, nil
}

func (s *Server) handleGetAuction(_ context.Context, raw []byte) (any, error) {
	req, err := decodeRequest[auctionapi.AuctionRequest](raw)
	if err != nil {
		return nil, err
	}
	a, err := s.engine.GetAuction(req.AuctionID)
	if err != nil {
		return nil, err
	}
	bids, err := s.engine.Bids(req.AuctionID)
	if err != nil {
		return nil, err
	}
	credits, err := s.engine.Credits(req.AuctionID)
	if err != nil {
		return nil, err
	}

	resp := auctionapi.AuctionResponse{
		Type:    "auction",
		Auction: auctionapi.NewAuctionView(a),
		Bids:    make([]auctionapi.BidView, 0, len(bids)),
		Credits: credits,
	}
	for _, b := range bids {
		resp.Bids = append(resp.Bids, auctionapi.NewBidView(b))
	}
	return resp, nil
}

func (s *Server) handleListActive(context.Context, []byte) (any, error) {
	resp := auctionapi.AuctionListResponse{Type: "auctions", Auctions: []auctionapi.AuctionView{}}
	for a := range s.engine.ListActive() {
		resp.Auctions = append(resp.Auctions, auctionapi.NewAuctionView(a))
	}
	return resp, nil
}

func (s *Server) handleEvents(ctx context.Context, raw []byte) (any, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	req, err := decodeRequest[auctionapi.AuctionRequest](raw)
	if err != nil {
		return nil, err
	}
	entries, err := s.journal.Events(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	resp := auctionapi.EventsResponse{Type: "events", Events: make([]auctionapi.EventView, 0, len(entries))}
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", e.Seq, err)
		}
		resp.Events = append(resp.Events, auctionapi.EventView{
			Seq:        e.Seq,
			ID:         e.ID,
			Kind:       e.Kind,
			AuctionID:  e.AuctionID,
			OccurredAt: e.OccurredAt,
			Payload:    payload,
		})
	}
	return resp, nil
}

func (s *Server) handleSigningKey(context.Context, []byte) (any, error) {
	resp := auctionapi.SigningKeyResponse{Type: "signing_key", Mode: s.signer.Mode()}
	if k, ok := s.signer.(*receipt.KeySigner); ok {
		publicKeyPEM, err := k.PublicKeyPEM()
		if err != nil {
			return nil, err
		}
		resp.PublicKey = publicKeyPEM
	}
	return resp, nil
}

// requestTypes lists every request type the daemon answers, sorted.
func (s *Server) requestTypes() []string {
	var types []string
	for t := range s.routes {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
