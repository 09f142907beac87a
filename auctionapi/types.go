// Package auctionapi defines the JSON wire format spoken by auctiond and the
// signed settlement receipts it hands out.
package auctionapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
)

// Request types. Every request is a single JSON object whose "type" field
// selects one of these.
const (
	TypePing            = "ping"
	TypeRegisterAsset   = "register_asset"
	TypeApprove         = "approve"
	TypeDeposit         = "deposit"
	TypeBalance         = "balance"
	TypeCreateAuction   = "create_auction"
	TypePlaceBid        = "place_bid"
	TypeFinalizeAuction = "finalize_auction"
	TypeWithdraw        = "withdraw"
	TypeDeliverAsset    = "deliver_asset"
	TypePause           = "pause"
	TypeUnpause         = "unpause"
	TypeGetAuction      = "get_auction"
	TypeListActive      = "list_active"
	TypeEvents          = "events"
	TypeSigningKey      = "signing_key"
)

// BaseRequest is decoded first to route a request by Type.
type BaseRequest struct {
	Type string `json:"type"`
}

// AssetRequest registers an asset or approves the engine to move it.
type AssetRequest struct {
	Type  string        `json:"type"`
	Owner core.Identity `json:"owner"`
	Asset core.AssetRef `json:"asset"`
}

// AccountRequest deposits funds into, or reads the balance of, an account.
type AccountRequest struct {
	Type    string          `json:"type"`
	Account core.Identity   `json:"account"`
	Amount  decimal.Decimal `json:"amount,omitzero"`
}

type CreateAuctionRequest struct {
	Type            string          `json:"type"`
	Caller          core.Identity   `json:"caller"`
	Asset           core.AssetRef   `json:"asset"`
	StartingBid     decimal.Decimal `json:"starting_bid"`
	MinIncrement    decimal.Decimal `json:"min_increment"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// Duration converts DurationSeconds.
func (r *CreateAuctionRequest) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// PlaceBidRequest bids Amount, which is collected from the caller's account.
type PlaceBidRequest struct {
	Type      string          `json:"type"`
	AuctionID core.AuctionID  `json:"auction_id"`
	Caller    core.Identity   `json:"caller"`
	Amount    decimal.Decimal `json:"amount"`
}

// AuctionRequest addresses one auction: finalize_auction, withdraw,
// deliver_asset, get_auction and events. Caller is ignored where the
// operation is permissionless.
type AuctionRequest struct {
	Type      string         `json:"type"`
	AuctionID core.AuctionID `json:"auction_id"`
	Caller    core.Identity  `json:"caller,omitempty"`
}

// AdminRequest is pause or unpause.
type AdminRequest struct {
	Type   string        `json:"type"`
	Caller core.Identity `json:"caller"`
}

// ErrorResponse reports a failed request. Code and Category are set when the
// engine rejected the operation.
type ErrorResponse struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// AckResponse confirms a request that returns no data.
type AckResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type BalanceResponse struct {
	Type    string          `json:"type"`
	Account core.Identity   `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

type CreateAuctionResponse struct {
	Type    string      `json:"type"`
	Auction AuctionView `json:"auction"`
}

type BidResponse struct {
	Type           string          `json:"type"`
	AuctionID      core.AuctionID  `json:"auction_id"`
	BidID          uuid.UUID       `json:"bid_id"`
	Sequence       uint64          `json:"sequence"`
	Amount         decimal.Decimal `json:"amount"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
}

// SettlementResponse is returned by finalize_auction. When a transfer failed
// the auction is still finalized; Warning carries the transfer error.
type SettlementResponse struct {
	Type            string            `json:"type"`
	AuctionID       core.AuctionID    `json:"auction_id"`
	Winner          core.Identity     `json:"winner,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	AssetRecipient  core.Identity     `json:"asset_recipient"`
	Refunds         []core.Credit     `json:"refunds,omitempty"`
	AssetDelivered  bool              `json:"asset_delivered"`
	PayoutDelivered bool              `json:"payout_delivered"`
	Receipt         ReceiptCOSEBase64 `json:"receipt_cose_base64,omitempty"`
	Warning         string            `json:"warning,omitempty"`
}

type WithdrawResponse struct {
	Type      string          `json:"type"`
	AuctionID core.AuctionID  `json:"auction_id"`
	Recipient core.Identity   `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

type AuctionResponse struct {
	Type    string        `json:"type"`
	Auction AuctionView   `json:"auction"`
	Bids    []BidView     `json:"bids"`
	Credits []core.Credit `json:"credits,omitempty"`
}

type AuctionListResponse struct {
	Type     string        `json:"type"`
	Auctions []AuctionView `json:"auctions"`
}

type EventsResponse struct {
	Type   string      `json:"type"`
	Events []EventView `json:"events"`
}

// SigningKeyResponse publishes the PEM public key receipts are verified with.
// Empty in Nitro mode, where receipts carry their own certificate chain.
type SigningKeyResponse struct {
	Type      string `json:"type"`
	Mode      string `json:"mode"`
	PublicKey string `json:"public_key,omitempty"`
}

// AuctionView is the wire form of core.Auction.
type AuctionView struct {
	ID             core.AuctionID  `json:"id"`
	Asset          core.AssetRef   `json:"asset"`
	Seller         core.Identity   `json:"seller"`
	StartingBid    decimal.Decimal `json:"starting_bid"`
	MinIncrement   decimal.Decimal `json:"min_increment"`
	HighestBid     decimal.Decimal `json:"highest_bid"`
	HighestBidder  core.Identity   `json:"highest_bidder,omitempty"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
	CreatedAt      time.Time       `json:"created_at"`
	EndTime        time.Time       `json:"end_time"`
	Status         string          `json:"status"`
	Custody        string          `json:"custody"`
	FinalizedAt    time.Time       `json:"finalized_at,omitzero"`
}

func NewAuctionView(a core.Auction) AuctionView {
	return AuctionView{
		ID:             a.ID,
		Asset:          a.Asset,
		Seller:         a.Seller,
		StartingBid:    a.StartingBid,
		MinIncrement:   a.MinIncrement,
		HighestBid:     a.HighestBid,
		HighestBidder:  a.HighestBidder,
		MinimumNextBid: core.MinimumNextBid(a),
		CreatedAt:      a.CreatedAt,
		EndTime:        a.EndTime,
		Status:         a.Status.String(),
		Custody:        a.Custody.String(),
		FinalizedAt:    a.FinalizedAt,
	}
}

// BidView is the wire form of core.Bid.
type BidView struct {
	ID       uuid.UUID       `json:"id"`
	Bidder   core.Identity   `json:"bidder"`
	Amount   decimal.Decimal `json:"amount"`
	Sequence uint64          `json:"sequence"`
	PlacedAt time.Time       `json:"placed_at"`
	State    string          `json:"state"`
}

func NewBidView(b core.Bid) BidView {
	state := "leading"
	switch {
	case b.Settled:
		state = "settled"
	case b.Refunded:
		state = "refunded"
	}
	return BidView{
		ID:       b.ID,
		Bidder:   b.Bidder,
		Amount:   b.Amount,
		Sequence: b.Sequence,
		PlacedAt: b.PlacedAt,
		State:    state,
	}
}

// EventView is a journaled engine event.
type EventView struct {
	Seq        int64           `json:"seq"`
	ID         uuid.UUID       `json:"id"`
	Kind       core.EventKind  `json:"kind"`
	AuctionID  core.AuctionID  `json:"auction_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewErrorResponse maps err to an ErrorResponse, keeping the engine code when there is one.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Type: "error", Message: err.Error()}
	if code := core.CodeOf(err); code != "" {
		resp.Code = string(code)
		resp.Category = string(code.Category())
	}
	return resp
}
