package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	EventAuctionCreated   EventKind = "auction_created"
	EventBidAccepted      EventKind = "bid_accepted"
	EventAuctionFinalized EventKind = "auction_finalized"
	EventCreditWithdrawn  EventKind = "credit_withdrawn"
	EventAssetReleased    EventKind = "asset_released"
	EventPauseChanged     EventKind = "pause_changed"
)

// Event is one notification emitted by the engine. Payload is one of the
// *Created/*Accepted/... structs below, matching Kind.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       EventKind `json:"kind"`
	AuctionID  AuctionID `json:"auction_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// AuctionCreated is emitted once an asset is escrowed and its auction is open.
type AuctionCreated struct {
	Seller       Identity        `cbor:"seller" json:"seller"`
	Asset        AssetRef        `cbor:"asset" json:"asset"`
	StartingBid  decimal.Decimal `cbor:"starting_bid" json:"starting_bid"`
	MinIncrement decimal.Decimal `cbor:"min_increment" json:"min_increment"`
	EndTime      time.Time       `cbor:"end_time" json:"end_time"`
}

// BidAccepted is emitted for every accepted bid. PreviousBidder is empty for the
// first bid; otherwise RefundCredited was added to their withdrawable balance.
type BidAccepted struct {
	BidID          uuid.UUID       `cbor:"bid_id" json:"bid_id"`
	Bidder         Identity        `cbor:"bidder" json:"bidder"`
	Amount         decimal.Decimal `cbor:"amount" json:"amount"`
	Sequence       uint64          `cbor:"sequence" json:"sequence"`
	PreviousBidder Identity        `cbor:"previous_bidder,omitempty" json:"previous_bidder,omitempty"`
	RefundCredited decimal.Decimal `cbor:"refund_credited" json:"refund_credited"`
}

// AuctionFinalized is emitted once per auction. Winner is empty when no bid
// was accepted and the asset went back to the seller.
type AuctionFinalized struct {
	Winner         Identity        `cbor:"winner,omitempty" json:"winner,omitempty"`
	Amount         decimal.Decimal `cbor:"amount" json:"amount"`
	Seller         Identity        `cbor:"seller" json:"seller"`
	AssetRecipient Identity        `cbor:"asset_recipient" json:"asset_recipient"`
	FinalizedBy    Identity        `cbor:"finalized_by" json:"finalized_by"`
}

// CreditWithdrawn is emitted when a credited balance leaves the engine.
type CreditWithdrawn struct {
	Recipient Identity        `cbor:"recipient" json:"recipient"`
	Amount    decimal.Decimal `cbor:"amount" json:"amount"`
}

// AssetReleased is emitted when escrow custody ends.
type AssetReleased struct {
	Asset     AssetRef `cbor:"asset" json:"asset"`
	Recipient Identity `cbor:"recipient" json:"recipient"`
}

// PauseChanged is emitted by Pause and Unpause.
type PauseChanged struct {
	Paused bool     `cbor:"paused" json:"paused"`
	By     Identity `cbor:"by" json:"by"`
}
