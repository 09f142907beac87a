package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Identity names a party known to the engine: a seller, a bidder, the admin or
// the engine's own custody account.
type Identity string

// AssetRef identifies a uniquely-owned asset held by the AssetRegistry.
type AssetRef string

// AuctionID is assigned by the engine in strictly increasing order, starting at 1.
type AuctionID uint64

func (id AuctionID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Status is the lifecycle state of an auction.
type Status int

const (
	StatusActive Status = iota + 1
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Custody tracks where the escrowed asset is.
type Custody int

const (
	// CustodyEscrowed means the engine holds the asset.
	CustodyEscrowed Custody = iota + 1
	// CustodyReleasing means a release transfer is in flight.
	CustodyReleasing
	// CustodyReleased means the asset left escrow for its final recipient.
	CustodyReleased
)

func (c Custody) String() string {
	switch c {
	case CustodyEscrowed:
		return "escrowed"
	case CustodyReleasing:
		return "releasing"
	case CustodyReleased:
		return "released"
	default:
		return fmt.Sprintf("custody(%d)", int(c))
	}
}

// Auction is the registry record for a single-item ascending-bid auction.
// Records are never deleted.
type Auction struct {
	ID            AuctionID       `json:"id"`
	Asset         AssetRef        `json:"asset"`
	Seller        Identity        `json:"seller"`
	StartingBid   decimal.Decimal `json:"starting_bid"`
	MinIncrement  decimal.Decimal `json:"min_increment"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder Identity        `json:"highest_bidder,omitempty"` // empty until the first accepted bid
	CreatedAt     time.Time       `json:"created_at"`
	EndTime       time.Time       `json:"end_time"`
	Status        Status          `json:"status"`
	FinalizedAt   time.Time       `json:"finalized_at,omitzero"`
	Custody       Custody         `json:"custody"`
}

// HasBid reports whether at least one bid has been accepted.
func (a Auction) HasBid() bool {
	return a.HighestBidder != ""
}

// Active reports whether the auction still accepts bids (ignoring the clock).
func (a Auction) Active() bool {
	return a.Status == StatusActive
}

// Bid is one accepted bid. Only Refunded and Settled ever change after the bid
// is appended, and at most one of them is set.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID AuctionID       `json:"auction_id"`
	Bidder    Identity        `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	Sequence  uint64          `json:"sequence"`
	PlacedAt  time.Time       `json:"placed_at"`

	// Refunded is set once Amount has been credited back to Bidder.
	Refunded bool `json:"refunded"`
	// Settled is set on the winning bid once Amount has been credited to the seller.
	Settled bool `json:"settled"`
}

// ProcessState is the engine-wide administrative state.
type ProcessState struct {
	Admin         Identity  `json:"admin"`
	Paused        bool      `json:"paused"`
	NextAuctionID AuctionID `json:"next_auction_id"`
}

// Credit is a withdrawable balance owed to one party of one auction.
type Credit struct {
	Party  Identity        `json:"party"`
	Amount decimal.Decimal `json:"amount"`
}

// Accounting holds the value totals of one auction.
//
// Received counts every accepted bid. Payout is the winning amount credited to
// the seller and Refunded is the sum credited back to outbid bidders, so after
// finalization Received == Payout + Refunded. Withdrawn counts what has left
// the engine through transfers.
type Accounting struct {
	Received  decimal.Decimal `json:"received"`
	Payout    decimal.Decimal `json:"payout"`
	Refunded  decimal.Decimal `json:"refunded"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
}

// Outstanding is the value still held by the engine for this auction.
func (a Accounting) Outstanding() decimal.Decimal {
	return a.Received.Sub(a.Withdrawn)
}

// Settlement describes the outcome of FinalizeAuction.
type Settlement struct {
	AuctionID      AuctionID       `json:"auction_id"`
	Asset          AssetRef        `json:"asset"`
	Seller         Identity        `json:"seller"`
	Winner         Identity        `json:"winner,omitempty"` // empty when no bid was accepted
	WinningBid     *Bid            `json:"winning_bid,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	AssetRecipient Identity        `json:"asset_recipient"`
	FinalizedAt    time.Time       `json:"finalized_at"`

	// Refunds lists credits owed to outbid bidders at finalization time. A
	// seller who also bid is listed with their refund only, never the payout.
	Refunds []Credit `json:"refunds,omitempty"`

	AssetDelivered  bool `json:"asset_delivered"`
	PayoutDelivered bool `json:"payout_delivered"`
}

// Complete reports whether both the asset and the seller payout moved.
func (s *Settlement) Complete() bool {
	if s.Winner == "" {
		return s.AssetDelivered
	}
	return s.AssetDelivered && s.PayoutDelivered
}
