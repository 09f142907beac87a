package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeBidHash computes the commitment for one bid in a settlement receipt.
// This is used by receipt issuance (to generate hashes) and validation (to verify hashes).
//
// Formula: SHA256(bid_id + "|" + amount + "|" + nonce)
//
// The amount is formatted with exactly MonetaryPrecision decimal places so that
// "1.1" and "1.10" hash identically.
func ComputeBidHash(bidID string, amount decimal.Decimal, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", bidID, amount.StringFixed(MonetaryPrecision), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeSettlementHash computes the commitment to an auction outcome.
//
// Formula: SHA256(auction_id + "|" + asset + "|" + seller + "|" + winner + "|" + amount + "|" + nonce)
//
// winner is the empty string when the auction closed without bids.
func ComputeSettlementHash(auctionID AuctionID, asset AssetRef, seller, winner Identity, amount decimal.Decimal, nonce string) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s",
		uint64(auctionID), asset, seller, winner, amount.StringFixed(MonetaryPrecision), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
