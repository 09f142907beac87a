// Package receipt issues signed settlement receipts for finalized auctions.
package receipt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

// Issue builds the SettlementReceipt for settlement and has signer sign it.
//
// Every bid of the auction is committed as a salted hash, so a bidder can
// prove inclusion without the receipt revealing other bidders. The winner's
// identity and the seller are only committed through SettlementHash.
func Issue(signer Signer, settlement *core.Settlement, bids []core.Bid, now time.Time) (*auctionapi.SettlementReceipt, auctionapi.ReceiptCOSE, error) {
	if signer == nil {
		return nil, nil, fmt.Errorf("receipt signer is nil")
	}
	if settlement == nil {
		return nil, nil, fmt.Errorf("settlement is nil")
	}

	bidHashNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate bid hash nonce: %w", err)
	}
	settlementNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate settlement nonce: %w", err)
	}

	bidHashes := make([]string, 0, len(bids))
	for _, bid := range bids {
		bidHashes = append(bidHashes, core.ComputeBidHash(bid.ID.String(), bid.Amount, bidHashNonce))
	}

	r := &auctionapi.SettlementReceipt{
		AuctionID:    uint64(settlement.AuctionID),
		Asset:        string(settlement.Asset),
		BidCount:     len(bids),
		BidHashes:    bidHashes,
		BidHashNonce: bidHashNonce,
		SettlementHash: core.ComputeSettlementHash(settlement.AuctionID, settlement.Asset,
			settlement.Seller, settlement.Winner, settlement.Amount, settlementNonce),
		SettlementNonce: settlementNonce,
		FinalizedAt:     settlement.FinalizedAt,
		IssuedAt:        now,
	}
	if w := settlement.WinningBid; w != nil {
		r.Winner = &auctionapi.WinningBid{
			BidID:    w.ID.String(),
			Amount:   w.Amount,
			Sequence: w.Sequence,
		}
	}

	userData, err := json.Marshal(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	signed, err := signer.Sign(userData)
	if err != nil {
		return nil, nil, fmt.Errorf("sign receipt for auction %d: %w", settlement.AuctionID, err)
	}
	return r, signed, nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// Inside an enclave crypto/rand draws from the NSM-seeded kernel pool.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
