package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

// ReceiptValidationInput contains all inputs needed for settlement receipt validation
type ReceiptValidationInput struct {
	// One of the two encodings must be set. Gzip wins when both are.
	ReceiptCOSEGzip   auctionapi.ReceiptCOSEGzip
	ReceiptCOSEBase64 auctionapi.ReceiptCOSEBase64

	Trust TrustConfig

	AuctionID     uint64           // 0 = do not check
	ClearingPrice *decimal.Decimal // nil = no winner expected, non-nil = winner at this amount

	// Bid checks run when BidID is set.
	BidID     string
	BidAmount decimal.Decimal
	IsWinner  bool // Expected result (true = expect to win, false = expect to be outbid)

	// Settlement checks run when set.
	Settlement *SettlementClaim
}

// SettlementClaim is what a party to the settlement believes happened. Its
// fields are committed by the receipt's settlement hash.
type SettlementClaim struct {
	Asset  string
	Seller string
	Winner string // empty when no bid was accepted
	Amount decimal.Decimal
}

func (in *ReceiptValidationInput) receiptCOSE() (auctionapi.ReceiptCOSE, error) {
	switch {
	case in.ReceiptCOSEGzip != "":
		c, err := in.ReceiptCOSEGzip.Decompress()
		if err != nil {
			return nil, fmt.Errorf("decompress receipt: %w", err)
		}
		return c, nil
	case in.ReceiptCOSEBase64 != "":
		return in.ReceiptCOSEBase64.Decode()
	default:
		return nil, fmt.Errorf("no receipt supplied")
	}
}

// ValidateReceipt validates a signed settlement receipt and verifies:
// - The receipt was signed by a trusted daemon key or attested enclave
// - The auction and clearing price match
// - The bid was included in the auction, and won or lost as expected
// - The settlement hash commits to the claimed seller, winner and amount
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	coseBytes, err := input.receiptCOSE()
	if err != nil {
		return nil, err
	}

	doc, err := coseBytes.ParseReceipt()
	if err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}

	baseResult, err := validateEnvelope(coseBytes, doc, input.Trust)
	if err != nil {
		return nil, err
	}

	result := &ReceiptValidationResult{
		BaseValidationResult: *baseResult,
		BidChecked:           input.BidID != "",
		SettlementChecked:    input.Settlement != nil,
	}

	r := doc.Receipt
	if r == nil {
		result.ValidationDetails = append(result.ValidationDetails, "Receipt user data missing")
		return result, nil
	}
	result.AuctionValid = validateAuctionID(input, r, result)

	result.ClearingPriceValid = validateClearingPrice(input, r, result)

	if result.BidChecked {
		result.BidHashValid = validateBidHash(input, r, result)
		result.WinnerValid = validateWinner(input, r, result)
	}

	if result.SettlementChecked {
		result.SettlementHashValid = validateSettlementHash(input.Settlement, r, result)
	}

	return result, nil
}

func validateAuctionID(input *ReceiptValidationInput, r *auctionapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if input.AuctionID == 0 || input.AuctionID == r.AuctionID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Receipt for auction %d (%d bids)", r.AuctionID, r.BidCount))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction mismatch: expected %d, receipt is for %d", input.AuctionID, r.AuctionID))
	return false
}

func validateBidHash(input *ReceiptValidationInput, r *auctionapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if r.BidHashNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Bid hash nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeBidHash(input.BidID, input.BidAmount, r.BidHashNonce)
	for _, receiptHash := range r.BidHashes {
		if computedHash == receiptHash {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash found in receipt: %s", computedHash))
			return true
		}
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash NOT found in receipt. Computed: %s", computedHash))
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Total hashes in receipt: %d", len(r.BidHashes)))
	return false
}

func validateClearingPrice(input *ReceiptValidationInput, r *auctionapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if input.ClearingPrice == nil {
		if r.Winner == nil {
			result.ValidationDetails = append(result.ValidationDetails, "Clearing price validation passed: no winner expected and no winner in receipt")
			return true
		}
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected no winner, but receipt has winner at %s", r.Winner.Amount))
		return false
	}

	if r.Winner == nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected winner at %s, but receipt has no winner", input.ClearingPrice))
		return false
	}

	if input.ClearingPrice.Equal(r.Winner.Amount) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price validation passed: %s", r.Winner.Amount))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected %s, receipt has %s", input.ClearingPrice, r.Winner.Amount))
	return false
}

func validateWinner(input *ReceiptValidationInput, r *auctionapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	actuallyWon := r.Winner != nil && r.Winner.BidID == input.BidID

	if input.IsWinner == actuallyWon {
		if actuallyWon {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner validation passed: bid won as expected (amount: %s)", r.Winner.Amount))
		} else {
			result.ValidationDetails = append(result.ValidationDetails, "Winner validation passed: bid lost as expected")
		}
		return true
	}

	if input.IsWinner {
		result.ValidationDetails = append(result.ValidationDetails, "Winner validation failed: expected to win, but did not win")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner validation failed: expected to lose, but won at %s", r.Winner.Amount))
	}
	return false
}

func validateSettlementHash(claim *SettlementClaim, r *auctionapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if r.SettlementNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Settlement nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeSettlementHash(core.AuctionID(r.AuctionID), core.AssetRef(claim.Asset),
		core.Identity(claim.Seller), core.Identity(claim.Winner), claim.Amount, r.SettlementNonce)
	if computedHash == r.SettlementHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash mismatch: computed %s, receipt has %s", computedHash, r.SettlementHash))
	return false
}
