package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/validation"
)

type options struct {
	settlement string
	bid        string
	isWinner   bool
	seller     string
	asset      string
	publicKey  string
	pcrs       string
	rootCA     string
}

func main() {
	var opts options
	flag.StringVar(&opts.settlement, "settlement", "", "finalize_auction response JSON (file path or inline JSON)")
	flag.StringVar(&opts.bid, "bid", "", "place_bid response JSON (file path or inline JSON)")
	flag.BoolVar(&opts.isWinner, "is-winner", false, "Expect the bid to have won")
	flag.StringVar(&opts.seller, "seller", "", "Seller identity, to check the settlement hash")
	flag.StringVar(&opts.asset, "asset", "", "Asset reference, to check the settlement hash")
	flag.StringVar(&opts.publicKey, "public-key", "", "Receipt public key PEM (file path or inline PEM)")
	flag.StringVar(&opts.pcrs, "pcrs", "", "Known-good PCR sets JSON file, for attested receipts")
	flag.StringVar(&opts.rootCA, "root-ca", "", "Root CA PEM file overriding the AWS Nitro root")
	outputFormat := flag.String("format", "text", "Output format: text or json")
	help := flag.Bool("help", false, "Show usage information")

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if opts.settlement == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --settlement is required\n")
		os.Exit(1)
	}

	validationInput, err := buildValidationInput(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting validation data: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateReceipt(validationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Validates signed settlement receipts issued by auctiond.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --settlement <json> [--bid <json> --is-winner] [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --settlement <json>               finalize_auction response carrying receipt_cose_base64")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --bid <json>                      place_bid response of the bid to check")
	fmt.Println("  --is-winner                       Expect the bid to have won")
	fmt.Println("  --seller <id> --asset <ref>       Check the settlement hash (seller view)")
	fmt.Println("  --public-key <pem>                Daemon receipt key (key-signed receipts)")
	fmt.Println("  --pcrs <file>                     Known-good PCR sets (attested receipts)")
	fmt.Println("  --root-ca <file>                  Root CA PEM overriding the AWS Nitro root")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Input Format:")
	fmt.Println("  --settlement, --bid and --public-key accept a file path or an inline value.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Outbid bidder checking inclusion")
	fmt.Println("  receipt-validator \\")
	fmt.Println("    --settlement finalize.json \\")
	fmt.Println("    --bid '{\"bid_id\":\"4b0c...\",\"amount\":\"1.5\"}' \\")
	fmt.Println("    --public-key auctiond.pub.pem")
	fmt.Println()
	fmt.Println("  # Seller checking the settlement")
	fmt.Println("  receipt-validator --settlement finalize.json --seller alice --asset art-1 --public-key auctiond.pub.pem")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline value
	return []byte(input), nil
}

func buildValidationInput(opts options) (*validation.ReceiptValidationInput, error) {
	settlementJSON, err := readInput(opts.settlement)
	if err != nil {
		return nil, err
	}
	var settlement auctionapi.SettlementResponse
	if err := json.Unmarshal(settlementJSON, &settlement); err != nil {
		return nil, fmt.Errorf("parse settlement: %w", err)
	}
	if settlement.Receipt == "" {
		return nil, fmt.Errorf("missing 'receipt_cose_base64' in settlement")
	}

	input := &validation.ReceiptValidationInput{
		ReceiptCOSEBase64: settlement.Receipt,
		AuctionID:         uint64(settlement.AuctionID),
	}
	if settlement.Winner != "" {
		clearingPrice := settlement.Amount
		input.ClearingPrice = &clearingPrice
	}

	if opts.bid != "" {
		bidJSON, err := readInput(opts.bid)
		if err != nil {
			return nil, err
		}
		var bid auctionapi.BidResponse
		if err := json.Unmarshal(bidJSON, &bid); err != nil {
			return nil, fmt.Errorf("parse bid: %w", err)
		}
		if bid.AuctionID != 0 && bid.AuctionID != settlement.AuctionID {
			return nil, fmt.Errorf("bid is for auction %d, settlement is for auction %d", bid.AuctionID, settlement.AuctionID)
		}
		input.BidID = bid.BidID.String()
		input.BidAmount = bid.Amount
		input.IsWinner = opts.isWinner
	}

	if opts.seller != "" || opts.asset != "" {
		if opts.seller == "" || opts.asset == "" {
			return nil, fmt.Errorf("--seller and --asset must be given together")
		}
		amount := decimal.Zero
		if settlement.Winner != "" {
			amount = settlement.Amount
		}
		input.Settlement = &validation.SettlementClaim{
			Asset:  opts.asset,
			Seller: opts.seller,
			Winner: string(settlement.Winner),
			Amount: amount,
		}
	}

	if opts.publicKey != "" {
		publicKeyPEM, err := readInput(opts.publicKey)
		if err != nil {
			return nil, err
		}
		input.Trust.PublicKeyPEM = string(publicKeyPEM)
	}
	input.Trust.PCRConfigPath = opts.pcrs
	if opts.rootCA != "" {
		rootPEM, err := os.ReadFile(opts.rootCA)
		if err != nil {
			return nil, fmt.Errorf("read root CA: %w", err)
		}
		input.Trust.RootCAPEM = string(rootPEM)
	}

	return input, nil
}

func outputText(result *validation.ReceiptValidationResult) {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println("============================")
	fmt.Println()

	fmt.Println("Summary:")
	fmt.Printf("  Attested:                %v\n", result.Attested)
	if result.Attested {
		fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
		fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	} else {
		fmt.Printf("  Public Key Match:        %v\n", result.PublicKeyMatch)
	}
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Auction Valid:           %v\n", result.AuctionValid)
	fmt.Printf("  Clearing Price Valid:    %v\n", result.ClearingPriceValid)
	if result.BidChecked {
		fmt.Printf("  Bid Hash Valid:          %v\n", result.BidHashValid)
		fmt.Printf("  Winner Valid:            %v\n", result.WinnerValid)
	}
	if result.SettlementChecked {
		fmt.Printf("  Settlement Hash Valid:   %v\n", result.SettlementHashValid)
	}

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("============================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.ReceiptValidationResult) {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"attested":              result.Attested,
		"pcrs_valid":            result.PCRsValid,
		"certificate_valid":     result.CertificateValid,
		"public_key_match":      result.PublicKeyMatch,
		"signature_valid":       result.SignatureValid,
		"auction_valid":         result.AuctionValid,
		"clearing_price_valid":  result.ClearingPriceValid,
		"bid_hash_valid":        result.BidHashValid,
		"winner_valid":          result.WinnerValid,
		"settlement_hash_valid": result.SettlementHashValid,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
