package receipt

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// mustDecodeHex is a helper function to decode hex strings to actual hash bytes for testing
func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("invalid hex string: %s", hexStr)
	}
	return bytes
}

// CreateMockEnclave creates a mock enclave handle that returns a Nitro-shaped
// COSE_Sign1 document with an unverifiable signature.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1735689600000),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

var testFinalizedAt = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

// testSettlement returns a settlement won by the last of three bids.
func testSettlement() (*core.Settlement, []core.Bid) {
	bids := []core.Bid{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), AuctionID: 4, Bidder: "alice", Amount: decimal.RequireFromString("1"), Sequence: 1, Refunded: true},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), AuctionID: 4, Bidder: "bob", Amount: decimal.RequireFromString("1.5"), Sequence: 2, Refunded: true},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), AuctionID: 4, Bidder: "alice", Amount: decimal.RequireFromString("2.25"), Sequence: 3, Settled: true},
	}
	winning := bids[2]
	return &core.Settlement{
		AuctionID:      4,
		Asset:          "art-1",
		Seller:         "seller",
		Winner:         "alice",
		WinningBid:     &winning,
		Amount:         winning.Amount,
		AssetRecipient: "alice",
		FinalizedAt:    testFinalizedAt,
	}, bids
}
