package auctionapi

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/auctionapi/parsing"
)

func TestReceiptCOSE_Encode(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data"))

	encoded := coseBytes.EncodeBase64()
	check.NotEqual(t, "", encoded)

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestReceiptCOSE_EncodeURLSafe(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-url-encoding"))

	encoded := coseBytes.EncodeURLSafe()
	check.NotEqual(t, "", encoded)

	// Should not contain padding
	check.False(t, strings.Contains(encoded.String(), "="))

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestReceiptCOSE_CompressGzip(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-compression-testing"))

	compressed, err := coseBytes.CompressGzip()
	check.Nil(t, err)
	check.NotEqual(t, "", compressed)

	for _, char := range compressed.String() {
		valid := (char >= 'A' && char <= 'Z') ||
			(char >= 'a' && char <= 'z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_'
		check.True(t, valid)
	}

	decompressed, err := compressed.Decompress()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decompressed)

	// Deterministic
	again, err := coseBytes.CompressGzip()
	check.Nil(t, err)
	check.Equal(t, compressed, again)
}

func TestReceiptCOSEBase64_Decode(t *testing.T) {
	tests := []struct {
		name      string
		input     ReceiptCOSEBase64
		wantErr   bool
		errSubstr string
	}{
		{
			name:  "valid base64",
			input: "bW9jay1jb3NlLWF0dGVzdGF0aW9u",
		},
		{
			name:      "illegal characters",
			input:     "not-valid-base64!!!@@@",
			wantErr:   true,
			errSubstr: "decode COSE base64",
		},
		{
			name:      "wrong padding",
			input:     "abc",
			wantErr:   true,
			errSubstr: "decode COSE base64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decode()
			if tt.wantErr {
				check.NotNil(t, err)
				check.True(t, strings.Contains(err.Error(), tt.errSubstr))
				check.Nil(t, result)
			} else {
				check.Nil(t, err)
				check.NotNil(t, result)
			}
		})
	}
}

func TestReceiptCOSEURLBase64_Decode(t *testing.T) {
	tests := []struct {
		name     string
		input    ReceiptCOSEURLBase64
		expected ReceiptCOSE
	}{
		{"no padding needed", "YWJj", ReceiptCOSE("abc")},
		{"missing two padding chars", "dGVzdA", ReceiptCOSE("test")},
		{"missing one padding char", "dGVzdGluZw", ReceiptCOSE("testing")},
		{"padded input", "dGVzdA==", ReceiptCOSE("test")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decode()
			check.Nil(t, err)
			check.Equal(t, tt.expected, result)
		})
	}
}

func TestReceiptCOSEGzip_Decompress_Invalid(t *testing.T) {
	tests := []struct {
		name           string
		input          ReceiptCOSEGzip
		errorSubstring string
	}{
		{"invalid base64url", "!!!invalid!!!", "decode base64url"},
		{"valid base64 but not gzip", "bW9jaw", "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decompress()
			check.NotNil(t, err)
			check.Nil(t, result)
			check.True(t, strings.Contains(err.Error(), tt.errorSubstring))
		})
	}
}

func TestReceiptCOSEBase64_CompressGzip_RoundTrip(t *testing.T) {
	original := ReceiptCOSEBase64("bW9jay1jb3NlLWF0dGVzdGF0aW9uLWRhdGEtZm9yLXRlc3RpbmctcHVycG9zZXMtb25seQ==")

	compressed, err := original.CompressGzip()
	check.Nil(t, err)

	decompressed, err := compressed.Decompress()
	check.Nil(t, err)
	check.Equal(t, original, decompressed.EncodeBase64())
}

func buildReceiptCOSE(t *testing.T, doc parsing.NitroAttestationDocument) ReceiptCOSE {
	t.Helper()
	payload, err := cbor.Marshal(doc)
	assert.NoError(t, err)
	out, err := cbor.Marshal([]any{[]byte{0xa0}, map[string]any{}, payload, []byte{0x01}})
	assert.NoError(t, err)
	return ReceiptCOSE(out)
}

func TestReceiptCOSE_ParseReceipt(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	receipt := SettlementReceipt{
		AuctionID:       7,
		Asset:           "art-1",
		BidCount:        2,
		BidHashes:       []string{"aa", "bb"},
		BidHashNonce:    "n1",
		Winner:          &WinningBid{BidID: "bid-2", Amount: decimal.RequireFromString("1.5"), Sequence: 2},
		SettlementHash:  "cc",
		SettlementNonce: "n2",
		FinalizedAt:     issued,
		IssuedAt:        issued,
	}
	userData, err := json.Marshal(receipt)
	assert.NoError(t, err)

	t.Run("key signed", func(t *testing.T) {
		signed, err := buildReceiptCOSE(t, parsing.NitroAttestationDocument{
			ModuleID:  "auctiond",
			Digest:    "SHA256",
			Timestamp: uint64(issued.UnixMilli()),
			PublicKey: []byte{0x30, 0x01},
			UserData:  userData,
			Nonce:     []byte("nonce"),
		}).ParseReceipt()
		assert.NoError(t, err)

		check.False(t, signed.Attested())
		check.Equal(t, "auctiond", signed.ModuleID)
		check.Equal(t, issued, signed.Timestamp)
		check.Equal(t, "MAE=", signed.PublicKey)
		check.Equal(t, "nonce", signed.Nonce)
		check.Equal(t, "", signed.PCRs.ImageFileHash)

		assert.NotNil(t, signed.Receipt)
		check.Equal(t, uint64(7), signed.Receipt.AuctionID)
		check.Equal(t, []string{"aa", "bb"}, signed.Receipt.BidHashes)
		assert.NotNil(t, signed.Receipt.Winner)
		check.True(t, signed.Receipt.Winner.Amount.Equal(decimal.RequireFromString("1.5")))
	})

	t.Run("nitro attested", func(t *testing.T) {
		signed, err := buildReceiptCOSE(t, parsing.NitroAttestationDocument{
			ModuleID:    "i-123-enc456",
			Digest:      "SHA384",
			Timestamp:   uint64(issued.UnixMilli()),
			PCRs:        map[uint64][]byte{0: {0xab, 0xcd}, 8: {0x01}},
			Certificate: []byte("cert"),
			CABundle:    [][]byte{[]byte("ca")},
			UserData:    userData,
		}).ParseReceipt()
		assert.NoError(t, err)

		check.True(t, signed.Attested())
		check.Equal(t, "abcd", signed.PCRs.ImageFileHash)
		check.Equal(t, "01", signed.PCRs.SigningCertHash)
		check.Equal(t, "Y2VydA==", signed.Certificate)
		check.Equal(t, []string{"Y2E="}, signed.CABundle)
	})

	t.Run("no user data", func(t *testing.T) {
		signed, err := buildReceiptCOSE(t, parsing.NitroAttestationDocument{ModuleID: "x"}).ParseReceipt()
		assert.NoError(t, err)
		check.Nil(t, signed.Receipt)
	})

	t.Run("bad user data", func(t *testing.T) {
		_, err := buildReceiptCOSE(t, parsing.NitroAttestationDocument{UserData: []byte("{")}).ParseReceipt()
		check.Error(t, err)
	})

	t.Run("not COSE", func(t *testing.T) {
		_, err := ReceiptCOSE([]byte{0x01, 0x02}).ParseReceipt()
		check.Error(t, err)
	})
}
