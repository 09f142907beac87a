package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/auctionapi/parsing"
)

// ReceiptCOSE is a raw COSE_Sign1 settlement receipt.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is a ReceiptCOSE in standard base64, as carried in JSON responses.
type ReceiptCOSEBase64 string

// ReceiptCOSEURLBase64 is a ReceiptCOSE in unpadded URL-safe base64.
type ReceiptCOSEURLBase64 string

// ReceiptCOSEGzip is a gzip-compressed ReceiptCOSE in unpadded URL-safe base64,
// short enough to hand out as a URL parameter.
type ReceiptCOSEGzip string

func (c ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

func (c ReceiptCOSE) EncodeURLSafe() ReceiptCOSEURLBase64 {
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(c))
}

// CompressGzip compresses the receipt. The gzip header carries no name or
// modification time, so the output is deterministic.
func (c ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(c); err != nil {
		return "", fmt.Errorf("gzip receipt: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip receipt: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b ReceiptCOSEBase64) String() string {
	return string(b)
}

func (b ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// CompressGzip decodes and recompresses the receipt.
func (b ReceiptCOSEBase64) CompressGzip() (ReceiptCOSEGzip, error) {
	raw, err := b.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (u ReceiptCOSEURLBase64) String() string {
	return string(u)
}

// Decode accepts both padded and unpadded input.
func (u ReceiptCOSEURLBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(u), "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

func (g ReceiptCOSEGzip) String() string {
	return string(g)
}

func (g ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(g), "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves.
// All fields are empty for receipts signed with a local key.
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// ReceiptDocument is the signed envelope around a SettlementReceipt.
type ReceiptDocument struct {
	// ModuleID identifies the signer: the enclave module, or the daemon instance
	ModuleID string `json:"module_id"`

	// Timestamp when the document was signed
	Timestamp time.Time `json:"timestamp"`

	// Digest algorithm used (e.g., "SHA384")
	DigestAlgorithm string `json:"digest"`

	PCRs PCRs `json:"pcrs"`

	// Certificate is the base64 DER signing certificate. Empty for key-signed receipts.
	Certificate string `json:"certificate,omitempty"`

	// Cabundle for certificate chain validation
	CABundle []string `json:"cabundle,omitempty"`

	// PublicKey is the base64 DER (PKIX) public key of a key-signed receipt.
	PublicKey string `json:"public_key,omitempty"`

	// Nonce for replay protection
	Nonce string `json:"nonce"`
}

// Attested reports whether the document was produced by a Nitro Secure Module.
func (d *ReceiptDocument) Attested() bool {
	return d.Certificate != ""
}

// WinningBid identifies the settled bid without naming the bidder.
type WinningBid struct {
	BidID    string          `json:"bid_id"`
	Amount   decimal.Decimal `json:"amount"`
	Sequence uint64          `json:"sequence"`
}

// SettlementReceipt is the auction outcome embedded in a signed receipt.
// Bidders prove inclusion by recomputing their bid hash with BidHashNonce;
// parties to the settlement recompute SettlementHash with SettlementNonce.
type SettlementReceipt struct {
	AuctionID       uint64      `json:"auction_id"`
	Asset           string      `json:"asset"`
	BidCount        int         `json:"bid_count"`
	BidHashes       []string    `json:"bid_hashes"`
	BidHashNonce    string      `json:"bid_hash_nonce"`
	Winner          *WinningBid `json:"winner,omitempty"`
	SettlementHash  string      `json:"settlement_hash"`
	SettlementNonce string      `json:"settlement_nonce"`
	FinalizedAt     time.Time   `json:"finalized_at"`
	IssuedAt        time.Time   `json:"issued_at"`
}

// SignedReceipt is a parsed ReceiptCOSE.
type SignedReceipt struct {
	ReceiptDocument
	Receipt *SettlementReceipt `json:"receipt"`
}

// ParseReceipt extracts the document and the embedded SettlementReceipt from
// the COSE_Sign1 payload. It does not verify the signature.
func (c ReceiptCOSE) ParseReceipt() (*SignedReceipt, error) {
	payload, err := parsing.ExtractCOSEPayload(c)
	if err != nil {
		return nil, err
	}
	raw, err := parsing.DecodeDocument(payload)
	if err != nil {
		return nil, err
	}

	signed := &SignedReceipt{
		ReceiptDocument: ReceiptDocument{
			ModuleID:        raw.ModuleID,
			Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
			DigestAlgorithm: raw.Digest,
			PCRs: PCRs{
				ImageFileHash:   parsing.FormatPCR(raw.PCRs[0]),
				KernelHash:      parsing.FormatPCR(raw.PCRs[1]),
				ApplicationHash: parsing.FormatPCR(raw.PCRs[2]),
				IAMRoleHash:     parsing.FormatPCR(raw.PCRs[3]),
				InstanceIDHash:  parsing.FormatPCR(raw.PCRs[4]),
				SigningCertHash: parsing.FormatPCR(raw.PCRs[8]),
			},
			Nonce: string(raw.Nonce),
		},
	}
	if len(raw.Certificate) > 0 {
		signed.Certificate = base64.StdEncoding.EncodeToString(raw.Certificate)
		signed.CABundle = parsing.EncodeCertificateBundle(raw.CABundle)
	}
	if len(raw.PublicKey) > 0 {
		signed.PublicKey = base64.StdEncoding.EncodeToString(raw.PublicKey)
	}

	if len(raw.UserData) == 0 {
		return signed, nil
	}
	var receipt SettlementReceipt
	if err := json.Unmarshal(raw.UserData, &receipt); err != nil {
		return nil, fmt.Errorf("parse receipt user data: %w", err)
	}
	signed.Receipt = &receipt
	return signed, nil
}
