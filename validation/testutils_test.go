package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/auctionapi/parsing"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/receipt"
)

var (
	testSignedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	testPCR0 = "aa"
	testPCR1 = "bb"
	testPCR2 = "cc"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testAuction returns a finalized auction where bob outbid alice.
func testAuction() (*core.Settlement, []core.Bid) {
	bids := []core.Bid{
		{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), AuctionID: 3, Bidder: "alice", Amount: d("1"), Sequence: 1, Refunded: true},
		{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), AuctionID: 3, Bidder: "bob", Amount: d("1.5"), Sequence: 2, Settled: true},
	}
	winning := bids[1]
	return &core.Settlement{
		AuctionID:      3,
		Asset:          "art-1",
		Seller:         "seller",
		Winner:         "bob",
		WinningBid:     &winning,
		Amount:         d("1.5"),
		AssetRecipient: "bob",
		FinalizedAt:    testSignedAt,
	}, bids
}

// keySignedReceipt issues a receipt for testAuction and returns it gzipped
// together with the signer's public key.
func keySignedReceipt(t *testing.T) (auctionapi.ReceiptCOSEGzip, string) {
	t.Helper()
	signer, err := receipt.NewKeySigner("auctiond-test")
	assert.NoError(t, err)
	settlement, bids := testAuction()

	_, signed, err := receipt.Issue(signer, settlement, bids, testSignedAt)
	assert.NoError(t, err)
	gz, err := signed.CompressGzip()
	assert.NoError(t, err)
	publicKeyPEM, err := signer.PublicKeyPEM()
	assert.NoError(t, err)
	return gz, publicKeyPEM
}

// testCA is a root, intermediate and leaf chain shaped like the Nitro PKI.
type testCA struct {
	rootPEM      string
	intermediate []byte
	leaf         []byte
	leafKey      *ecdsa.PrivateKey
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	interKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)

	caTemplate := func(serial int64, cn string) *x509.Certificate {
		return &x509.Certificate{
			SerialNumber:          big.NewInt(serial),
			Subject:               pkix.Name{CommonName: cn},
			NotBefore:             testSignedAt.Add(-24 * time.Hour),
			NotAfter:              testSignedAt.Add(365 * 24 * time.Hour),
			IsCA:                  true,
			BasicConstraintsValid: true,
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		}
	}

	rootTemplate := caTemplate(1, "test-root")
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	interTemplate := caTemplate(2, "test-intermediate")
	interDER, err := x509.CreateCertificate(rand.Reader, interTemplate, rootCert, &interKey.PublicKey, rootKey)
	assert.NoError(t, err)
	interCert, err := x509.ParseCertificate(interDER)
	assert.NoError(t, err)

	// Nitro leaf certificates are only valid for a few hours.
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "test-enclave"},
		NotBefore:    testSignedAt.Add(-time.Hour),
		NotAfter:     testSignedAt.Add(3 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, interCert, &leafKey.PublicKey, interKey)
	assert.NoError(t, err)

	return &testCA{
		rootPEM:      string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})),
		intermediate: interDER,
		leaf:         leafDER,
		leafKey:      leafKey,
	}
}

// attestedReceipt builds a Nitro attestation document carrying userData,
// signed ES384 by the CA's leaf key.
func (ca *testCA) attestedReceipt(t *testing.T, userData []byte, signedAt time.Time) auctionapi.ReceiptCOSE {
	t.Helper()
	payload, err := cbor.Marshal(parsing.NitroAttestationDocument{
		ModuleID:  "i-test-enc",
		Digest:    "SHA384",
		Timestamp: uint64(signedAt.UnixMilli()),
		PCRs: map[uint64][]byte{
			0: {0xaa},
			1: {0xbb},
			2: {0xcc},
		},
		Certificate: ca.leaf,
		CABundle:    [][]byte{ca.intermediate},
		UserData:    userData,
		Nonce:       []byte("nonce"),
	})
	assert.NoError(t, err)

	protected, err := cbor.Marshal(map[int64]any{1: int64(cose.AlgorithmES384)})
	assert.NoError(t, err)
	sigStructure, err := parsing.SigStructure(protected, payload)
	assert.NoError(t, err)
	signer, err := cose.NewSigner(cose.AlgorithmES384, ca.leafKey)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.NoError(t, err)

	out, err := cbor.Marshal([]any{protected, map[int64]any{}, payload, signature})
	assert.NoError(t, err)
	return auctionapi.ReceiptCOSE(out)
}

// writePCRConfig writes a PCR config file listing sets and returns its path.
func writePCRConfig(t *testing.T, sets ...PCRSet) string {
	t.Helper()
	data, err := json.Marshal(PCRConfig{PCRSets: sets})
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pcrs.json")
	assert.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
