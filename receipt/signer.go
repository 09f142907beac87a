package receipt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/auctionapi/parsing"
)

const (
	ModeKey   = "key"
	ModeNitro = "nitro"
)

// Signer wraps receipt user data in a signed COSE_Sign1 document.
type Signer interface {
	Sign(userData []byte) (auctionapi.ReceiptCOSE, error)
	Mode() string
}

// KeySigner signs receipts with an ECDSA P-256 key (COSE ES256).
type KeySigner struct {
	privateKey *ecdsa.PrivateKey // Keep private - sensitive!
	PublicKey  *ecdsa.PublicKey
	moduleID   string
	now        func() time.Time
}

// NewKeySigner creates a KeySigner with a freshly generated key.
func NewKeySigner(moduleID string) (*KeySigner, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newKeySigner(moduleID, privateKey), nil
}

// LoadKeySigner creates a KeySigner from a PEM "EC PRIVATE KEY" (SEC 1) or
// "PRIVATE KEY" (PKCS #8) block.
func LoadKeySigner(moduleID string, pemBytes []byte) (*KeySigner, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	var privateKey *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse EC private key: %w", err)
		}
		privateKey = key
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key is not ECDSA")
		}
		privateKey = ecKey
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}

	if privateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key must use P-256, got %s", privateKey.Curve.Params().Name)
	}
	return newKeySigner(moduleID, privateKey), nil
}

func newKeySigner(moduleID string, privateKey *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		moduleID:   moduleID,
		now:        time.Now,
	}
}

func (k *KeySigner) Mode() string { return ModeKey }

// PublicKeyPEM returns the public key in PEM format
func (k *KeySigner) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(k.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}

// PrivateKeyPEM exports the private key as a SEC 1 PEM block.
func (k *KeySigner) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(k.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// Sign builds a document in the Nitro attestation layout, carrying the public
// key instead of PCRs and a certificate, and signs it as COSE_Sign1.
func (k *KeySigner) Sign(userData []byte) (auctionapi.ReceiptCOSE, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate document nonce: %w", err)
	}
	publicKeyDER, err := x509.MarshalPKIXPublicKey(k.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	payload, err := cbor.Marshal(parsing.NitroAttestationDocument{
		ModuleID:  k.moduleID,
		Digest:    "SHA256",
		Timestamp: uint64(k.now().UnixMilli()),
		PublicKey: publicKeyDER,
		UserData:  userData,
		Nonce:     []byte(nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal receipt document: %w", err)
	}

	protected, err := cbor.Marshal(map[int64]any{1: int64(cose.AlgorithmES256)})
	if err != nil {
		return nil, fmt.Errorf("marshal protected headers: %w", err)
	}
	sigStructure, err := parsing.SigStructure(protected, payload)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, k.privateKey)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	signature, err := signer.Sign(rand.Reader, sigStructure)
	if err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}

	out, err := cbor.Marshal([]any{protected, map[int64]any{}, payload, signature})
	if err != nil {
		return nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}
	return auctionapi.ReceiptCOSE(out), nil
}

// Attester is the subset of the Nitro Secure Module handle used to sign receipts.
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// NitroSigner has the Nitro Secure Module attest the receipt as user data.
// The resulting attestation document is itself the COSE_Sign1 receipt.
type NitroSigner struct {
	attester Attester
}

func NewNitroSigner(attester Attester) *NitroSigner {
	return &NitroSigner{attester: attester}
}

// OpenNitroSigner attaches to the enclave's NSM device.
func OpenNitroSigner() (*NitroSigner, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return NewNitroSigner(handle), nil
}

func (n *NitroSigner) Mode() string { return ModeNitro }

func (n *NitroSigner) Sign(userData []byte) (auctionapi.ReceiptCOSE, error) {
	if n.attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := n.attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return auctionapi.ReceiptCOSE(attestationCBOR), nil
}
