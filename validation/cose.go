package validation

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/auctionapi/parsing"
)

// VerifyCOSESignature verifies a COSE_Sign1 signature against publicKey.
// The algorithm is taken from the protected headers: ES384 for Nitro
// attestation documents, ES256 for key-signed receipts.
func VerifyCOSESignature(coseBytes auctionapi.ReceiptCOSE, publicKey crypto.PublicKey) error {
	// Receipts are untagged COSE_Sign1 (4-element array)
	parts, err := parsing.SplitCOSESign1(coseBytes)
	if err != nil {
		return err
	}

	alg, err := parsing.ProtectedAlgorithm(parts.Protected)
	if err != nil {
		return err
	}

	sigStructure, err := parsing.SigStructure(parts.Protected, parts.Payload)
	if err != nil {
		return err
	}

	verifier, err := cose.NewVerifier(cose.Algorithm(alg), publicKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructure, parts.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}

// certificatePublicKey returns the ECDSA key of a base64 DER certificate
func certificatePublicKey(certB64 string) (*ecdsa.PublicKey, error) {
	certDER, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// ParsePublicKeyPEM parses a PEM "PUBLIC KEY" block into an ECDSA key
func ParsePublicKeyPEM(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}
	return parsePublicKeyDER(block.Bytes)
}

func parsePublicKeyDER(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}
