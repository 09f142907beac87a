package validation

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudx-io/escrowauction/auctionapi"
)

// TrustConfig names the trust anchors a receipt is checked against.
type TrustConfig struct {
	// PublicKeyPEM is the daemon's receipt key. Required for key-signed receipts.
	PublicKeyPEM string
	// PCRConfigPath points at the known-good PCR sets. Required for attested receipts.
	PCRConfigPath string
	// RootCAPEM overrides the AWS Nitro root certificate.
	RootCAPEM string
}

// validateEnvelope checks who signed the receipt: PCRs, certificate chain and
// signature for attested receipts, the expected key and signature otherwise.
func validateEnvelope(coseBytes auctionapi.ReceiptCOSE, doc *auctionapi.SignedReceipt, trust TrustConfig) (*BaseValidationResult, error) {
	result := &BaseValidationResult{
		Attested:          doc.Attested(),
		ValidationDetails: []string{},
	}
	if result.Attested {
		return result, validateAttested(coseBytes, doc, trust, result)
	}
	validateKeySigned(coseBytes, doc, trust, result)
	return result, nil
}

func validateAttested(coseBytes auctionapi.ReceiptCOSE, doc *auctionapi.SignedReceipt, trust TrustConfig, result *BaseValidationResult) error {
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Nitro attested receipt from module %s", doc.ModuleID))

	if trust.PCRConfigPath == "" {
		return fmt.Errorf("PCR config path is required for attested receipts")
	}
	builds, err := LoadTrustedBuilds(trust.PCRConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load PCR configuration: %w", err)
	}

	matched := MatchBuild(doc.PCRs, builds)
	result.PCRsValid = matched >= 0
	if !result.PCRsValid {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR0: %s (no match)", doc.PCRs.ImageFileHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR1: %s (no match)", doc.PCRs.KernelHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR2: %s (no match)", doc.PCRs.ApplicationHash))
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "PCR measurements valid")
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Matched PCR set: #%d (commit: %s)",
			matched, builds[matched].CommitHash))
	}

	if len(doc.CABundle) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	} else if err := VerifySignerChain(doc.Certificate, doc.CABundle, doc.Timestamp, trust.RootCAPEM); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
	} else {
		result.CertificateValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified")
	}

	publicKey, err := certificatePublicKey(doc.Certificate)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
		return nil
	}
	if err := VerifyCOSESignature(coseBytes, publicKey); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
		return nil
	}
	result.SignatureValid = true
	result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	return nil
}

func validateKeySigned(coseBytes auctionapi.ReceiptCOSE, doc *auctionapi.SignedReceipt, trust TrustConfig, result *BaseValidationResult) {
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Key signed receipt from module %s", doc.ModuleID))

	if strings.TrimSpace(trust.PublicKeyPEM) == "" {
		result.ValidationDetails = append(result.ValidationDetails, "No receipt public key supplied; the embedded key is not trusted")
		return
	}
	expected, err := ParsePublicKeyPEM(trust.PublicKeyPEM)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Invalid receipt public key: %v", err))
		return
	}

	embeddedDER, err := base64.StdEncoding.DecodeString(doc.PublicKey)
	if err != nil || len(embeddedDER) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from receipt")
	} else if embedded, err := parsePublicKeyDER(embeddedDER); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Invalid public key in receipt: %v", err))
	} else if !embedded.Equal(expected) {
		result.ValidationDetails = append(result.ValidationDetails, "Public key mismatch: receipt was signed by a different key")
	} else {
		result.PublicKeyMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Public key matches receipt")
	}

	if err := VerifyCOSESignature(coseBytes, expected); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
		return
	}
	result.SignatureValid = true
	result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
}
