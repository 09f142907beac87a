package parsing

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NitroAttestationDocument represents the raw CBOR structure from AWS Nitro
// Enclaves. Receipts signed with a local key reuse the same document layout
// with the PCRs, certificate and CA bundle left empty.
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// DecodeDocument parses a COSE_Sign1 payload as a NitroAttestationDocument.
func DecodeDocument(payload []byte) (*NitroAttestationDocument, error) {
	var doc NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}
	return &doc, nil
}

// FormatPCR formats PCR bytes as hex string
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// EncodeCertificateBundle converts certificate bundle to base64 strings
func EncodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}
