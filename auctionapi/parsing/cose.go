package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 4-element array
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
// Returns the payload bytes (element 2)
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	parts, err := SplitCOSESign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return parts.Payload, nil
}

// COSESign1 holds the byte-string elements of an untagged COSE_Sign1 array.
type COSESign1 struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// SplitCOSESign1 decodes an untagged COSE_Sign1 array. Both receipts signed
// with a local key and Nitro attestation documents use this shape.
func SplitCOSESign1(coseBytes []byte) (*COSESign1, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	protected, ok := coseArray[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid protected headers in COSE structure")
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	signature, ok := coseArray[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid signature in COSE structure")
	}

	return &COSESign1{Protected: protected, Payload: payload, Signature: signature}, nil
}

// SigStructure returns the CBOR Sig_structure that is signed for a COSE_Sign1
// message: ["Signature1", protected, external_aad, payload]. external_aad is
// always empty here.
func SigStructure(protected, payload []byte) ([]byte, error) {
	sigStructure := []any{
		"Signature1",
		protected,
		[]byte{},
		payload,
	}
	out, err := cbor.Marshal(sigStructure)
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return out, nil
}

// ProtectedAlgorithm reads the alg (label 1) header from encoded protected headers.
func ProtectedAlgorithm(protected []byte) (int64, error) {
	var headers map[int64]any
	if err := cbor.Unmarshal(protected, &headers); err != nil {
		return 0, fmt.Errorf("parse protected headers: %w", err)
	}
	switch alg := headers[1].(type) {
	case int64:
		return alg, nil
	case uint64:
		return int64(alg), nil
	default:
		return 0, fmt.Errorf("protected headers carry no algorithm")
	}
}
