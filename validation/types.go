package validation

// BaseValidationResult contains the envelope checks common to every receipt
type BaseValidationResult struct {
	// Attested is set when the receipt was signed by a Nitro Secure Module.
	// PCRsValid and CertificateValid only count for attested receipts.
	Attested          bool
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	PublicKeyMatch    bool // key-signed receipts only
	ValidationDetails []string
}

// envelopeValid reports whether the signer of the receipt is trusted.
func (r *BaseValidationResult) envelopeValid() bool {
	if !r.SignatureValid {
		return false
	}
	if r.Attested {
		return r.PCRsValid && r.CertificateValid
	}
	return r.PublicKeyMatch
}

// ReceiptValidationResult contains validation results for a settlement receipt
type ReceiptValidationResult struct {
	BaseValidationResult

	AuctionValid       bool
	BidChecked         bool
	BidHashValid       bool
	WinnerValid        bool
	ClearingPriceValid bool

	SettlementChecked   bool
	SettlementHashValid bool
}

// IsValid returns true if the envelope and every requested receipt check passed
func (r *ReceiptValidationResult) IsValid() bool {
	if !r.envelopeValid() || !r.AuctionValid || !r.ClearingPriceValid {
		return false
	}
	if r.BidChecked && !(r.BidHashValid && r.WinnerValid) {
		return false
	}
	if r.SettlementChecked && !r.SettlementHashValid {
		return false
	}
	return true
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
