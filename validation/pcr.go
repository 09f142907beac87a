package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/escrowauction/auctionapi"
)

var ErrNoTrustedBuilds = errors.New("no trusted enclave builds listed")

// LoadTrustedBuilds reads the enclave builds whose attested receipts are
// accepted. Each build is identified by its PCR0-2 measurements.
func LoadTrustedBuilds(path string) ([]PCRSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trusted builds: %w", err)
	}
	var list PCRConfig
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode trusted builds %s: %w", path, err)
	}
	if len(list.PCRSets) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTrustedBuilds, path)
	}
	return list.PCRSets, nil
}

// MatchBuild returns the index of the trusted build that produced a receipt
// with the given measurements, or -1. Hex case is ignored.
func MatchBuild(pcrs auctionapi.PCRs, builds []PCRSet) int {
	for i, b := range builds {
		if strings.EqualFold(pcrs.ImageFileHash, b.PCR0) &&
			strings.EqualFold(pcrs.KernelHash, b.PCR1) &&
			strings.EqualFold(pcrs.ApplicationHash, b.PCR2) {
			return i
		}
	}
	return -1
}
