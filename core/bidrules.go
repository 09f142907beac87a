package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonetaryPrecision is the number of decimal places accepted on any amount.
// Amounts are never rounded: a finer amount is rejected so that credits and
// payouts add up exactly.
const MonetaryPrecision int32 = 8

// DurationBoundary selects how MinDuration is compared against a requested duration.
type DurationBoundary int

const (
	// BoundaryInclusive accepts duration >= MinDuration.
	BoundaryInclusive DurationBoundary = iota
	// BoundaryExclusive accepts only duration > MinDuration.
	BoundaryExclusive
)

// DefaultMinDuration is one day.
const DefaultMinDuration = 24 * time.Hour

// ValidAmount reports whether amount is strictly positive and fits MonetaryPrecision.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Truncate(MonetaryPrecision))
}

// DurationAllowed applies the minimum-duration policy.
func DurationAllowed(d, minDuration time.Duration, boundary DurationBoundary) bool {
	if boundary == BoundaryExclusive {
		return d > minDuration
	}
	return d >= minDuration
}

// BidMeetsStartingBid returns true if a first bid reaches the starting bid.
func BidMeetsStartingBid(amount, startingBid decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(startingBid)
}

// BidMeetsIncrement returns true if amount improves on highest by at least
// minIncrement. With a positive minIncrement an equal bid never passes.
func BidMeetsIncrement(amount, highest, minIncrement decimal.Decimal) bool {
	return amount.Sub(highest).GreaterThanOrEqual(minIncrement)
}

// MinimumNextBid returns the smallest amount the next bid on a must reach.
func MinimumNextBid(a Auction) decimal.Decimal {
	if !a.HasBid() {
		return a.StartingBid
	}
	return a.HighestBid.Add(a.MinIncrement)
}
