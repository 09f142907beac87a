package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AssetRegistry owns asset custody. The engine only asks ownership questions
// and requests transfers; it never decides ownership itself.
type AssetRegistry interface {
	// OwnerOf returns the current owner of asset.
	OwnerOf(ctx context.Context, asset AssetRef) (Identity, error)
	// IsTransferApproved reports whether operator may move asset on behalf of owner.
	IsTransferApproved(ctx context.Context, owner, operator Identity, asset AssetRef) (bool, error)
	// Transfer moves asset from one identity to another.
	Transfer(ctx context.Context, from, to Identity, asset AssetRef) error
}

// ValueTransfer moves funds out of the engine's custody.
//
// Implementations may run arbitrary code on behalf of the recipient before
// returning, including calls back into the Engine. The engine never holds a
// lock across a call to Transfer.
type ValueTransfer interface {
	Transfer(ctx context.Context, to Identity, amount decimal.Decimal) error
}

// Notifier receives engine events after the state change that produced them
// has been committed. Errors are logged and otherwise ignored.
//
// Events of one auction arrive in commit order, so BidAccepted events arrive
// in Sequence order. Events of different auctions may interleave. Notify is
// never called concurrently for the same auction, and it may be called from
// a goroutine other than the one whose operation produced the event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Notifiers fans an event out to every notifier in order. All notifiers are
// called even if one fails; the first error is returned.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, event Event) error {
	var first error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Clock provides the current time.
// This interface enables dependency injection for deterministic testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Event) error {
	return nil
}
