package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Wallets holds per-identity balances plus the pool of value the engine has
// taken custody of. It implements core.ValueTransfer: engine payouts are
// drawn from the pool.
type Wallets struct {
	mu       sync.Mutex
	balances map[core.Identity]decimal.Decimal
	pool     decimal.Decimal

	// Reject, if set, is consulted before each payout. A non-nil error fails
	// the payout and leaves every balance unchanged.
	Reject func(to core.Identity, amount decimal.Decimal) error
}

func NewWallets() *Wallets {
	return &Wallets{balances: make(map[core.Identity]decimal.Decimal)}
}

// Deposit credits amount of new value to who.
func (w *Wallets) Deposit(who core.Identity, amount decimal.Decimal) error {
	if who == "" || !core.ValidAmount(amount) {
		return fmt.Errorf("deposit %s to %q: %w", amount, who, ErrInvalidAmount)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[who] = w.balances[who].Add(amount)
	return nil
}

// Collect moves amount from who into the engine pool. It is the value
// attached to a bid.
func (w *Wallets) Collect(who core.Identity, amount decimal.Decimal) error {
	if !core.ValidAmount(amount) {
		return fmt.Errorf("collect %s from %q: %w", amount, who, ErrInvalidAmount)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[who].LessThan(amount) {
		return fmt.Errorf("collect %s from %q: %w", amount, who, ErrInsufficientFunds)
	}
	w.balances[who] = w.balances[who].Sub(amount)
	w.pool = w.pool.Add(amount)
	return nil
}

// Transfer pays amount out of the engine pool to to.
func (w *Wallets) Transfer(_ context.Context, to core.Identity, amount decimal.Decimal) error {
	if to == "" || !amount.IsPositive() {
		return fmt.Errorf("pay %s to %q: %w", amount, to, ErrInvalidAmount)
	}
	if w.Reject != nil {
		if err := w.Reject(to, amount); err != nil {
			return fmt.Errorf("pay %s to %q: %w", amount, to, err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pool.LessThan(amount) {
		return fmt.Errorf("pay %s to %q: pool holds %s: %w", amount, to, w.pool, ErrInsufficientFunds)
	}
	w.pool = w.pool.Sub(amount)
	w.balances[to] = w.balances[to].Add(amount)
	return nil
}

// Balance returns who's spendable balance.
func (w *Wallets) Balance(who core.Identity) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[who]
}

// Pool returns the value currently in the engine's custody.
func (w *Wallets) Pool() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool
}
