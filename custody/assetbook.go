// Package custody provides in-memory implementations of the collaborators the
// auction engine escrows against: an asset ownership book and a value wallet.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudx-io/escrowauction/core"
)

var (
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrAssetExists   = errors.New("asset already registered")
	ErrNotAssetOwner = errors.New("not the asset owner")
)

// AssetBook tracks asset ownership and a single approved operator per asset.
// It implements core.AssetRegistry.
type AssetBook struct {
	mu        sync.RWMutex
	owners    map[core.AssetRef]core.Identity
	operators map[core.AssetRef]core.Identity
}

func NewAssetBook() *AssetBook {
	return &AssetBook{
		owners:    make(map[core.AssetRef]core.Identity),
		operators: make(map[core.AssetRef]core.Identity),
	}
}

// Register records a new asset owned by owner.
func (b *AssetBook) Register(owner core.Identity, asset core.AssetRef) error {
	if owner == "" || asset == "" {
		return fmt.Errorf("register asset: owner and asset are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.owners[asset]; ok {
		return fmt.Errorf("register %s: %w", asset, ErrAssetExists)
	}
	b.owners[asset] = owner
	return nil
}

// Approve lets operator transfer asset on the owner's behalf until the next
// transfer. Only the current owner may approve.
func (b *AssetBook) Approve(owner, operator core.Identity, asset core.AssetRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.owners[asset]
	if !ok {
		return fmt.Errorf("approve %s: %w", asset, ErrUnknownAsset)
	}
	if current != owner {
		return fmt.Errorf("approve %s: %w", asset, ErrNotAssetOwner)
	}
	b.operators[asset] = operator
	return nil
}

func (b *AssetBook) OwnerOf(_ context.Context, asset core.AssetRef) (core.Identity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.owners[asset]
	if !ok {
		return "", fmt.Errorf("owner of %s: %w", asset, ErrUnknownAsset)
	}
	return owner, nil
}

func (b *AssetBook) IsTransferApproved(_ context.Context, owner, operator core.Identity, asset core.AssetRef) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	current, ok := b.owners[asset]
	if !ok {
		return false, fmt.Errorf("approval of %s: %w", asset, ErrUnknownAsset)
	}
	return current == owner && b.operators[asset] == operator, nil
}

// Transfer moves asset from its owner to to. The book has no notion of who is
// calling: the engine transfers from a seller only after it checked its own
// approval, and from itself when releasing escrow. Any approval is cleared.
func (b *AssetBook) Transfer(_ context.Context, from, to core.Identity, asset core.AssetRef) error {
	if to == "" {
		return fmt.Errorf("transfer %s: recipient is required", asset)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.owners[asset]
	if !ok {
		return fmt.Errorf("transfer %s: %w", asset, ErrUnknownAsset)
	}
	if current != from {
		return fmt.Errorf("transfer %s from %q: %w", asset, from, ErrNotAssetOwner)
	}
	b.owners[asset] = to
	delete(b.operators, asset)
	return nil
}

// Assets returns the assets currently owned by owner.
func (b *AssetBook) Assets(owner core.Identity) []core.AssetRef {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []core.AssetRef
	for asset, o := range b.owners {
		if o == owner {
			out = append(out, asset)
		}
	}
	return out
}
