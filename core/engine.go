package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config is the configuration for an Engine.
type Config struct {
	// Identity is the engine's own custody account. Escrowed assets are
	// transferred to it, and sellers must approve it as operator.
	Identity Identity
	// Admin may pause and unpause the engine. Fixed for the engine's lifetime.
	Admin Identity

	Assets   AssetRegistry
	Funds    ValueTransfer
	Notifier Notifier // optional
	Clock    Clock    // optional, defaults to SystemClock
	Logger   *zerolog.Logger

	// MinDuration defaults to DefaultMinDuration when zero.
	MinDuration      time.Duration
	DurationBoundary DurationBoundary

	// PauseBlocksFinalize extends the pause gate to FinalizeAuction. Withdraw
	// and DeliverAsset are never gated.
	PauseBlocksFinalize bool
}

// Engine runs escrowed ascending-bid auctions. Each Engine owns its own
// ProcessState, so independent engines never share admin or pause state.
type Engine struct {
	identity Identity
	assets   AssetRegistry
	funds    ValueTransfer
	notifier Notifier
	clock    Clock
	log      zerolog.Logger

	minDuration         time.Duration
	boundary            DurationBoundary
	pauseBlocksFinalize bool

	// stateMu guards state and escrowed.
	stateMu  sync.Mutex
	state    ProcessState
	escrowed map[AssetRef]AuctionID // 0 while the escrow transfer is in flight

	auctionsMu sync.RWMutex
	auctions   map[AuctionID]*auctionEntry

	// events carries engine-wide events such as pause changes.
	events eventQueue
}

// auctionEntry is everything the engine knows about one auction. mu is held
// for checks and effects only, never across a call to a collaborator.
type auctionEntry struct {
	mu       sync.Mutex
	auction  Auction
	bids     []Bid
	credits  map[Identity]decimal.Decimal
	accounts Accounting

	// events are pushed while mu is held so delivery follows commit order.
	events eventQueue
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Identity == "" {
		return nil, fmt.Errorf("engine identity is required")
	}
	if cfg.Admin == "" {
		return nil, fmt.Errorf("admin identity is required")
	}
	if cfg.Assets == nil {
		return nil, fmt.Errorf("asset registry is required")
	}
	if cfg.Funds == nil {
		return nil, fmt.Errorf("value transfer is required")
	}
	if cfg.MinDuration < 0 {
		return nil, fmt.Errorf("invalid negative minimum duration %v", cfg.MinDuration)
	}

	e := &Engine{
		identity:            cfg.Identity,
		assets:              cfg.Assets,
		funds:               cfg.Funds,
		notifier:            cfg.Notifier,
		clock:               cfg.Clock,
		log:                 zerolog.Nop(),
		minDuration:         cfg.MinDuration,
		boundary:            cfg.DurationBoundary,
		pauseBlocksFinalize: cfg.PauseBlocksFinalize,
		state: ProcessState{
			Admin:         cfg.Admin,
			NextAuctionID: 1,
		},
		escrowed: make(map[AssetRef]AuctionID),
		auctions: make(map[AuctionID]*auctionEntry),
	}
	if e.notifier == nil {
		e.notifier = discardNotifier{}
	}
	if e.clock == nil {
		e.clock = SystemClock
	}
	if cfg.Logger != nil {
		e.log = cfg.Logger.With().Str("component", "engine").Logger()
	}
	if e.minDuration == 0 {
		e.minDuration = DefaultMinDuration
	}
	return e, nil
}

// Identity returns the engine's custody identity.
func (e *Engine) Identity() Identity {
	return e.identity
}

// State returns a snapshot of the process state.
func (e *Engine) State() ProcessState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) paused() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state.Paused
}

func (e *Engine) entry(id AuctionID) (*auctionEntry, error) {
	e.auctionsMu.RLock()
	ent, ok := e.auctions[id]
	e.auctionsMu.RUnlock()
	if !ok {
		return nil, newError(CodeAuctionNotFound, id, "auction not found")
	}
	return ent, nil
}

// sortedIDs returns a snapshot of known auction ids in ascending order.
func (e *Engine) sortedIDs() []AuctionID {
	e.auctionsMu.RLock()
	ids := make([]AuctionID, 0, len(e.auctions))
	for id := range e.auctions {
		ids = append(ids, id)
	}
	e.auctionsMu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) newEvent(kind EventKind, id AuctionID, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		AuctionID:  id,
		OccurredAt: at,
		Payload:    payload,
	}
}

// eventQueue holds events awaiting delivery in commit order. mu is a leaf
// lock and is never held across a call to the notifier.
type eventQueue struct {
	mu         sync.Mutex
	pending    []Event
	delivering bool
}

func (q *eventQueue) push(event Event) {
	q.mu.Lock()
	q.pending = append(q.pending, event)
	q.mu.Unlock()
}

// deliver hands queued events to the notifier in push order. One goroutine
// delivers at a time; a concurrent or re-entrant caller returns at once and
// its events go out with the running delivery. Callers must not hold any
// engine lock.
//
// Delivery is detached from ctx cancellation: the state change behind every
// queued event is already committed.
func (e *Engine) deliver(ctx context.Context, q *eventQueue) {
	ctx = context.WithoutCancel(ctx)

	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.pending) > 0 {
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, event := range batch {
			if err := e.notifier.Notify(ctx, event); err != nil {
				e.log.Warn().Err(err).
					Str("event", string(event.Kind)).
					Uint64("auction_id", uint64(event.AuctionID)).
					Msg("notifier failed")
			}
		}
		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}

// publish queues an auction event stamped now and delivers it.
func (e *Engine) publish(ctx context.Context, ent *auctionEntry, id AuctionID, kind EventKind, payload any) {
	ent.events.push(e.newEvent(kind, id, e.clock.Now(), payload))
	e.deliver(ctx, &ent.events)
}

// copyBids returns a copy safe to hand out while ent.mu is released.
func (ent *auctionEntry) copyBids() []Bid {
	out := make([]Bid, len(ent.bids))
	copy(out, ent.bids)
	return out
}

// highestBidIndex returns the index of the current highest bid, or -1.
// The highest bid is always the last appended one that is neither refunded
// nor settled; refunds are tracked by flag, never by comparing amounts.
func (ent *auctionEntry) highestBidIndex() int {
	for i := len(ent.bids) - 1; i >= 0; i-- {
		if !ent.bids[i].Refunded && !ent.bids[i].Settled {
			return i
		}
	}
	return -1
}

func (ent *auctionEntry) credit(who Identity, amount decimal.Decimal) {
	ent.credits[who] = ent.credits[who].Add(amount)
}
