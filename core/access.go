package core

import (
	"context"
)

// Pause stops new auctions and new bids. Only the admin may call it. Pausing
// an already paused engine is a no-op that still succeeds.
func (e *Engine) Pause(ctx context.Context, caller Identity) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause restores normal operation. Only the admin may call it.
func (e *Engine) Unpause(ctx context.Context, caller Identity) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller Identity, paused bool) error {
	e.stateMu.Lock()
	if caller != e.state.Admin {
		e.stateMu.Unlock()
		return newError(CodeNotAdmin, 0, "%q is not the admin", caller)
	}
	changed := e.state.Paused != paused
	e.state.Paused = paused
	if changed {
		e.events.push(e.newEvent(EventPauseChanged, 0, e.clock.Now(), PauseChanged{Paused: paused, By: caller}))
	}
	e.stateMu.Unlock()

	if !changed {
		return nil
	}
	e.log.Info().Bool("paused", paused).Str("by", string(caller)).Msg("pause state changed")
	e.deliver(ctx, &e.events)
	return nil
}
