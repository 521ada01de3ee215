package loops

import (
	"context"
	"log/slog"

	"coinstr/engine"
	"coinstr/observability"
	"coinstr/reducer"
	"coinstr/relay"
)

// runDeferredEvents retries every DeferredEvent against the reducer,
// implementing §4.6's "pending-event loop" retry for events the reducer
// couldn't yet apply because a causal dependency (a shared key or a parent
// policy/proposal) hadn't arrived. Once the dependency resolves, the retried
// Reduce call applies it and the row is cleared; a still-missing dependency
// just bumps Attempts and leaves it queued for the next tick.
func runDeferredEvents(ctx context.Context, e *engine.Engine, log *slog.Logger) {
	tick(ctx, deferredEventInterval, func() {
		deferred, err := e.Store().GetDeferredEvents()
		if err != nil {
			log.Warn("deferred events: list failed", "error", err)
			return
		}
		observability.Reducer().SetDeferredDepth("all", len(deferred))
		for _, d := range deferred {
			ev, err := relay.DecodeSignedEvent(d.Payload)
			if err != nil {
				log.Warn("deferred events: decode failed, dropping", "id", d.ID, "error", err)
				_ = e.Store().DeleteDeferredEvent(d.ID)
				continue
			}
			outcome, err := e.Reducer().Reduce(ev)
			if err != nil {
				log.Warn("deferred events: retry failed", "id", d.ID, "error", err)
				continue
			}
			if outcome == reducer.Deferred {
				continue
			}
			if err := e.Store().DeleteDeferredEvent(d.ID); err != nil {
				log.Warn("deferred events: delete failed", "id", d.ID, "error", err)
			}
		}
	})
}
