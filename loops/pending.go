package loops

import (
	"context"
	"log/slog"

	"coinstr/engine"
	"coinstr/observability"
	"coinstr/relay"
)

// runPendingEvents retries every PendingEvent against every relay the
// transport currently has configured, clearing it once a publish succeeds on
// all of them.
// This is how an operation's record-of-truth event converges after a
// publishWait timeout (§7): the caller already saw the error, but the event
// itself isn't lost.
func runPendingEvents(ctx context.Context, e *engine.Engine, log *slog.Logger) {
	tick(ctx, pendingEventInterval, func() {
		pending, err := e.Store().GetPendingEvents()
		if err != nil {
			log.Warn("pending events: list failed", "error", err)
			return
		}
		observability.Sync().SetPendingDepth(len(pending))
		for _, p := range pending {
			ev, err := relay.DecodeSignedEvent(p.Payload)
			if err != nil {
				log.Warn("pending events: decode failed, dropping", "id", p.ID, "error", err)
				_ = e.Store().DeletePendingEvent(p.ID)
				continue
			}
			if err := e.Transport().Publish(ctx, ev); err != nil {
				log.Warn("pending events: publish still failing", "id", p.ID, "error", err)
				continue
			}
			if err := e.Store().DeletePendingEvent(p.ID); err != nil {
				log.Warn("pending events: delete failed", "id", p.ID, "error", err)
			}
		}
	})
}
