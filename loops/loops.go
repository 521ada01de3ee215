// Package loops drives the engine's background loops (§4.6): chain sync,
// pending-event retry, deferred-event retry, metadata discovery, and the
// relay subscription loop that feeds inbound events to the Event Reducer.
// Each loop runs against its own Engine.Clone so none of them share interior
// call state, only the Store/Transport/cells the clone points at.
package loops

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coinstr/engine"
)

const (
	chainSyncRetryInterval = 3 * time.Second
	chainSyncInterval      = 5 * time.Second
	pendingEventInterval   = 30 * time.Second
	deferredEventInterval  = 30 * time.Second
	metadataInterval       = 60 * time.Second
)

// Runner owns the cancellation and completion state for one sync() call's
// worth of background loops.
type Runner struct {
	engine *engine.Engine
	log    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the background loops against e, guarded by e.TryStartSync for
// I8: calling Start twice on the same logical engine (or its clones) is a
// no-op on the second call, returning nil.
func Start(e *engine.Engine, log *slog.Logger) *Runner {
	if !e.TryStartSync() {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{engine: e, log: log, cancel: cancel}

	loops := []func(context.Context, *engine.Engine, *slog.Logger){
		runChainSync,
		runPendingEvents,
		runDeferredEvents,
		runMetadata,
		runSubscription,
	}
	for _, loop := range loops {
		r.wg.Add(1)
		go func(fn func(context.Context, *engine.Engine, *slog.Logger)) {
			defer r.wg.Done()
			fn(ctx, e.Clone(), log)
		}(loop)
	}
	return r
}

// Shutdown cancels every loop and waits for them to exit, then clears the
// sync guard so a later Start can run again. It does not cancel any
// in-flight Coordination API call — those run on the caller's own context.
func (r *Runner) Shutdown() {
	if r == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.engine.StopSync()
}

func tick(ctx context.Context, d time.Duration, fn func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
