package loops

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"coinstr/engine"
	"coinstr/observability"
)

// runChainSync waits for an Electrum endpoint to be configured, retrying
// every chainSyncRetryInterval, then syncs wallets every chainSyncInterval
// for as long as the loop runs. A policy flagged by TakeResyncFlags (a
// COMPLETED_PROPOSAL seen in the last 60s, §4.4) is synced on its own as
// soon as it's seen rather than waiting for the next full pass.
func runChainSync(ctx context.Context, e *engine.Engine, log *slog.Logger) {
	for e.GetElectrumEndpoint() == "" {
		t := time.NewTimer(chainSyncRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	tick(ctx, chainSyncInterval, func() {
		start := time.Now()
		if ids, err := e.TakeResyncFlags(); err == nil && len(ids) > 0 {
			err := e.SyncPolicies(ctx, ids)
			observability.Sync().ObserveSync(time.Since(start), err)
			if err != nil && !errors.Is(err, engine.ErrElectrumEndpointNotSet) {
				observability.Sync().RecordError("chain_sync", "priority_resync")
				log.Warn("chain sync: priority resync failed", "error", err)
			}
			return
		}
		err := e.SyncPolicies(ctx, nil)
		observability.Sync().ObserveSync(time.Since(start), err)
		if err != nil && !errors.Is(err, engine.ErrElectrumEndpointNotSet) {
			observability.Sync().RecordError("chain_sync", "full_sync")
			log.Warn("chain sync: full sync failed", "error", err)
		}
	})
}
