package loops

import (
	"context"
	"log/slog"
	"time"

	"coinstr/domain"
	"coinstr/engine"
	"coinstr/observability"
	"coinstr/relay"
)

// coordinationKinds is every kind the reducer knows how to dispatch except
// NostrConnect and the two ambient social kinds, which get their own
// filters below (§6's canonical filter set).
var coordinationKinds = []relay.Kind{
	relay.KindPolicy,
	relay.KindProposal,
	relay.KindApprovedProposal,
	relay.KindCompletedProposal,
	relay.KindSharedKey,
	relay.KindSigners,
	relay.KindSharedSigners,
	relay.KindEventDeletion,
}

// canonicalFilters builds the four-filter set every relay subscription
// uses: self-authored coordination events, coordination events mentioning
// self via a "p" tag, NostrConnect requests mentioning self, and this
// node's own ambient social events (Metadata/ContactList).
func canonicalFilters(self domain.PublicKey, since int64) []relay.Filter {
	selfHex := self.String()
	return []relay.Filter{
		{Authors: []domain.PublicKey{self}, Kinds: coordinationKinds, Since: since},
		{Tags: map[string][]string{"p": {selfHex}}, Kinds: coordinationKinds, Since: since},
		{Tags: map[string][]string{"p": {selfHex}}, Kinds: []relay.Kind{relay.KindNostrConnect}, Since: since},
		{Authors: []domain.PublicKey{self}, Kinds: []relay.Kind{relay.KindMetadata, relay.KindContactList}, Since: since},
	}
}

// runSubscription maintains one live subscription per relay this node
// knows about, feeding every inbound event to the Event Reducer and
// advancing that relay's sync cursor on EOSE. It re-lists relays on every
// pass so AddRelay/RemoveRelay calls made after the loop starts take effect
// without a restart.
func runSubscription(ctx context.Context, e *engine.Engine, log *slog.Logger) {
	active := map[string]context.CancelFunc{}
	defer func() {
		for _, cancel := range active {
			cancel()
		}
	}()

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	reconcile := func() {
		urls, err := e.Store().GetRelays()
		if err != nil {
			log.Warn("subscription: list relays failed", "error", err)
			return
		}
		wanted := map[string]struct{}{}
		for _, url := range urls {
			wanted[url] = struct{}{}
			if _, ok := active[url]; ok {
				continue
			}
			rctx, cancel := context.WithCancel(ctx)
			active[url] = cancel
			go subscribeRelay(rctx, e, log, url)
		}
		for url, cancel := range active {
			if _, ok := wanted[url]; !ok {
				cancel()
				delete(active, url)
			}
		}
	}

	reconcile()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			reconcile()
		}
	}
}

func subscribeRelay(ctx context.Context, e *engine.Engine, log *slog.Logger, url string) {
	since, err := e.Store().GetRelaySync(url)
	if err != nil {
		log.Warn("subscription: read sync cursor failed", "relay", url, "error", err)
	}
	filters := canonicalFilters(e.Identity(), since)

	ch, err := e.Transport().Subscribe(ctx, url, filters)
	if err != nil {
		observability.Sync().RecordError("subscription", "subscribe_failed")
		log.Warn("subscription: subscribe failed", "relay", url, "error", err)
		return
	}
	observability.Sync().SetRelayConnected(url, true)
	defer observability.Sync().SetRelayConnected(url, false)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Event != nil {
				if _, err := e.Reducer().Reduce(*msg.Event); err != nil {
					log.Warn("subscription: reduce failed", "relay", url, "id", msg.Event.ID, "error", err)
				}
			}
			if msg.EOSE {
				if err := e.Store().SetRelaySync(url, time.Now().Unix()); err != nil {
					log.Warn("subscription: set sync cursor failed", "relay", url, "error", err)
				}
			}
		}
	}
}
