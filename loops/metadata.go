package loops

import (
	"context"
	"log/slog"
	"time"

	"coinstr/crypto"
	"coinstr/engine"
	"coinstr/relay"
)

// runMetadata periodically asks the relays for the Metadata of every cosigner
// and contact this node knows about but has never seen a profile for, so a UI
// can show a display name instead of a raw public key.
func runMetadata(ctx context.Context, e *engine.Engine, log *slog.Logger) {
	tick(ctx, metadataInterval, func() {
		authors, err := unknownAuthors(e)
		if err != nil {
			log.Warn("metadata: list known authors failed", "error", err)
			return
		}
		if len(authors) == 0 {
			return
		}
		timeout := 10 * time.Second * time.Duration(len(authors))
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		filter := relay.Filter{Authors: authors, Kinds: []relay.Kind{relay.KindMetadata}}
		for _, url := range e.Transport().Relays() {
			ch, err := e.Transport().Subscribe(sctx, url, []relay.Filter{filter})
			if err != nil {
				log.Warn("metadata: subscribe failed", "relay", url, "error", err)
				continue
			}
			drainUntilEOSE(sctx, ch, e)
		}
	})
}

func drainUntilEOSE(ctx context.Context, ch <-chan relay.InboundMessage, e *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.EOSE {
				return
			}
			if msg.Event != nil {
				_, _ = e.Reducer().Reduce(*msg.Event)
			}
		}
	}
}

func unknownAuthors(e *engine.Engine) ([]crypto.PublicKey, error) {
	seen := map[crypto.PublicKey]struct{}{}
	var out []crypto.PublicKey

	add := func(hex string) {
		pub, err := crypto.PublicKeyFromHex(hex)
		if err != nil {
			return
		}
		if _, ok := seen[pub]; ok {
			return
		}
		if _, found, err := e.Store().GetProfile(pub); err == nil && found {
			return
		}
		seen[pub] = struct{}{}
		out = append(out, pub)
	}

	policies, err := e.Store().GetPolicies()
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		for _, c := range p.Cosigners {
			add(c.String())
		}
	}
	contacts, err := e.Store().GetContacts()
	if err != nil {
		return nil, err
	}
	for hex := range contacts {
		add(hex)
	}
	return out, nil
}
