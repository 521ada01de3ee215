package relay

import "context"

// Transport is the gossip relay network's typed API: maintain a set of
// relay endpoints, publish signed events to them, and subscribe to
// filtered event streams from one of them. The engine's background loops
// (§4.6) are the only callers of Subscribe; Coordination API operations
// that author new events call Publish.
type Transport interface {
	AddRelay(ctx context.Context, url string) error
	RemoveRelay(url string) error
	Relays() []string
	Publish(ctx context.Context, event SignedEvent) error
	Subscribe(ctx context.Context, relayURL string, filters []Filter) (<-chan InboundMessage, error)
}
