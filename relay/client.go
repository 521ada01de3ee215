package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 15 * time.Second
)

// Client is Transport's default implementation: one nhooyr.io/websocket
// connection per relay, speaking the minimal relay wire protocol implied by
// the coordination engine — ["EVENT", ev] / ["REQ", subID, filters...] out,
// ["EVENT", subID, ev] / ["EOSE", subID] in.
type Client struct {
	mu     sync.Mutex
	relays map[string]*relayConn
}

type relayConn struct {
	url  string
	conn *websocket.Conn
	mu   sync.Mutex
	subs map[string]chan InboundMessage
}

// NewClient returns a Transport with no relays configured; call AddRelay to
// connect to one.
func NewClient() *Client {
	return &Client{relays: make(map[string]*relayConn)}
}

// AddRelay dials url and keeps the connection open for future Publish and
// Subscribe calls.
func (c *Client) AddRelay(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relays[url]; ok {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", url, err)
	}
	rc := &relayConn{url: url, conn: conn, subs: make(map[string]chan InboundMessage)}
	c.relays[url] = rc
	go rc.readLoop()
	return nil
}

// RemoveRelay closes and forgets the connection to url, if any.
func (c *Client) RemoveRelay(url string) error {
	c.mu.Lock()
	rc, ok := c.relays[url]
	if ok {
		delete(c.relays, url)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return rc.conn.Close(websocket.StatusNormalClosure, "relay removed")
}

// Relays returns the currently-configured relay URLs.
func (c *Client) Relays() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.relays))
	for url := range c.relays {
		out = append(out, url)
	}
	return out
}

// Publish sends event to every configured relay, returning the first error
// encountered. Per-relay outcomes are not reported; the pending-event retry
// loop republishes a failed event to every relay again.
func (c *Client) Publish(ctx context.Context, event SignedEvent) error {
	c.mu.Lock()
	conns := make([]*relayConn, 0, len(c.relays))
	for _, rc := range c.relays {
		conns = append(conns, rc)
	}
	c.mu.Unlock()

	frame := []interface{}{"EVENT", toWireEvent(event)}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("relay: encode event frame: %w", err)
	}
	var firstErr error
	for _, rc := range conns {
		if err := rc.write(ctx, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe opens a REQ against relayURL and returns a channel of matching
// events, terminated by an EOSE marker once the relay has sent everything
// it stored. The channel remains open for live events afterward.
func (c *Client) Subscribe(ctx context.Context, relayURL string, filters []Filter) (<-chan InboundMessage, error) {
	c.mu.Lock()
	rc, ok := c.relays[relayURL]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("relay: not connected to %s", relayURL)
	}

	subID := fmt.Sprintf("sub-%d", time.Now().UnixNano())
	ch := make(chan InboundMessage, 64)
	rc.mu.Lock()
	rc.subs[subID] = ch
	rc.mu.Unlock()

	wireFilters := make([]wireFilter, 0, len(filters))
	for _, f := range filters {
		wireFilters = append(wireFilters, toWireFilter(f))
	}
	frame := append([]interface{}{"REQ", subID}, filtersToAny(wireFilters)...)
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("relay: encode req frame: %w", err)
	}
	if err := rc.write(ctx, payload); err != nil {
		return nil, err
	}
	return ch, nil
}

func filtersToAny(filters []wireFilter) []interface{} {
	out := make([]interface{}, len(filters))
	for i, f := range filters {
		out[i] = f
	}
	return out
}

func (rc *relayConn) write(ctx context.Context, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.conn.Write(writeCtx, websocket.MessageText, payload)
}

// readLoop decodes inbound frames and routes EVENT/EOSE messages to the
// subscription channel named by their subID, until the connection closes.
func (rc *relayConn) readLoop() {
	ctx := context.Background()
	for {
		_, data, err := rc.conn.Read(ctx)
		if err != nil {
			rc.closeAllSubs()
			return
		}
		label, raw, err := decodeFrame(data)
		if err != nil {
			continue
		}
		switch label {
		case "EVENT":
			var frame [3]json.RawMessage
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}
			var we wireEvent
			if err := json.Unmarshal(frame[2], &we); err != nil {
				continue
			}
			ev, err := fromWireEvent(we)
			if err != nil {
				continue
			}
			rc.deliver(subID, InboundMessage{Event: &ev})
		case "EOSE":
			var frame [2]json.RawMessage
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}
			rc.deliver(subID, InboundMessage{EOSE: true})
		}
	}
}

func (rc *relayConn) deliver(subID string, msg InboundMessage) {
	rc.mu.Lock()
	ch, ok := rc.subs[subID]
	rc.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (rc *relayConn) closeAllSubs() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for id, ch := range rc.subs {
		close(ch)
		delete(rc.subs, id)
	}
}

var _ Transport = (*Client)(nil)
