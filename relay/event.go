// Package relay defines the typed boundary to the gossip relay network: a
// Transport publishes signed events to, and subscribes to filtered event
// streams from, a configurable set of relay endpoints. The coordination
// engine never opens a socket itself outside of this package's default
// implementation.
package relay

import (
	"coinstr/crypto"
	"coinstr/domain"
)

// Kind identifies an event's payload type on the wire, the same role
// Nostr's integer kind tag plays: the reducer dispatches on Kind before it
// ever looks at Content.
type Kind int

// Event kinds this engine produces and consumes.
const (
	KindMetadata           Kind = 0
	KindContactList        Kind = 3
	KindEventDeletion      Kind = 5
	KindPolicy             Kind = 31000
	KindProposal           Kind = 31001
	KindApprovedProposal   Kind = 31002
	KindCompletedProposal  Kind = 31003
	KindSharedKey          Kind = 31004
	KindSigners            Kind = 31005
	KindSharedSigners      Kind = 31006
	KindNostrConnect       Kind = 24133
)

// Tag is a single relay event tag: a key followed by its values, matching
// the `["e", <id>]` / `["p", <pubkey>]` wire shape.
type Tag struct {
	Key    string
	Values []string
}

// First returns the tag's first value, or "" if it has none.
func (t Tag) First() string {
	if len(t.Values) == 0 {
		return ""
	}
	return t.Values[0]
}

// SignedEvent is a fully-formed, signed relay event ready to publish or just
// received from a subscription. Content is the (possibly encrypted) payload
// bytes; EventCodec implementations in package codec interpret it according
// to Kind.
type SignedEvent struct {
	ID        domain.EventId
	Author    crypto.PublicKey
	CreatedAt int64
	Kind      Kind
	Tags      []Tag
	Content   []byte
	Sig       []byte
}

// TagValues returns the values of every tag in e matching key, in order.
func (e SignedEvent) TagValues(key string) []string {
	var out []string
	for _, t := range e.Tags {
		if t.Key == key {
			out = append(out, t.Values...)
		}
	}
	return out
}

// Filter selects a subset of the event stream a Subscribe call wants to
// receive: by id, author, kind, or a referenced tag value, each narrowing
// the match (empty slices impose no constraint).
type Filter struct {
	IDs     []domain.EventId
	Authors []crypto.PublicKey
	Kinds   []Kind
	Tags    map[string][]string
	Since   int64
	Limit   int
}

// Matches reports whether e satisfies every non-empty constraint in f.
func (f Filter) Matches(e SignedEvent) bool {
	if len(f.IDs) > 0 && !containsID(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsKey(f.Authors, e.Author) {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, e.Kind) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	for key, values := range f.Tags {
		if !anyTagValueMatches(e, key, values) {
			return false
		}
	}
	return true
}

func containsID(ids []domain.EventId, id domain.EventId) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsKey(keys []crypto.PublicKey, k crypto.PublicKey) bool {
	for _, v := range keys {
		if v == k {
			return true
		}
	}
	return false
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func anyTagValueMatches(e SignedEvent, key string, wanted []string) bool {
	got := e.TagValues(key)
	for _, w := range wanted {
		for _, g := range got {
			if w == g {
				return true
			}
		}
	}
	return false
}

// InboundMessage is one item off a Subscribe channel: either a matched
// event, or an end-of-stored-events marker signalling the subscription has
// caught up to live events.
type InboundMessage struct {
	Event *SignedEvent
	EOSE  bool
}
