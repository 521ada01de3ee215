package relay

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/domain"
)

// wireEvent is SignedEvent's JSON wire encoding: tags as arrays of strings,
// content base64-encoded (it is typically an encrypted envelope, not text),
// signature and identifiers hex-encoded.
type wireEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func toWireEvent(e SignedEvent) wireEvent {
	tags := make([][]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		row := append([]string{t.Key}, t.Values...)
		tags = append(tags, row)
	}
	return wireEvent{
		ID:        e.ID.String(),
		Pubkey:    e.Author.String(),
		CreatedAt: e.CreatedAt,
		Kind:      int(e.Kind),
		Tags:      tags,
		Content:   base64.StdEncoding.EncodeToString(e.Content),
		Sig:       hex.EncodeToString(e.Sig),
	}
}

func fromWireEvent(w wireEvent) (SignedEvent, error) {
	id, err := domain.EventIdFromHex(w.ID)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("relay: decode event id: %w", err)
	}
	author, err := crypto.PublicKeyFromHex(w.Pubkey)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("relay: decode author: %w", err)
	}
	content, err := base64.StdEncoding.DecodeString(w.Content)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("relay: decode content: %w", err)
	}
	sig, err := hex.DecodeString(w.Sig)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("relay: decode sig: %w", err)
	}
	tags := make([]Tag, 0, len(w.Tags))
	for _, row := range w.Tags {
		if len(row) == 0 {
			continue
		}
		tags = append(tags, Tag{Key: row[0], Values: row[1:]})
	}
	return SignedEvent{
		ID:        id,
		Author:    author,
		CreatedAt: w.CreatedAt,
		Kind:      Kind(w.Kind),
		Tags:      tags,
		Content:   content,
		Sig:       sig,
	}, nil
}

// EncodeSignedEvent renders e in its JSON wire form, used by the
// pending-event queue to persist an unacknowledged event independently of
// any particular relay connection.
func EncodeSignedEvent(e SignedEvent) ([]byte, error) {
	return json.Marshal(toWireEvent(e))
}

// DecodeSignedEvent reverses EncodeSignedEvent.
func DecodeSignedEvent(raw []byte) (SignedEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return SignedEvent{}, fmt.Errorf("relay: decode signed event: %w", err)
	}
	return fromWireEvent(w)
}

// wireFilter is Filter's JSON wire encoding.
type wireFilter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"tags,omitempty"`
	Since   int64               `json:"since,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

func toWireFilter(f Filter) wireFilter {
	w := wireFilter{Since: f.Since, Limit: f.Limit, Tags: f.Tags}
	for _, id := range f.IDs {
		w.IDs = append(w.IDs, id.String())
	}
	for _, a := range f.Authors {
		w.Authors = append(w.Authors, a.String())
	}
	for _, k := range f.Kinds {
		w.Kinds = append(w.Kinds, int(k))
	}
	return w
}

// decodeFrame inspects a relay frame's leading element ("EVENT", "EOSE",
// "OK", "NOTICE") without fully parsing the rest, so the dispatcher in
// client.go only decodes the payload it actually needs.
func decodeFrame(raw []byte) (label string, rest json.RawMessage, err error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, fmt.Errorf("relay: decode frame: %w", err)
	}
	if len(frame) == 0 {
		return "", nil, fmt.Errorf("relay: empty frame")
	}
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return "", nil, fmt.Errorf("relay: decode frame label: %w", err)
	}
	return label, raw, nil
}
