// Package codec turns domain entities into signed, optionally encrypted
// relay events and back. It owns the only two things every event shares
// regardless of kind: the canonical form used to compute an EventId, and
// the BIP340 signature over that id.
package codec

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/relay"
)

// canonicalForm serializes the signable fields of an event in a fixed order
// so two implementations hashing the same logical event always agree on its
// EventId. It deliberately excludes ID and Sig.
func canonicalForm(author crypto.PublicKey, createdAt int64, kind relay.Kind, tags []relay.Tag, content []byte) []byte {
	var buf []byte
	buf = append(buf, author[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(createdAt))
	buf = append(buf, ts[:]...)
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(kind))
	buf = append(buf, k[:]...)
	for _, t := range tags {
		buf = append(buf, []byte(t.Key)...)
		buf = append(buf, 0)
		for _, v := range t.Values {
			buf = append(buf, []byte(v)...)
			buf = append(buf, 0)
		}
		buf = append(buf, 0xff)
	}
	buf = append(buf, content...)
	return buf
}

// ComputeEventId hashes an event's canonical form with BLAKE3, producing the
// 256-bit identifier every domain entity is addressed by.
func ComputeEventId(author crypto.PublicKey, createdAt int64, kind relay.Kind, tags []relay.Tag, content []byte) domain.EventId {
	sum := blake3.Sum256(canonicalForm(author, createdAt, kind, tags, content))
	return domain.EventId(sum)
}

// SignEvent assembles a SignedEvent from its fields, computing its EventId
// and a BIP340 Schnorr signature over that id.
func SignEvent(priv *crypto.PrivateKey, createdAt int64, kind relay.Kind, tags []relay.Tag, content []byte) (relay.SignedEvent, error) {
	author := priv.PubKey()
	id := ComputeEventId(author, createdAt, kind, tags, content)
	sig, err := priv.Sign(id)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: sign event: %w", err)
	}
	return relay.SignedEvent{
		ID:        id,
		Author:    author,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       sig,
	}, nil
}

// VerifyEvent recomputes e's EventId from its fields and checks both that it
// matches e.ID and that e.Sig is a valid signature over it. An event failing
// either check must be discarded by the reducer before it touches the
// store.
func VerifyEvent(e relay.SignedEvent) error {
	want := ComputeEventId(e.Author, e.CreatedAt, e.Kind, e.Tags, e.Content)
	if want != e.ID {
		return fmt.Errorf("codec: event id mismatch: got %s want %s", e.ID, want)
	}
	if !crypto.Verify(e.Author, e.ID, e.Sig) {
		return fmt.Errorf("codec: invalid signature on event %s", e.ID)
	}
	return nil
}
