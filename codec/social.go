package codec

import (
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/relay"
)

// EncodeMetadata publishes a user's profile fields in plaintext — Metadata
// is public by convention, the one kind this engine never encrypts.
func EncodeMetadata(author *crypto.PrivateKey, createdAt int64, content []byte) (relay.SignedEvent, error) {
	return SignEvent(author, createdAt, relay.KindMetadata, nil, content)
}

// DecodeMetadata verifies e and returns its raw profile content.
func DecodeMetadata(e relay.SignedEvent) ([]byte, error) {
	if err := VerifyEvent(e); err != nil {
		return nil, err
	}
	return e.Content, nil
}

type contactListPayload struct {
	Contacts map[string]string `json:"contacts"`
}

// EncodeContactList publishes a user's contact set as petname-by-pubkey,
// replacing (not merging with) whatever the recipient previously saw.
func EncodeContactList(author *crypto.PrivateKey, createdAt int64, contacts map[string]string) (relay.SignedEvent, error) {
	plain, err := json.Marshal(contactListPayload{Contacts: contacts})
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal contact list: %w", err)
	}
	return SignEvent(author, createdAt, relay.KindContactList, nil, plain)
}

// DecodeContactList verifies e and recovers the contact set it carries.
func DecodeContactList(e relay.SignedEvent) (map[string]string, error) {
	if err := VerifyEvent(e); err != nil {
		return nil, err
	}
	var payload contactListPayload
	if err := json.Unmarshal(e.Content, &payload); err != nil {
		return nil, fmt.Errorf("codec: unmarshal contact list: %w", err)
	}
	return payload.Contacts, nil
}
