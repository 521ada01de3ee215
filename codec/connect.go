package codec

import (
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/relay"
)

// ConnectPayload is the decrypted body of a NostrConnect-style message: a
// JSON-RPC-shaped request ("connect", "get_public_key", "sign_event", ...)
// or its response, keyed by id so a request and its eventual reply can be
// matched up.
type ConnectPayload struct {
	ID     string            `json:"id"`
	Method string            `json:"method,omitempty"`
	Params []string          `json:"params,omitempty"`
	Result string            `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// EncodeConnectMessage seals a ConnectPayload for recipient via ECDH,
// tagged so the recipient's subscription filter on "p" finds it.
func EncodeConnectMessage(author *crypto.PrivateKey, recipient crypto.PublicKey, createdAt int64, payload ConnectPayload) (relay.SignedEvent, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal connect payload: %w", err)
	}
	content, err := EncryptForRecipient(author, recipient, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{{Key: "p", Values: []string{recipient.String()}}}
	return SignEvent(author, createdAt, relay.KindNostrConnect, tags, content)
}

// DecodeConnectMessage decrypts a NostrConnect event addressed to receiver.
func DecodeConnectMessage(receiver *crypto.PrivateKey, e relay.SignedEvent) (ConnectPayload, error) {
	if err := VerifyEvent(e); err != nil {
		return ConnectPayload{}, err
	}
	plain, err := DecryptFromSender(receiver, e.Author, e.Content)
	if err != nil {
		return ConnectPayload{}, err
	}
	var payload ConnectPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return ConnectPayload{}, fmt.Errorf("codec: unmarshal connect payload: %w", err)
	}
	return payload, nil
}
