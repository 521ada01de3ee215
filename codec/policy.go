package codec

import (
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/relay"
)

type policyPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Descriptor  string   `json:"descriptor"`
	Network     string   `json:"network"`
	Cosigners   []string `json:"cosigners"`
	Threshold   int      `json:"threshold"`
	CreatedAt   int64    `json:"created_at"`
}

// EncodePolicy builds a signed, K_p-encrypted Policy event. Every cosigner
// is tagged with "p" so relays (and cosigners scanning their own pubkey
// tag) can find it without decrypting the content first.
func EncodePolicy(author *crypto.PrivateKey, key [32]byte, createdAt int64, p domain.Policy) (relay.SignedEvent, error) {
	payload := policyPayload{
		Name:        p.Name,
		Description: p.Description,
		Descriptor:  p.Descriptor,
		Network:     string(p.Network),
		Threshold:   p.Threshold,
		CreatedAt:   createdAt,
	}
	for _, c := range p.Cosigners {
		payload.Cosigners = append(payload.Cosigners, c.String())
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal policy: %w", err)
	}
	content, err := EncryptWithKey(key, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := make([]relay.Tag, 0, len(p.Cosigners))
	for _, c := range p.Cosigners {
		tags = append(tags, relay.Tag{Key: "p", Values: []string{c.String()}})
	}
	return SignEvent(author, createdAt, relay.KindPolicy, tags, content)
}

// DecodePolicy verifies e and decrypts/unmarshals its content into a Policy
// using the given K_p. The Policy's ID is the event's ID.
func DecodePolicy(key [32]byte, e relay.SignedEvent) (domain.Policy, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.Policy{}, err
	}
	plain, err := DecryptWithKey(key, e.Content)
	if err != nil {
		return domain.Policy{}, err
	}
	var payload policyPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.Policy{}, fmt.Errorf("codec: unmarshal policy: %w", err)
	}
	cosigners := make([]domain.PublicKey, 0, len(payload.Cosigners))
	for _, s := range payload.Cosigners {
		pk, err := crypto.PublicKeyFromHex(s)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("codec: decode cosigner: %w", err)
		}
		cosigners = append(cosigners, pk)
	}
	return domain.Policy{
		ID:          e.ID,
		Name:        payload.Name,
		Description: payload.Description,
		Descriptor:  payload.Descriptor,
		Network:     domain.Network(payload.Network),
		Cosigners:   cosigners,
		Threshold:   payload.Threshold,
		CreatedAt:   unixToTime(payload.CreatedAt),
	}, nil
}

// EncodeSharedKey encrypts secret for one recipient via ECDH (not K_p
// itself — the registry is how K_p first reaches each cosigner) and tags
// the event with the policy it belongs to and the recipient it's for.
func EncodeSharedKey(author *crypto.PrivateKey, policyID domain.EventId, recipient crypto.PublicKey, secret [32]byte, createdAt int64) (relay.SignedEvent, error) {
	content, err := EncryptForRecipient(author, recipient, secret[:])
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{
		{Key: "e", Values: []string{policyID.String()}},
		{Key: "p", Values: []string{recipient.String()}},
	}
	return SignEvent(author, createdAt, relay.KindSharedKey, tags, content)
}

// DecodeSharedKey decrypts a SharedKey event addressed to recipient,
// recovering K_p and the policy it belongs to.
func DecodeSharedKey(receiver *crypto.PrivateKey, e relay.SignedEvent) (domain.SharedKey, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.SharedKey{}, err
	}
	plain, err := DecryptFromSender(receiver, e.Author, e.Content)
	if err != nil {
		return domain.SharedKey{}, err
	}
	if len(plain) != 32 {
		return domain.SharedKey{}, fmt.Errorf("codec: shared key secret must be 32 bytes")
	}
	policyTags := e.TagValues("e")
	if len(policyTags) == 0 {
		return domain.SharedKey{}, fmt.Errorf("codec: shared key event missing policy tag")
	}
	policyID, err := domain.EventIdFromHex(policyTags[0])
	if err != nil {
		return domain.SharedKey{}, fmt.Errorf("codec: decode policy id: %w", err)
	}
	var sk domain.SharedKey
	sk.PolicyID = policyID
	copy(sk.Secret[:], plain)
	return sk, nil
}
