package codec

import (
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/relay"
)

type signerPayload struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Descriptor  string `json:"descriptor"`
	CreatedAt   int64  `json:"created_at"`
}

// EncodeSigner publishes a cosigner descriptor fragment encrypted to the
// author's own key (a self-addressed ECDH envelope) — a Signer is private
// metadata about keys the user owns, readable only by that same user, never
// shared directly (that's SharedSigner's job).
func EncodeSigner(author *crypto.PrivateKey, createdAt int64, s domain.Signer) (relay.SignedEvent, error) {
	payload := signerPayload{Name: s.Name, Fingerprint: s.Fingerprint, Descriptor: s.Descriptor, CreatedAt: createdAt}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal signer: %w", err)
	}
	content, err := EncryptForRecipient(author, author.PubKey(), plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	return SignEvent(author, createdAt, relay.KindSigners, nil, content)
}

// DecodeSigner verifies e and decrypts it with the owner's own key.
func DecodeSigner(owner *crypto.PrivateKey, e relay.SignedEvent) (domain.Signer, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.Signer{}, err
	}
	plain, err := DecryptFromSender(owner, e.Author, e.Content)
	if err != nil {
		return domain.Signer{}, err
	}
	var payload signerPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.Signer{}, fmt.Errorf("codec: unmarshal signer: %w", err)
	}
	return domain.Signer{
		ID:          e.ID,
		Name:        payload.Name,
		Fingerprint: payload.Fingerprint,
		Descriptor:  payload.Descriptor,
		Owner:       e.Author,
		CreatedAt:   unixToTime(payload.CreatedAt),
	}, nil
}

type sharedSignerPayload struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Descriptor  string `json:"descriptor"`
	SignerID    string `json:"signer_id"`
	CreatedAt   int64  `json:"created_at"`
}

// EncodeSharedSigner encrypts a Signer's descriptor for one specific
// recipient via ECDH, so only that contact can read the key material being
// shared with them.
func EncodeSharedSigner(author *crypto.PrivateKey, recipient crypto.PublicKey, createdAt int64, signer domain.Signer) (relay.SignedEvent, error) {
	payload := sharedSignerPayload{
		Name:        signer.Name,
		Fingerprint: signer.Fingerprint,
		Descriptor:  signer.Descriptor,
		SignerID:    signer.ID.String(),
		CreatedAt:   createdAt,
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal shared signer: %w", err)
	}
	content, err := EncryptForRecipient(author, recipient, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{
		{Key: "p", Values: []string{recipient.String()}},
		{Key: "e", Values: []string{signer.ID.String()}},
	}
	return SignEvent(author, createdAt, relay.KindSharedSigners, tags, content)
}

// DecodeSharedSigner decrypts a SharedSigner event addressed to receiver.
func DecodeSharedSigner(receiver *crypto.PrivateKey, e relay.SignedEvent) (domain.SharedSigner, domain.Signer, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.SharedSigner{}, domain.Signer{}, err
	}
	plain, err := DecryptFromSender(receiver, e.Author, e.Content)
	if err != nil {
		return domain.SharedSigner{}, domain.Signer{}, err
	}
	var payload sharedSignerPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.SharedSigner{}, domain.Signer{}, fmt.Errorf("codec: unmarshal shared signer: %w", err)
	}
	signerID, err := domain.EventIdFromHex(payload.SignerID)
	if err != nil {
		return domain.SharedSigner{}, domain.Signer{}, fmt.Errorf("codec: decode signer id: %w", err)
	}
	shared := domain.SharedSigner{
		ID:        e.ID,
		SignerID:  signerID,
		Owner:     e.Author,
		Recipient: receiver.PubKey(),
		CreatedAt: unixToTime(payload.CreatedAt),
	}
	signer := domain.Signer{
		ID:          signerID,
		Name:        payload.Name,
		Fingerprint: payload.Fingerprint,
		Descriptor:  payload.Descriptor,
		Owner:       e.Author,
		CreatedAt:   unixToTime(payload.CreatedAt),
	}
	return shared, signer, nil
}

// EncodeEventDeletion publishes a tombstone for ids, the relay-level
// equivalent of delete_proposal/delete_policy/delete_completed/
// delete_signer/revoke_shared_signer: every cosigner's reducer treats a
// referenced id as permanently gone once this event is seen. recipients
// tags the cosigners who must see it, so a policy-scoped deletion reaches
// every holder of K_p even if they never subscribed to "e"-tag matches
// alone.
func EncodeEventDeletion(author *crypto.PrivateKey, createdAt int64, ids []domain.EventId, recipients []crypto.PublicKey) (relay.SignedEvent, error) {
	tags := make([]relay.Tag, 0, len(ids)+len(recipients))
	for _, id := range ids {
		tags = append(tags, relay.Tag{Key: "e", Values: []string{id.String()}})
	}
	for _, r := range recipients {
		tags = append(tags, relay.Tag{Key: "p", Values: []string{r.String()}})
	}
	return SignEvent(author, createdAt, relay.KindEventDeletion, tags, nil)
}

// DecodeEventDeletion verifies e and returns the ids it tombstones.
func DecodeEventDeletion(e relay.SignedEvent) ([]domain.EventId, error) {
	if err := VerifyEvent(e); err != nil {
		return nil, err
	}
	var ids []domain.EventId
	for _, v := range e.TagValues("e") {
		id, err := domain.EventIdFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("codec: decode deleted event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
