package engine

import (
	"context"
	"fmt"

	"coinstr/codec"
	"coinstr/crypto"
	"coinstr/domain"
)

// SaveSigner implements save_signer: publishes a Signer fragment encrypted
// to the caller's own key. I7 (descriptor uniqueness) is enforced here: a
// descriptor equal to one of the caller's saved Signers fails with
// ErrSignerDescriptorAlreadyExists before anything is published. The Store's
// unique index on (owner, descriptor) turns a repeated save into an update,
// not an error.
func (e *Engine) SaveSigner(name, fingerprint, descriptor string) (domain.EventId, error) {
	owner := e.identity.PubKey()
	existing, err := e.store.GetSigners(owner)
	if err != nil {
		return domain.EventId{}, err
	}
	for _, s := range existing {
		if s.Descriptor == descriptor {
			return domain.EventId{}, ErrSignerDescriptorAlreadyExists
		}
	}
	createdAt := e.now()
	signer := domain.Signer{Name: name, Fingerprint: fingerprint, Descriptor: descriptor, Owner: owner, CreatedAt: createdAt}
	event, err := codec.EncodeSigner(e.identity, createdAt.Unix(), signer)
	if err != nil {
		return domain.EventId{}, fmt.Errorf("engine: encode signer: %w", err)
	}
	signer.ID = event.ID
	if err := e.store.SaveSigner(signer); err != nil {
		return domain.EventId{}, fmt.Errorf("engine: save signer: %w", err)
	}
	if err := e.publishWait(event); err != nil {
		return signer.ID, err
	}
	return signer.ID, nil
}

// GetSigners implements get_signers, returning the caller's own Signer set.
func (e *Engine) GetSigners() ([]domain.Signer, error) {
	return e.store.GetSigners(e.identity.PubKey())
}

// DeleteSigner implements delete_signer: a user-scoped deletion, signed by
// the caller's own identity since a Signer is private to its owner.
func (e *Engine) DeleteSigner(ctx context.Context, signerID domain.EventId) error {
	signers, err := e.store.GetSigners(e.identity.PubKey())
	if err != nil {
		return err
	}
	found := false
	for _, s := range signers {
		if s.ID == signerID {
			found = true
			break
		}
	}
	if !found {
		return ErrSignerIdNotFound
	}
	event, err := codec.EncodeEventDeletion(e.identity, e.now().Unix(), []domain.EventId{signerID}, nil)
	if err != nil {
		return fmt.Errorf("engine: encode signer deletion: %w", err)
	}
	if err := e.store.MarkDeleted([]domain.EventId{signerID}, e.now()); err != nil {
		return err
	}
	if err := e.store.DeleteSigner(signerID); err != nil {
		return err
	}
	return e.publishWait(event)
}

// ShareSigner implements share_signer: idempotent per (signer, recipient)
// pair — re-sharing the same Signer to the same recipient returns
// ErrSignerAlreadyShared rather than publishing a duplicate.
func (e *Engine) ShareSigner(signerID domain.EventId, recipient crypto.PublicKey) (domain.EventId, error) {
	owner := e.identity.PubKey()
	signers, err := e.store.GetSigners(owner)
	if err != nil {
		return domain.EventId{}, err
	}
	var signer domain.Signer
	found := false
	for _, s := range signers {
		if s.ID == signerID {
			signer = s
			found = true
			break
		}
	}
	if !found {
		return domain.EventId{}, ErrSignerNotFound
	}
	mine, err := e.store.GetMySharedSigners(recipient)
	if err != nil {
		return domain.EventId{}, err
	}
	for _, ss := range mine {
		if ss.SignerID == signerID && ss.Owner == owner {
			return domain.EventId{}, ErrSignerAlreadyShared
		}
	}
	createdAt := e.now()
	event, err := codec.EncodeSharedSigner(e.identity, recipient, createdAt.Unix(), signer)
	if err != nil {
		return domain.EventId{}, fmt.Errorf("engine: encode shared signer: %w", err)
	}
	shared := domain.SharedSigner{ID: event.ID, SignerID: signerID, Owner: owner, Recipient: recipient, CreatedAt: createdAt}
	if err := e.store.SaveSharedSigner(shared); err != nil {
		return domain.EventId{}, fmt.Errorf("engine: save shared signer: %w", err)
	}
	if err := e.publishWait(event); err != nil {
		return shared.ID, err
	}
	return shared.ID, nil
}

// RevokeSharedSigner implements revoke_shared_signer.
func (e *Engine) RevokeSharedSigner(ctx context.Context, sharedSignerID domain.EventId) error {
	event, err := codec.EncodeEventDeletion(e.identity, e.now().Unix(), []domain.EventId{sharedSignerID}, nil)
	if err != nil {
		return fmt.Errorf("engine: encode shared signer revocation: %w", err)
	}
	if err := e.store.MarkDeleted([]domain.EventId{sharedSignerID}, e.now()); err != nil {
		return err
	}
	if err := e.store.RevokeSharedSigner(sharedSignerID); err != nil {
		return err
	}
	return e.publishWait(event)
}

// GetMySharedSigners implements the "my shared signers" read §4.1 names.
func (e *Engine) GetMySharedSigners() ([]domain.SharedSigner, error) {
	return e.store.GetMySharedSigners(e.identity.PubKey())
}
