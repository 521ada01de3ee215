package engine

import (
	"context"
	"fmt"

	"coinstr/codec"
	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/sharedkey"
	"coinstr/store"
	"coinstr/wallet"
)

// SavePolicy implements save_policy: generates a fresh shared key K_p,
// publishes one SHARED_KEY event per cosigner (fire-and-forget) followed by
// the POLICY event itself (5s send-wait), and commits both locally first
// per §5's ordering rule.
func (e *Engine) SavePolicy(name, description, descriptor string, network domain.Network, cosigners []crypto.PublicKey) (domain.EventId, error) {
	if len(cosigners) < 2 {
		return domain.EventId{}, ErrNotEnoughPublicKeys
	}
	if err := wallet.ParseDescriptor(descriptor, network); err != nil {
		return domain.EventId{}, fmt.Errorf("engine: %w", err)
	}

	sk, err := sharedkey.Generate(domain.ZeroEventId)
	if err != nil {
		return domain.EventId{}, fmt.Errorf("engine: generate shared key: %w", err)
	}

	threshold := wallet.ExtractThreshold(descriptor, len(cosigners))
	createdAt := e.now()
	policy := domain.Policy{
		Name:        name,
		Description: description,
		Descriptor:  descriptor,
		Network:     network,
		Cosigners:   cosigners,
		Threshold:   threshold,
		CreatedAt:   createdAt,
	}

	policyEvent, err := codec.EncodePolicy(e.identity, sk.Secret, createdAt.Unix(), policy)
	if err != nil {
		return domain.EventId{}, fmt.Errorf("engine: encode policy: %w", err)
	}
	policy.ID = policyEvent.ID
	sk.PolicyID = policyEvent.ID

	if err := e.store.SaveSharedKey(sk, createdAt); err != nil {
		return domain.EventId{}, fmt.Errorf("engine: save shared key: %w", err)
	}
	if err := e.store.SavePolicy(policy); err != nil {
		return domain.EventId{}, fmt.Errorf("engine: save policy: %w", err)
	}

	for _, cosigner := range cosigners {
		skEvent, err := codec.EncodeSharedKey(e.identity, policy.ID, cosigner, sk.Secret, createdAt.Unix())
		if err != nil {
			continue
		}
		e.publishAsync(skEvent)
	}
	if err := e.publishWait(policyEvent); err != nil {
		return policy.ID, err
	}
	return policy.ID, nil
}

// GetPolicy implements get_policy.
func (e *Engine) GetPolicy(id domain.EventId) (domain.Policy, error) {
	p, err := e.store.GetPolicy(id)
	if err != nil {
		return domain.Policy{}, notFound(err, ErrPolicyNotFound)
	}
	return p, nil
}

// GetPolicies implements get_policies.
func (e *Engine) GetPolicies() ([]domain.Policy, error) {
	return e.store.GetPolicies()
}

// GetDetailedPolicy implements get_detailed_policy: a Policy plus its
// wallet's current balance and the indexer's last-seen sync height, for
// callers that want a single call instead of composing GetPolicy with a
// Wallet.Balance round trip themselves.
func (e *Engine) GetDetailedPolicy(ctx context.Context, id domain.EventId) (domain.DetailedPolicy, error) {
	policy, err := e.store.GetPolicy(id)
	if err != nil {
		return domain.DetailedPolicy{}, notFound(err, ErrPolicyNotFound)
	}
	w, err := e.openWallet(policy)
	if err != nil {
		return domain.DetailedPolicy{}, fmt.Errorf("engine: open wallet: %w", err)
	}
	balance, err := w.Balance(ctx)
	if err != nil {
		return domain.DetailedPolicy{}, fmt.Errorf("engine: wallet balance: %w", err)
	}
	height, _, err := e.store.GetChainState()
	if err != nil {
		return domain.DetailedPolicy{}, fmt.Errorf("engine: chain state: %w", err)
	}
	return domain.DetailedPolicy{Policy: policy, Balance: balance, LastSyncHeight: height}, nil
}

// DeletePolicy implements delete_policy: tombstones and removes the policy
// and everything hanging off it locally, then publishes an EventDeletion
// under the policy's shared key (policy-scoped deletions are authenticated
// by K_p, not the caller's own identity, so any cosigner can countersign
// one) tagged with every cosigner and the policy id.
func (e *Engine) DeletePolicy(ctx context.Context, id domain.EventId) error {
	policy, err := e.store.GetPolicy(id)
	if err != nil {
		return notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(id)
	if err != nil {
		return notFound(err, ErrSharedKeyNotFound)
	}
	ids := []domain.EventId{id}
	proposals, err := e.store.GetProposals(id)
	if err == nil {
		for _, p := range proposals {
			ids = append(ids, p.ID)
		}
	}
	completed, err := e.store.GetCompletedProposals()
	if err == nil {
		for _, c := range completed {
			if c.PolicyID == id {
				ids = append(ids, c.ID)
			}
		}
	}

	skPriv, err := sharedKeyAsPrivate(key)
	if err != nil {
		return err
	}
	event, err := codec.EncodeEventDeletion(skPriv, e.now().Unix(), ids, policy.Cosigners)
	if err != nil {
		return fmt.Errorf("engine: encode policy deletion: %w", err)
	}

	if err := e.store.MarkDeleted(ids, e.now()); err != nil {
		return err
	}
	if err := e.store.DeletePolicy(id); err != nil {
		return err
	}
	return e.publishWait(event)
}

func notFound(err, sentinel error) error {
	if err == store.ErrNotFound {
		return sentinel
	}
	return err
}
