package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coinstr/codec"
	"coinstr/domain"
	"coinstr/wallet"
)

// keyArray copies a private key's scalar into the fixed-size array
// wallet.Wallet.SignPsbt expects.
func keyArray(priv interface{ Bytes() []byte }) [32]byte {
	var out [32]byte
	copy(out[:], priv.Bytes())
	return out
}

// Spend implements spend: builds a PSBT for addr/amount/feeRate against
// policy's wallet, immediately co-signs it with the caller's own key (this
// engine always holds one of the policy's cosigner keys), and publishes the
// resulting Proposal under K_p. No per-cosigner direct-message summary is
// sent; cosigners learn of the proposal only from the PROPOSAL event.
func (e *Engine) Spend(ctx context.Context, policyID domain.EventId, addr wallet.Address, amount wallet.Sats, description string, feeRate wallet.FeeRate) (domain.EventId, domain.Proposal, error) {
	policy, key, w, err := e.policyContext(policyID)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, err
	}
	psbt, err := w.BuildSpend(ctx, addr, amount, feeRate)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: build spend: %w", err)
	}
	psbt, err = w.SignPsbt(ctx, psbt, keyArray(e.identity), isInternalKey(policy.Descriptor, e.identity.PubKey()))
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: sign spend: %w", err)
	}

	createdAt := e.now()
	proposal := domain.Proposal{
		PolicyID:   policyID,
		Kind:       domain.ProposalSpending,
		Descriptor: policy.Descriptor,
		Psbt:       psbt,
		Status:     domain.ProposalPending,
		Address:    addr,
		Amount:     amount,
		FeeRate:    feeRate,
		Message:    description,
		CreatedBy:  e.identity.PubKey(),
		CreatedAt:  createdAt,
	}
	return e.publishProposal(key.Secret, proposal, createdAt)
}

// SelfTransfer implements self_transfer: moves funds from one policy's
// wallet to the next unused address of another, a spend whose destination
// is derived rather than caller-supplied.
func (e *Engine) SelfTransfer(ctx context.Context, fromPolicy, toPolicy domain.EventId, amount wallet.Sats, feeRate wallet.FeeRate) (domain.EventId, domain.Proposal, error) {
	destPolicy, err := e.store.GetPolicy(toPolicy)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, notFound(err, ErrPolicyNotFound)
	}
	destWallet, err := e.openWallet(destPolicy)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: open destination wallet: %w", err)
	}
	addr, err := destWallet.NextUnusedAddress(ctx)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: derive destination address: %w", err)
	}
	return e.Spend(ctx, fromPolicy, addr, amount, "self transfer", feeRate)
}

// ProposeProofOfReserve builds and publishes a ProofOfReserve Proposal for
// message, supplementing spend's Spending path with the second Proposal
// variant §3 names.
func (e *Engine) ProposeProofOfReserve(ctx context.Context, policyID domain.EventId, message string) (domain.EventId, domain.Proposal, error) {
	policy, key, w, err := e.policyContext(policyID)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, err
	}
	psbt, err := w.BuildProofOfReserve(ctx, message)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: build proof of reserve: %w", err)
	}
	psbt, err = w.SignPsbt(ctx, psbt, keyArray(e.identity), isInternalKey(policy.Descriptor, e.identity.PubKey()))
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: sign proof of reserve: %w", err)
	}
	createdAt := e.now()
	proposal := domain.Proposal{
		PolicyID:   policyID,
		Kind:       domain.ProposalProofOfReserve,
		Descriptor: policy.Descriptor,
		Psbt:       psbt,
		Status:     domain.ProposalPending,
		Message:    message,
		CreatedBy:  e.identity.PubKey(),
		CreatedAt:  createdAt,
	}
	return e.publishProposal(key.Secret, proposal, createdAt)
}

func (e *Engine) publishProposal(key [32]byte, proposal domain.Proposal, createdAt time.Time) (domain.EventId, domain.Proposal, error) {
	event, err := codec.EncodeProposal(e.identity, key, createdAt.Unix(), proposal)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: encode proposal: %w", err)
	}
	proposal.ID = event.ID
	if err := e.store.SaveProposal(proposal); err != nil {
		return domain.EventId{}, domain.Proposal{}, fmt.Errorf("engine: save proposal: %w", err)
	}
	if err := e.publishWait(event); err != nil {
		return proposal.ID, proposal, err
	}
	return proposal.ID, proposal, nil
}

func (e *Engine) policyContext(policyID domain.EventId) (domain.Policy, domain.SharedKey, wallet.Wallet, error) {
	policy, err := e.store.GetPolicy(policyID)
	if err != nil {
		return domain.Policy{}, domain.SharedKey{}, nil, notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(policyID)
	if err != nil {
		return domain.Policy{}, domain.SharedKey{}, nil, notFound(err, ErrSharedKeyNotFound)
	}
	w, err := e.openWallet(policy)
	if err != nil {
		return domain.Policy{}, domain.SharedKey{}, nil, fmt.Errorf("engine: open wallet: %w", err)
	}
	return policy, key, w, nil
}

// isInternalKey reports whether pub is the descriptor's Taproot internal
// key (a "tr(<pubkey>...)" prefix, allowing for the key-path-only
// "tr(<pubkey>)" form too), the detection §4.5's approve operation needs to
// pick the right SignPsbt key-path flag.
func isInternalKey(descriptor string, pub domain.PublicKey) bool {
	trimmed := strings.TrimSpace(descriptor)
	if !strings.HasPrefix(trimmed, "tr(") {
		return false
	}
	rest := strings.TrimPrefix(trimmed, "tr(")
	return strings.HasPrefix(rest, pub.String())
}

// Approve implements approve: signs the Proposal's PSBT with the caller's
// own key and publishes an APPROVED_PROPOSAL tagged with an expiration 7
// days out (the Approval entity's default validity per §3).
func (e *Engine) Approve(ctx context.Context, proposalID domain.EventId) (domain.EventId, domain.Approval, error) {
	proposal, err := e.store.GetProposal(proposalID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrProposalNotFound)
	}
	policy, err := e.store.GetPolicy(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrSharedKeyNotFound)
	}
	w, err := e.openWallet(policy)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: open wallet: %w", err)
	}
	signed, err := w.SignPsbt(ctx, proposal.Psbt, keyArray(e.identity), isInternalKey(policy.Descriptor, e.identity.PubKey()))
	if err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: sign approval: %w", err)
	}
	return e.publishApproval(proposal, key, signed)
}

// ApproveWithSignedPsbt implements approve_with_signed_psbt: accepts a PSBT
// signed out of band (by a hardware wallet the engine never held the key
// for), verifying through the policy's wallet that it is well-formed and
// combines with the proposal's PSBT before countersigning the approval
// record.
func (e *Engine) ApproveWithSignedPsbt(ctx context.Context, proposalID domain.EventId, signedPsbt wallet.Psbt) (domain.EventId, domain.Approval, error) {
	proposal, err := e.store.GetProposal(proposalID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrProposalNotFound)
	}
	policy, err := e.store.GetPolicy(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, notFound(err, ErrSharedKeyNotFound)
	}
	w, err := e.openWallet(policy)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: open wallet: %w", err)
	}
	if _, err := w.CombinePsbts(ctx, []wallet.Psbt{proposal.Psbt, signedPsbt}); err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: verify signed psbt: %w", err)
	}
	return e.publishApproval(proposal, key, signedPsbt)
}

func (e *Engine) publishApproval(proposal domain.Proposal, key domain.SharedKey, psbt wallet.Psbt) (domain.EventId, domain.Approval, error) {
	createdAt := e.now()
	approval := domain.Approval{
		ProposalID: proposal.ID,
		PolicyID:   proposal.PolicyID,
		Approver:   e.identity.PubKey(),
		Psbt:       psbt,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(approvalValidityDefault),
	}
	event, err := codec.EncodeApproval(e.identity, key.Secret, createdAt.Unix(), approval)
	if err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: encode approval: %w", err)
	}
	approval.ID = event.ID
	if err := e.store.SaveApproval(approval); err != nil {
		return domain.EventId{}, domain.Approval{}, fmt.Errorf("engine: save approval: %w", err)
	}
	if err := e.publishWait(event); err != nil {
		return approval.ID, approval, err
	}
	return approval.ID, approval, nil
}

// GetApprovedProposalsByID implements get_approved_proposals_by_id: the
// compound read pairing a Proposal's policy, itself, and every Approval
// recorded for it.
func (e *Engine) GetApprovedProposalsByID(proposalID domain.EventId) (domain.EventId, domain.Proposal, []domain.Approval, error) {
	proposal, err := e.store.GetProposal(proposalID)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, nil, notFound(err, ErrProposalNotFound)
	}
	approvals, err := e.store.GetApprovedProposalsByID(proposalID)
	if err != nil {
		return domain.EventId{}, domain.Proposal{}, nil, err
	}
	return proposal.PolicyID, proposal, approvals, nil
}

// Finalize implements finalize: requires at least policy.Threshold
// authoritative (non-expired) approvals, combines every approval's PSBT,
// extracts the final transaction, broadcasts it for Spending proposals
// (ProofOfReserve never broadcasts), and replaces the Proposal with a
// CompletedProposal both locally and on the relay.
func (e *Engine) Finalize(ctx context.Context, proposalID domain.EventId) (domain.EventId, domain.CompletedProposal, error) {
	proposal, err := e.store.GetProposal(proposalID)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, notFound(err, ErrProposalNotFound)
	}
	policy, err := e.store.GetPolicy(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(proposal.PolicyID)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, notFound(err, ErrSharedKeyNotFound)
	}
	approvals, err := e.store.GetApprovedProposalsByID(proposalID)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, err
	}

	now := e.now()
	psbts := []wallet.Psbt{proposal.Psbt}
	live := 0
	for _, a := range approvals {
		if a.ExpiresAt.Before(now) {
			continue
		}
		live++
		psbts = append(psbts, a.Psbt)
	}
	// The proposer's own signature (seeded at Spend/ProposeProofOfReserve
	// time) counts toward the threshold alongside every live Approval.
	if live+1 < policy.Threshold {
		return domain.EventId{}, domain.CompletedProposal{}, ErrInsufficientApprovals
	}

	w, err := e.openWallet(policy)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: open wallet: %w", err)
	}
	combined, err := w.CombinePsbts(ctx, psbts)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: combine psbts: %w", err)
	}

	completed := domain.CompletedProposal{
		ProposalID: proposal.ID,
		PolicyID:   proposal.PolicyID,
		Kind:       proposal.Kind,
		Psbt:       combined,
		CreatedAt:  now,
	}

	switch proposal.Kind {
	case domain.ProposalSpending:
		raw, txid, err := w.FinalizeExtractTx(ctx, combined)
		if err != nil {
			return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: finalize tx: %w", err)
		}
		indexer, err := e.indexerOrErr()
		if err != nil {
			return domain.EventId{}, domain.CompletedProposal{}, err
		}
		broadcastTxid, err := indexer.Broadcast(ctx, raw)
		if err != nil {
			return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: broadcast: %w", err)
		}
		completed.RawTx = raw
		completed.Txid = broadcastTxid
		if completed.Txid == "" {
			completed.Txid = txid
		}
	case domain.ProposalProofOfReserve:
		if err := w.VerifyProofOfReserve(ctx, combined, proposal.Message); err != nil {
			return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: verify proof of reserve: %w", err)
		}
	default:
		return domain.EventId{}, domain.CompletedProposal{}, ErrUnexpectedProposal
	}

	event, err := codec.EncodeCompletedProposal(e.identity, key.Secret, now.Unix(), completed)
	if err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: encode completed proposal: %w", err)
	}
	completed.ID = event.ID

	if err := e.store.SaveCompletedProposal(completed); err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: save completed proposal: %w", err)
	}
	// I3: finalize removes the source Proposal immediately and locally; the
	// COMPLETED_PROPOSAL replay on other cosigners' reducers performs the
	// same delete there, tolerating the row already being gone.
	if err := e.store.DeleteProposal(proposal.ID); err != nil {
		return domain.EventId{}, domain.CompletedProposal{}, fmt.Errorf("engine: delete source proposal: %w", err)
	}

	if err := e.publishWait(event); err != nil {
		return completed.ID, completed, err
	}
	return completed.ID, completed, nil
}

// GetProposal implements get_proposal.
func (e *Engine) GetProposal(id domain.EventId) (domain.Proposal, error) {
	p, err := e.store.GetProposal(id)
	if err != nil {
		return domain.Proposal{}, notFound(err, ErrProposalNotFound)
	}
	return p, nil
}

// GetProposals implements get_proposals, optionally scoped to one policy.
func (e *Engine) GetProposals(policyID domain.EventId) ([]domain.Proposal, error) {
	return e.store.GetProposals(policyID)
}

// GetCompletedProposal implements get_completed_proposal.
func (e *Engine) GetCompletedProposal(id domain.EventId) (domain.CompletedProposal, error) {
	c, err := e.store.GetCompletedProposal(id)
	if err != nil {
		return domain.CompletedProposal{}, notFound(err, ErrProposalNotFound)
	}
	return c, nil
}

// GetCompletedProposals implements get_completed_proposals.
func (e *Engine) GetCompletedProposals() ([]domain.CompletedProposal, error) {
	return e.store.GetCompletedProposals()
}

// RevokeApproval implements revoke_approval: a user-scoped deletion signed
// by the caller's own identity, since only the approver who authored an
// Approval is allowed to withdraw it.
func (e *Engine) RevokeApproval(ctx context.Context, approvalID domain.EventId) error {
	event, err := codec.EncodeEventDeletion(e.identity, e.now().Unix(), []domain.EventId{approvalID}, nil)
	if err != nil {
		return fmt.Errorf("engine: encode approval revocation: %w", err)
	}
	if err := e.store.MarkDeleted([]domain.EventId{approvalID}, e.now()); err != nil {
		return err
	}
	return e.publishWait(event)
}

// DeleteProposal implements delete_proposal: policy-scoped, signed under
// K_p and tagged to every cosigner.
func (e *Engine) DeleteProposal(ctx context.Context, proposalID domain.EventId) error {
	proposal, err := e.store.GetProposal(proposalID)
	if err != nil {
		return notFound(err, ErrProposalNotFound)
	}
	return e.deletePolicyScoped(proposal.PolicyID, []domain.EventId{proposalID}, func() error {
		return e.store.DeleteProposal(proposalID)
	})
}

// DeleteCompleted implements delete_completed.
func (e *Engine) DeleteCompleted(ctx context.Context, completedID domain.EventId) error {
	completed, err := e.store.GetCompletedProposal(completedID)
	if err != nil {
		return notFound(err, ErrProposalNotFound)
	}
	return e.deletePolicyScoped(completed.PolicyID, []domain.EventId{completedID}, func() error {
		return e.store.DeleteCompleted(completedID)
	})
}

func (e *Engine) deletePolicyScoped(policyID domain.EventId, ids []domain.EventId, localDelete func() error) error {
	policy, err := e.store.GetPolicy(policyID)
	if err != nil {
		return notFound(err, ErrPolicyNotFound)
	}
	key, err := e.store.GetSharedKey(policyID)
	if err != nil {
		return notFound(err, ErrSharedKeyNotFound)
	}
	skPriv, err := sharedKeyAsPrivate(key)
	if err != nil {
		return err
	}
	event, err := codec.EncodeEventDeletion(skPriv, e.now().Unix(), ids, policy.Cosigners)
	if err != nil {
		return fmt.Errorf("engine: encode deletion: %w", err)
	}
	if err := e.store.MarkDeleted(ids, e.now()); err != nil {
		return err
	}
	if err := localDelete(); err != nil {
		return err
	}
	return e.publishWait(event)
}
