package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/relay"
	"coinstr/wallet"
)

type proposalPayload struct {
	Kind       string `json:"kind"`
	Descriptor string `json:"descriptor"`
	Psbt       []byte `json:"psbt"`
	Address    string `json:"address,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	FeeRate    float64 `json:"fee_rate,omitempty"`
	Message    string `json:"message,omitempty"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  int64  `json:"created_at"`
}

// EncodeProposal builds a signed, K_p-encrypted Proposal event tagged with
// the policy it belongs to.
func EncodeProposal(author *crypto.PrivateKey, key [32]byte, createdAt int64, p domain.Proposal) (relay.SignedEvent, error) {
	payload := proposalPayload{
		Kind:       string(p.Kind),
		Descriptor: p.Descriptor,
		Psbt:       p.Psbt,
		Address:    string(p.Address),
		Amount:     uint64(p.Amount),
		FeeRate:    float64(p.FeeRate),
		Message:    p.Message,
		CreatedBy:  author.PubKey().String(),
		CreatedAt:  createdAt,
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal proposal: %w", err)
	}
	content, err := EncryptWithKey(key, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{{Key: "e", Values: []string{p.PolicyID.String()}}}
	return SignEvent(author, createdAt, relay.KindProposal, tags, content)
}

// DecodeProposal verifies e, decrypts it under key, and recovers the
// Proposal it carries. The policy it belongs to is read from its "e" tag.
func DecodeProposal(key [32]byte, e relay.SignedEvent) (domain.Proposal, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.Proposal{}, err
	}
	plain, err := DecryptWithKey(key, e.Content)
	if err != nil {
		return domain.Proposal{}, err
	}
	var payload proposalPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.Proposal{}, fmt.Errorf("codec: unmarshal proposal: %w", err)
	}
	policyTags := e.TagValues("e")
	if len(policyTags) == 0 {
		return domain.Proposal{}, fmt.Errorf("codec: proposal event missing policy tag")
	}
	policyID, err := domain.EventIdFromHex(policyTags[0])
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("codec: decode policy id: %w", err)
	}
	createdBy, err := crypto.PublicKeyFromHex(payload.CreatedBy)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("codec: decode proposal author: %w", err)
	}
	return domain.Proposal{
		ID:         e.ID,
		PolicyID:   policyID,
		Kind:       domain.ProposalKind(payload.Kind),
		Descriptor: payload.Descriptor,
		Psbt:       wallet.Psbt(payload.Psbt),
		Status:     domain.ProposalPending,
		Address:    wallet.Address(payload.Address),
		Amount:     wallet.Sats(payload.Amount),
		FeeRate:    wallet.FeeRate(payload.FeeRate),
		Message:    payload.Message,
		CreatedBy:  createdBy,
		CreatedAt:  unixToTime(payload.CreatedAt),
	}, nil
}

type approvalPayload struct {
	Psbt      []byte `json:"psbt"`
	CreatedAt int64  `json:"created_at"`
}

// EncodeApproval builds a signed, K_p-encrypted Approval event tagged with
// both the proposal and the policy it belongs to, plus an "expiration" tag
// at a.ExpiresAt so the reducer can drop it once stale (I6) without
// decrypting it first.
func EncodeApproval(author *crypto.PrivateKey, key [32]byte, createdAt int64, a domain.Approval) (relay.SignedEvent, error) {
	payload := approvalPayload{Psbt: a.Psbt, CreatedAt: createdAt}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal approval: %w", err)
	}
	content, err := EncryptWithKey(key, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{
		{Key: "e", Values: []string{a.ProposalID.String()}},
		{Key: "e", Values: []string{a.PolicyID.String()}},
		{Key: "expiration", Values: []string{fmt.Sprintf("%d", a.ExpiresAt.Unix())}},
	}
	return SignEvent(author, createdAt, relay.KindApprovedProposal, tags, content)
}

// ApprovalExpiration reads the "expiration" tag off an APPROVED_PROPOSAL
// event without decrypting it, so the reducer can enforce I6 (drop expired
// approvals) before spending a decryption on a dead event.
func ApprovalExpiration(e relay.SignedEvent) (time.Time, bool) {
	values := e.TagValues("expiration")
	if len(values) == 0 {
		return time.Time{}, false
	}
	var sec int64
	if _, err := fmt.Sscanf(values[0], "%d", &sec); err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

// DecodeApproval verifies e, decrypts it under key, and recovers the
// Approval it carries.
func DecodeApproval(key [32]byte, e relay.SignedEvent) (domain.Approval, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.Approval{}, err
	}
	plain, err := DecryptWithKey(key, e.Content)
	if err != nil {
		return domain.Approval{}, err
	}
	var payload approvalPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.Approval{}, fmt.Errorf("codec: unmarshal approval: %w", err)
	}
	refs := e.TagValues("e")
	if len(refs) < 2 {
		return domain.Approval{}, fmt.Errorf("codec: approval event missing proposal/policy tags")
	}
	proposalID, err := domain.EventIdFromHex(refs[0])
	if err != nil {
		return domain.Approval{}, fmt.Errorf("codec: decode proposal id: %w", err)
	}
	policyID, err := domain.EventIdFromHex(refs[1])
	if err != nil {
		return domain.Approval{}, fmt.Errorf("codec: decode policy id: %w", err)
	}
	expiresAt, _ := ApprovalExpiration(e)
	return domain.Approval{
		ID:         e.ID,
		ProposalID: proposalID,
		PolicyID:   policyID,
		Approver:   e.Author,
		Psbt:       wallet.Psbt(payload.Psbt),
		CreatedAt:  unixToTime(payload.CreatedAt),
		ExpiresAt:  expiresAt,
	}, nil
}

type completedProposalPayload struct {
	Kind      string `json:"kind"`
	Psbt      []byte `json:"psbt"`
	Txid      string `json:"txid,omitempty"`
	RawTx     []byte `json:"raw_tx,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// EncodeCompletedProposal builds a signed, K_p-encrypted CompletedProposal
// event tagged with the proposal and policy it closes out.
func EncodeCompletedProposal(author *crypto.PrivateKey, key [32]byte, createdAt int64, c domain.CompletedProposal) (relay.SignedEvent, error) {
	payload := completedProposalPayload{
		Kind:      string(c.Kind),
		Psbt:      c.Psbt,
		Txid:      string(c.Txid),
		RawTx:     c.RawTx,
		CreatedAt: createdAt,
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return relay.SignedEvent{}, fmt.Errorf("codec: marshal completed proposal: %w", err)
	}
	content, err := EncryptWithKey(key, plain)
	if err != nil {
		return relay.SignedEvent{}, err
	}
	tags := []relay.Tag{
		{Key: "e", Values: []string{c.ProposalID.String()}},
		{Key: "e", Values: []string{c.PolicyID.String()}},
	}
	return SignEvent(author, createdAt, relay.KindCompletedProposal, tags, content)
}

// DecodeCompletedProposal verifies e, decrypts it under key, and recovers
// the CompletedProposal it carries.
func DecodeCompletedProposal(key [32]byte, e relay.SignedEvent) (domain.CompletedProposal, error) {
	if err := VerifyEvent(e); err != nil {
		return domain.CompletedProposal{}, err
	}
	plain, err := DecryptWithKey(key, e.Content)
	if err != nil {
		return domain.CompletedProposal{}, err
	}
	var payload completedProposalPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return domain.CompletedProposal{}, fmt.Errorf("codec: unmarshal completed proposal: %w", err)
	}
	refs := e.TagValues("e")
	if len(refs) < 2 {
		return domain.CompletedProposal{}, fmt.Errorf("codec: completed proposal event missing proposal/policy tags")
	}
	proposalID, err := domain.EventIdFromHex(refs[0])
	if err != nil {
		return domain.CompletedProposal{}, fmt.Errorf("codec: decode proposal id: %w", err)
	}
	policyID, err := domain.EventIdFromHex(refs[1])
	if err != nil {
		return domain.CompletedProposal{}, fmt.Errorf("codec: decode policy id: %w", err)
	}
	return domain.CompletedProposal{
		ID:         e.ID,
		ProposalID: proposalID,
		PolicyID:   policyID,
		Kind:       domain.ProposalKind(payload.Kind),
		Psbt:       wallet.Psbt(payload.Psbt),
		Txid:       wallet.Txid(payload.Txid),
		RawTx:      wallet.RawTx(payload.RawTx),
		CreatedAt:  unixToTime(payload.CreatedAt),
	}, nil
}
