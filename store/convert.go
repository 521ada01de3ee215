package store

import (
	"encoding/json"
	"fmt"

	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/wallet"
)

func policyToRow(p domain.Policy) (PolicyRow, error) {
	cosigners := make([]string, 0, len(p.Cosigners))
	for _, c := range p.Cosigners {
		cosigners = append(cosigners, c.String())
	}
	raw, err := json.Marshal(cosigners)
	if err != nil {
		return PolicyRow{}, err
	}
	return PolicyRow{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Descriptor:  p.Descriptor,
		Network:     string(p.Network),
		Cosigners:   string(raw),
		Threshold:   p.Threshold,
		CreatedAt:   p.CreatedAt,
	}, nil
}

func rowToPolicy(r PolicyRow) (domain.Policy, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.Policy{}, err
	}
	var hexKeys []string
	if r.Cosigners != "" {
		if err := json.Unmarshal([]byte(r.Cosigners), &hexKeys); err != nil {
			return domain.Policy{}, err
		}
	}
	cosigners := make([]domain.PublicKey, 0, len(hexKeys))
	for _, s := range hexKeys {
		pk, err := crypto.PublicKeyFromHex(s)
		if err != nil {
			return domain.Policy{}, err
		}
		cosigners = append(cosigners, pk)
	}
	return domain.Policy{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Descriptor:  r.Descriptor,
		Network:     domain.Network(r.Network),
		Cosigners:   cosigners,
		Threshold:   r.Threshold,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func proposalToRow(p domain.Proposal) ProposalRow {
	return ProposalRow{
		ID:         p.ID.String(),
		PolicyID:   p.PolicyID.String(),
		Kind:       string(p.Kind),
		Descriptor: p.Descriptor,
		Psbt:       p.Psbt,
		Status:     string(p.Status),
		Address:    string(p.Address),
		Amount:     uint64(p.Amount),
		FeeRate:    float64(p.FeeRate),
		Message:    p.Message,
		CreatedBy:  p.CreatedBy.String(),
		CreatedAt:  p.CreatedAt,
	}
}

func rowToProposal(r ProposalRow) (domain.Proposal, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	policyID, err := domain.EventIdFromHex(r.PolicyID)
	if err != nil {
		return domain.Proposal{}, err
	}
	var createdBy domain.PublicKey
	if r.CreatedBy != "" {
		createdBy, err = crypto.PublicKeyFromHex(r.CreatedBy)
		if err != nil {
			return domain.Proposal{}, err
		}
	}
	return domain.Proposal{
		ID:         id,
		PolicyID:   policyID,
		Kind:       domain.ProposalKind(r.Kind),
		Descriptor: r.Descriptor,
		Psbt:       wallet.Psbt(r.Psbt),
		Status:     domain.ProposalStatus(r.Status),
		Address:    wallet.Address(r.Address),
		Amount:     wallet.Sats(r.Amount),
		FeeRate:    wallet.FeeRate(r.FeeRate),
		Message:    r.Message,
		CreatedBy:  createdBy,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func approvalToRow(a domain.Approval) ApprovalRow {
	return ApprovalRow{
		ID:         a.ID.String(),
		ProposalID: a.ProposalID.String(),
		PolicyID:   a.PolicyID.String(),
		Approver:   a.Approver.String(),
		Psbt:       a.Psbt,
		CreatedAt:  a.CreatedAt,
		ExpiresAt:  a.ExpiresAt,
	}
}

func rowToApproval(r ApprovalRow) (domain.Approval, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.Approval{}, err
	}
	proposalID, err := domain.EventIdFromHex(r.ProposalID)
	if err != nil {
		return domain.Approval{}, err
	}
	policyID, err := domain.EventIdFromHex(r.PolicyID)
	if err != nil {
		return domain.Approval{}, err
	}
	approver, err := crypto.PublicKeyFromHex(r.Approver)
	if err != nil {
		return domain.Approval{}, err
	}
	return domain.Approval{
		ID:         id,
		ProposalID: proposalID,
		PolicyID:   policyID,
		Approver:   approver,
		Psbt:       wallet.Psbt(r.Psbt),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}, nil
}

func completedToRow(c domain.CompletedProposal) CompletedProposalRow {
	return CompletedProposalRow{
		ID:         c.ID.String(),
		ProposalID: c.ProposalID.String(),
		PolicyID:   c.PolicyID.String(),
		Kind:       string(c.Kind),
		Psbt:       c.Psbt,
		Txid:       string(c.Txid),
		RawTx:      c.RawTx,
		CreatedAt:  c.CreatedAt,
	}
}

func rowToCompleted(r CompletedProposalRow) (domain.CompletedProposal, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.CompletedProposal{}, err
	}
	proposalID, err := domain.EventIdFromHex(r.ProposalID)
	if err != nil {
		return domain.CompletedProposal{}, err
	}
	policyID, err := domain.EventIdFromHex(r.PolicyID)
	if err != nil {
		return domain.CompletedProposal{}, err
	}
	return domain.CompletedProposal{
		ID:         id,
		ProposalID: proposalID,
		PolicyID:   policyID,
		Kind:       domain.ProposalKind(r.Kind),
		Psbt:       wallet.Psbt(r.Psbt),
		Txid:       wallet.Txid(r.Txid),
		RawTx:      wallet.RawTx(r.RawTx),
		CreatedAt:  r.CreatedAt,
	}, nil
}

func signerToRow(s domain.Signer) SignerRow {
	return SignerRow{
		ID:          s.ID.String(),
		Name:        s.Name,
		Fingerprint: s.Fingerprint,
		Descriptor:  s.Descriptor,
		Owner:       s.Owner.String(),
		CreatedAt:   s.CreatedAt,
	}
}

func rowToSigner(r SignerRow) (domain.Signer, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.Signer{}, err
	}
	owner, err := crypto.PublicKeyFromHex(r.Owner)
	if err != nil {
		return domain.Signer{}, err
	}
	return domain.Signer{
		ID:          id,
		Name:        r.Name,
		Fingerprint: r.Fingerprint,
		Descriptor:  r.Descriptor,
		Owner:       owner,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func sharedSignerToRow(s domain.SharedSigner) SharedSignerRow {
	return SharedSignerRow{
		ID:        s.ID.String(),
		SignerID:  s.SignerID.String(),
		Owner:     s.Owner.String(),
		Recipient: s.Recipient.String(),
		CreatedAt: s.CreatedAt,
	}
}

func rowToSharedSigner(r SharedSignerRow) (domain.SharedSigner, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.SharedSigner{}, err
	}
	signerID, err := domain.EventIdFromHex(r.SignerID)
	if err != nil {
		return domain.SharedSigner{}, err
	}
	owner, err := crypto.PublicKeyFromHex(r.Owner)
	if err != nil {
		return domain.SharedSigner{}, err
	}
	recipient, err := crypto.PublicKeyFromHex(r.Recipient)
	if err != nil {
		return domain.SharedSigner{}, err
	}
	return domain.SharedSigner{
		ID:        id,
		SignerID:  signerID,
		Owner:     owner,
		Recipient: recipient,
		CreatedAt: r.CreatedAt,
	}, nil
}

func notificationToRow(n domain.Notification) NotificationRow {
	return NotificationRow{
		ID:        n.ID.String(),
		Kind:      string(n.Kind),
		RefID:     n.RefID.String(),
		PolicyID:  n.PolicyID.String(),
		Seen:      n.Seen,
		CreatedAt: n.CreatedAt,
	}
}

func rowToNotification(r NotificationRow) (domain.Notification, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	refID, err := domain.EventIdFromHex(r.RefID)
	if err != nil {
		return domain.Notification{}, err
	}
	var policyID domain.EventId
	if r.PolicyID != "" {
		policyID, err = domain.EventIdFromHex(r.PolicyID)
		if err != nil {
			return domain.Notification{}, err
		}
	}
	return domain.Notification{
		ID:        id,
		Kind:      domain.NotificationKind(r.Kind),
		RefID:     refID,
		PolicyID:  policyID,
		Seen:      r.Seen,
		CreatedAt: r.CreatedAt,
	}, nil
}

func pendingEventToRow(p domain.PendingEvent) (PendingEventRow, error) {
	raw, err := json.Marshal(p.Relays)
	if err != nil {
		return PendingEventRow{}, err
	}
	return PendingEventRow{
		ID:          p.ID.String(),
		Kind:        p.Kind,
		Payload:     p.Payload,
		Relays:      string(raw),
		Attempts:    p.Attempts,
		LastAttempt: p.LastAttempt,
		CreatedAt:   p.CreatedAt,
	}, nil
}

func rowToPendingEvent(r PendingEventRow) (domain.PendingEvent, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.PendingEvent{}, err
	}
	var relays []string
	if r.Relays != "" {
		if err := json.Unmarshal([]byte(r.Relays), &relays); err != nil {
			return domain.PendingEvent{}, err
		}
	}
	return domain.PendingEvent{
		ID:          id,
		Kind:        r.Kind,
		Payload:     r.Payload,
		Relays:      relays,
		Attempts:    r.Attempts,
		LastAttempt: r.LastAttempt,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func deferredEventToRow(d domain.DeferredEvent) DeferredEventRow {
	return DeferredEventRow{
		ID:        d.ID.String(),
		Kind:      d.Kind,
		Payload:   d.Payload,
		Attempts:  d.Attempts,
		CreatedAt: d.CreatedAt,
	}
}

func rowToDeferredEvent(r DeferredEventRow) (domain.DeferredEvent, error) {
	id, err := domain.EventIdFromHex(r.ID)
	if err != nil {
		return domain.DeferredEvent{}, err
	}
	return domain.DeferredEvent{
		ID:        id,
		Kind:      r.Kind,
		Payload:   r.Payload,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
	}, nil
}

func connectSessionToRow(s domain.ConnectSession) (ConnectSessionRow, error) {
	raw, err := json.Marshal(s.Permissions)
	if err != nil {
		return ConnectSessionRow{}, err
	}
	return ConnectSessionRow{
		ID:            s.ID,
		AppPublicKey:  s.AppPublicKey.String(),
		RelayURL:      s.RelayURL,
		Permissions:   string(raw),
		PreAuthorized: s.PreAuthorized,
		PreAuthUntil:  s.PreAuthUntil,
		CreatedAt:     s.CreatedAt,
	}, nil
}

func rowToConnectSession(r ConnectSessionRow) (domain.ConnectSession, error) {
	pk, err := crypto.PublicKeyFromHex(r.AppPublicKey)
	if err != nil {
		return domain.ConnectSession{}, err
	}
	var perms []string
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
			return domain.ConnectSession{}, err
		}
	}
	return domain.ConnectSession{
		ID:            r.ID,
		AppPublicKey:  pk,
		RelayURL:      r.RelayURL,
		Permissions:   perms,
		PreAuthorized: r.PreAuthorized,
		PreAuthUntil:  r.PreAuthUntil,
		CreatedAt:     r.CreatedAt,
	}, nil
}

func connectRequestToRow(r domain.ConnectRequest) ConnectRequestRow {
	return ConnectRequestRow{
		ID:        r.ID,
		SessionID: r.SessionID,
		Method:    r.Method,
		Params:    r.Params,
		Status:    string(r.Status),
		Response:  r.Response,
		CreatedAt: r.CreatedAt,
	}
}

func rowToConnectRequest(r ConnectRequestRow) domain.ConnectRequest {
	return domain.ConnectRequest{
		ID:        r.ID,
		SessionID: r.SessionID,
		Method:    r.Method,
		Params:    r.Params,
		Status:    domain.ConnectRequestStatus(r.Status),
		Response:  r.Response,
		CreatedAt: r.CreatedAt,
	}
}

// PolicyBackup is a portable export of a Policy, its shared key, and its
// cosigner set — the unit save_policy's original client round-trips via
// file import/export, gated on the exporter holding K_p.
type PolicyBackup struct {
	Policy domain.Policy `json:"policy"`
	Secret [32]byte      `json:"secret"`
}

// MarshalBackup renders a PolicyBackup as portable JSON.
func MarshalBackup(b PolicyBackup) ([]byte, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("store: marshal policy backup: %w", err)
	}
	return out, nil
}

// UnmarshalBackup parses a PolicyBackup from the bytes MarshalBackup
// produced.
func UnmarshalBackup(raw []byte) (PolicyBackup, error) {
	var b PolicyBackup
	if err := json.Unmarshal(raw, &b); err != nil {
		return PolicyBackup{}, fmt.Errorf("store: unmarshal policy backup: %w", err)
	}
	return b, nil
}
