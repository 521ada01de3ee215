package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"coinstr/domain"
	"coinstr/sharedkey"
)

// ErrNotFound is returned by single-row lookups that miss.
var ErrNotFound = errors.New("store: not found")

// Store is the Local Store: a thin, typed layer over a *gorm.DB. It never
// talks to a relay or the wallet itself — it is where the reducer persists
// what it has converged on and where the engine reads back what it needs
// to answer a Coordination API call.
type Store struct {
	db *gorm.DB
}

// New wraps an already-opened, already-migrated *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// IsDeleted reports whether id has been tombstoned by an EventDeletion.
func (s *Store) IsDeleted(id domain.EventId) (bool, error) {
	var row DeletedEventRow
	err := s.db.First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkDeleted tombstones every id, idempotently.
func (s *Store) MarkDeleted(ids []domain.EventId, at time.Time) error {
	for _, id := range ids {
		row := DeletedEventRow{ID: id.String(), DeletedAt: at}
		if err := s.db.Clauses(onConflictIgnore("id")).Create(&row).Error; err != nil {
			return fmt.Errorf("store: mark deleted %s: %w", id, err)
		}
	}
	return nil
}

// SavePolicy inserts or replaces a Policy.
func (s *Store) SavePolicy(p domain.Policy) error {
	row, err := policyToRow(p)
	if err != nil {
		return fmt.Errorf("store: encode policy: %w", err)
	}
	return s.db.Save(&row).Error
}

// GetPolicy returns a Policy by id.
func (s *Store) GetPolicy(id domain.EventId) (domain.Policy, error) {
	var row PolicyRow
	if err := s.db.First(&row, "id = ?", id.String()).Error; err != nil {
		return domain.Policy{}, notFoundOr(err)
	}
	return rowToPolicy(row)
}

// GetPolicies returns every saved Policy.
func (s *Store) GetPolicies() ([]domain.Policy, error) {
	var rows []PolicyRow
	if err := s.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Policy, 0, len(rows))
	for _, r := range rows {
		p, err := rowToPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DeletePolicy removes a Policy and everything hanging off it: its shared
// key, proposals, approvals, and completions. Called after the policy id
// has already been tombstoned by the caller.
func (s *Store) DeletePolicy(id domain.EventId) error {
	pid := id.String()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PolicyRow{}, "id = ?", pid).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SharedKeyRow{}, "policy_id = ?", pid).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ProposalRow{}, "policy_id = ?", pid).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ApprovalRow{}, "policy_id = ?", pid).Error; err != nil {
			return err
		}
		return tx.Delete(&CompletedProposalRow{}, "policy_id = ?", pid).Error
	})
}

// SaveSharedKey inserts a policy's K_p, or, if one is already held, resolves
// the race between the two with sharedkey.Resolve and keeps the winner.
// This makes convergence independent of arrival order: two cosigners who
// each publish their own K_p for the same policy end up holding whichever
// one Resolve picks, regardless of which one this node saw first.
func (s *Store) SaveSharedKey(k domain.SharedKey, createdAt time.Time) error {
	var existing SharedKeyRow
	err := s.db.First(&existing, "policy_id = ?", k.PolicyID.String()).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := SharedKeyRow{PolicyID: k.PolicyID.String(), Secret: append([]byte(nil), k.Secret[:]...), CreatedAt: createdAt}
		return s.db.Create(&row).Error
	case err != nil:
		return err
	}

	var existingSecret [32]byte
	copy(existingSecret[:], existing.Secret)
	winner, rerr := sharedkey.Resolve([]sharedkey.Candidate{
		{Key: domain.SharedKey{PolicyID: k.PolicyID, Secret: existingSecret}, CreatedAt: existing.CreatedAt},
		{Key: k, CreatedAt: createdAt},
	})
	if rerr != nil {
		return rerr
	}
	if winner.Secret == existingSecret {
		return nil
	}
	row := SharedKeyRow{PolicyID: k.PolicyID.String(), Secret: append([]byte(nil), winner.Secret[:]...), CreatedAt: createdAt}
	return s.db.Save(&row).Error
}

// GetSharedKey returns the locally-held K_p for a policy.
func (s *Store) GetSharedKey(policyID domain.EventId) (domain.SharedKey, error) {
	var row SharedKeyRow
	if err := s.db.First(&row, "policy_id = ?", policyID.String()).Error; err != nil {
		return domain.SharedKey{}, notFoundOr(err)
	}
	var sk domain.SharedKey
	sk.PolicyID = policyID
	copy(sk.Secret[:], row.Secret)
	return sk, nil
}

// HasSharedKey reports whether this node holds K_p for policyID, the gate
// PolicyBackup export and several Coordination API writes require.
func (s *Store) HasSharedKey(policyID domain.EventId) (bool, error) {
	var count int64
	if err := s.db.Model(&SharedKeyRow{}).Where("policy_id = ?", policyID.String()).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveProposal inserts or replaces a Proposal.
func (s *Store) SaveProposal(p domain.Proposal) error {
	row := proposalToRow(p)
	return s.db.Save(&row).Error
}

// GetProposal returns a Proposal by id.
func (s *Store) GetProposal(id domain.EventId) (domain.Proposal, error) {
	var row ProposalRow
	if err := s.db.First(&row, "id = ?", id.String()).Error; err != nil {
		return domain.Proposal{}, notFoundOr(err)
	}
	return rowToProposal(row)
}

// GetProposals returns every saved Proposal, optionally narrowed to one
// policy when policyID is non-zero.
func (s *Store) GetProposals(policyID domain.EventId) ([]domain.Proposal, error) {
	q := s.db.Model(&ProposalRow{}).Order("created_at desc")
	if !policyID.IsZero() {
		q = q.Where("policy_id = ?", policyID.String())
	}
	var rows []ProposalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Proposal, 0, len(rows))
	for _, r := range rows {
		p, err := rowToProposal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SetProposalStatus updates a Proposal's lifecycle status in place.
func (s *Store) SetProposalStatus(id domain.EventId, status domain.ProposalStatus) error {
	return s.db.Model(&ProposalRow{}).Where("id = ?", id.String()).Update("status", string(status)).Error
}

// DeleteProposal removes a Proposal and its approvals. A deletion path
// tombstones the id before calling it; finalize and the reducer's
// COMPLETED_PROPOSAL path call it without a tombstone.
func (s *Store) DeleteProposal(id domain.EventId) error {
	pid := id.String()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ProposalRow{}, "id = ?", pid).Error; err != nil {
			return err
		}
		return tx.Delete(&ApprovalRow{}, "proposal_id = ?", pid).Error
	})
}

// SaveApproval inserts or replaces an Approval.
func (s *Store) SaveApproval(a domain.Approval) error {
	row := approvalToRow(a)
	return s.db.Save(&row).Error
}

// GetApprovedProposalsByID returns every Approval recorded for proposalID,
// the compound query the original client's get_approved_proposals_by_id
// exposes: approvals grouped by the proposal they support.
func (s *Store) GetApprovedProposalsByID(proposalID domain.EventId) ([]domain.Approval, error) {
	var rows []ApprovalRow
	if err := s.db.Where("proposal_id = ?", proposalID.String()).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Approval, 0, len(rows))
	for _, r := range rows {
		a, err := rowToApproval(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SaveCompletedProposal inserts or replaces a CompletedProposal.
func (s *Store) SaveCompletedProposal(c domain.CompletedProposal) error {
	row := completedToRow(c)
	return s.db.Save(&row).Error
}

// GetCompletedProposal returns a CompletedProposal by id.
func (s *Store) GetCompletedProposal(id domain.EventId) (domain.CompletedProposal, error) {
	var row CompletedProposalRow
	if err := s.db.First(&row, "id = ?", id.String()).Error; err != nil {
		return domain.CompletedProposal{}, notFoundOr(err)
	}
	return rowToCompleted(row)
}

// GetCompletedProposals returns every saved CompletedProposal.
func (s *Store) GetCompletedProposals() ([]domain.CompletedProposal, error) {
	var rows []CompletedProposalRow
	if err := s.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CompletedProposal, 0, len(rows))
	for _, r := range rows {
		c, err := rowToCompleted(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCompleted removes a CompletedProposal, after its id has already
// been tombstoned by the caller.
func (s *Store) DeleteCompleted(id domain.EventId) error {
	return s.db.Delete(&CompletedProposalRow{}, "id = ?", id.String()).Error
}

// SaveSigner inserts or replaces a Signer. Enforces that the same
// descriptor is never saved twice for the same owner (I7): a duplicate
// Save is idempotent rather than an error, matching upsert-by-unique-index
// semantics.
func (s *Store) SaveSigner(sg domain.Signer) error {
	row := signerToRow(sg)
	return s.db.Clauses(onConflictUpdate("descriptor", "owner")).Create(&row).Error
}

// GetSigners returns every Signer owned by owner.
func (s *Store) GetSigners(owner domain.PublicKey) ([]domain.Signer, error) {
	var rows []SignerRow
	if err := s.db.Where("owner = ?", owner.String()).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Signer, 0, len(rows))
	for _, r := range rows {
		sg, err := rowToSigner(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, nil
}

// DeleteSigner removes a Signer, after its id has already been tombstoned
// by the caller.
func (s *Store) DeleteSigner(id domain.EventId) error {
	return s.db.Delete(&SignerRow{}, "id = ?", id.String()).Error
}

// SaveSharedSigner inserts or replaces a SharedSigner.
func (s *Store) SaveSharedSigner(ss domain.SharedSigner) error {
	row := sharedSignerToRow(ss)
	return s.db.Save(&row).Error
}

// GetMySharedSigners returns the SharedSigner rows this node (identified by
// recipient) has received from owner — the original client's "my shared
// signers" view, keyed by (signer, recipient) per spec.md §4.1.
func (s *Store) GetMySharedSigners(recipient domain.PublicKey) ([]domain.SharedSigner, error) {
	var rows []SharedSignerRow
	if err := s.db.Where("recipient = ?", recipient.String()).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SharedSigner, 0, len(rows))
	for _, r := range rows {
		ss, err := rowToSharedSigner(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, nil
}

// RevokeSharedSigner removes a SharedSigner, after its id has already been
// tombstoned by the caller.
func (s *Store) RevokeSharedSigner(id domain.EventId) error {
	return s.db.Delete(&SharedSignerRow{}, "id = ?", id.String()).Error
}

// SaveNotification inserts a Notification.
func (s *Store) SaveNotification(n domain.Notification) error {
	row := notificationToRow(n)
	return s.db.Clauses(onConflictIgnore("id")).Create(&row).Error
}

// GetNotifications returns every Notification, most recent first.
func (s *Store) GetNotifications() ([]domain.Notification, error) {
	var rows []NotificationRow
	if err := s.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := rowToNotification(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationSeen flips a Notification's Seen flag.
func (s *Store) MarkNotificationSeen(id domain.EventId) error {
	return s.db.Model(&NotificationRow{}).Where("id = ?", id.String()).Update("seen", true).Error
}

// SavePendingEvent inserts or replaces a PendingEvent awaiting relay
// acknowledgement.
func (s *Store) SavePendingEvent(p domain.PendingEvent) error {
	row, err := pendingEventToRow(p)
	if err != nil {
		return err
	}
	return s.db.Save(&row).Error
}

// GetPendingEvents returns every PendingEvent still awaiting at least one
// relay's acknowledgement — the retry loop's work queue.
func (s *Store) GetPendingEvents() ([]domain.PendingEvent, error) {
	var rows []PendingEventRow
	if err := s.db.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PendingEvent, 0, len(rows))
	for _, r := range rows {
		p, err := rowToPendingEvent(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DeletePendingEvent removes a PendingEvent once every relay has
// acknowledged it.
func (s *Store) DeletePendingEvent(id domain.EventId) error {
	return s.db.Delete(&PendingEventRow{}, "id = ?", id.String()).Error
}

// SaveDeferredEvent inserts or replaces a DeferredEvent held on a missing
// causal dependency. CreatedAt is preserved and Attempts incremented across
// retries of the same id, so a re-save only ages the row's attempt count
// rather than resetting it.
func (s *Store) SaveDeferredEvent(d domain.DeferredEvent) error {
	var existing DeferredEventRow
	err := s.db.First(&existing, "id = ?", d.ID.String()).Error
	switch {
	case err == nil:
		d.CreatedAt = existing.CreatedAt
		d.Attempts = existing.Attempts + 1
	case errors.Is(err, gorm.ErrRecordNotFound):
		d.Attempts = 1
	default:
		return err
	}
	row := deferredEventToRow(d)
	return s.db.Save(&row).Error
}

// GetDeferredEvents returns every DeferredEvent still blocked on a causal
// dependency — the deferred-event loop's work queue.
func (s *Store) GetDeferredEvents() ([]domain.DeferredEvent, error) {
	var rows []DeferredEventRow
	if err := s.db.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DeferredEvent, 0, len(rows))
	for _, r := range rows {
		d, err := rowToDeferredEvent(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DeleteDeferredEvent removes a DeferredEvent once its retry either applies,
// drops permanently, or is superseded by a tombstone.
func (s *Store) DeleteDeferredEvent(id domain.EventId) error {
	return s.db.Delete(&DeferredEventRow{}, "id = ?", id.String()).Error
}

// SaveConnectSession inserts or replaces a ConnectSession.
func (s *Store) SaveConnectSession(cs domain.ConnectSession) error {
	row, err := connectSessionToRow(cs)
	if err != nil {
		return err
	}
	return s.db.Save(&row).Error
}

// GetConnectSession returns a ConnectSession by id.
func (s *Store) GetConnectSession(id string) (domain.ConnectSession, error) {
	var row ConnectSessionRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		return domain.ConnectSession{}, notFoundOr(err)
	}
	return rowToConnectSession(row)
}

// GetConnectSessions returns every saved ConnectSession.
func (s *Store) GetConnectSessions() ([]domain.ConnectSession, error) {
	var rows []ConnectSessionRow
	if err := s.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ConnectSession, 0, len(rows))
	for _, r := range rows {
		cs, err := rowToConnectSession(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, nil
}

// DeleteConnectSession removes a ConnectSession and its pending requests.
func (s *Store) DeleteConnectSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ConnectSessionRow{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ConnectRequestRow{}, "session_id = ?", id).Error
	})
}

// SaveConnectRequest inserts or replaces a ConnectRequest.
func (s *Store) SaveConnectRequest(cr domain.ConnectRequest) error {
	row := connectRequestToRow(cr)
	return s.db.Save(&row).Error
}

// GetConnectRequests returns every ConnectRequest queued for sessionID.
func (s *Store) GetConnectRequests(sessionID string) ([]domain.ConnectRequest, error) {
	var rows []ConnectRequestRow
	if err := s.db.Where("session_id = ?", sessionID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ConnectRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToConnectRequest(r))
	}
	return out, nil
}

// AddRelay records url as a configured relay by giving it a zero sync
// cursor if it doesn't already have one.
func (s *Store) AddRelay(url string) error {
	row := RelaySyncRow{URL: url, LastSyncAt: 0}
	return s.db.Clauses(onConflictIgnore("url")).Create(&row).Error
}

// RemoveRelay forgets a relay's sync cursor.
func (s *Store) RemoveRelay(url string) error {
	return s.db.Delete(&RelaySyncRow{}, "url = ?", url).Error
}

// GetRelays returns every configured relay URL.
func (s *Store) GetRelays() ([]string, error) {
	var rows []RelaySyncRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.URL)
	}
	return out, nil
}

// GetRelaySync returns the last-synced timestamp recorded for url.
func (s *Store) GetRelaySync(url string) (int64, error) {
	var row RelaySyncRow
	if err := s.db.First(&row, "url = ?", url).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.LastSyncAt, nil
}

// SetRelaySync records the last-synced timestamp for url.
func (s *Store) SetRelaySync(url string, at int64) error {
	row := RelaySyncRow{URL: url, LastSyncAt: at}
	return s.db.Save(&row).Error
}

// SetConfigCell writes a small named setting, used for the Electrum
// endpoint and similar single-value cells the Coordination API exposes
// read/write accessors for.
func (s *Store) SetConfigCell(key, value string) error {
	row := ConfigCellRow{Key: key, Value: value}
	return s.db.Save(&row).Error
}

// GetConfigCell reads a named setting, returning "" if unset.
func (s *Store) GetConfigCell(key string) (string, error) {
	var row ConfigCellRow
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

// SetContact upserts a petname for a public key.
func (s *Store) SetContact(pub domain.PublicKey, petname string) error {
	row := ContactRow{PublicKey: pub.String(), Petname: petname}
	return s.db.Save(&row).Error
}

// GetContacts returns every saved contact.
func (s *Store) GetContacts() (map[string]string, error) {
	var rows []ContactRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.PublicKey] = r.Petname
	}
	return out, nil
}

// ReplaceContacts swaps the entire contact set for a freshly-received
// ContactList event, the "replace user's contact set" behavior §4.4
// specifies rather than a per-contact merge.
func (s *Store) ReplaceContacts(contacts map[string]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ContactRow{}).Error; err != nil {
			return err
		}
		for pub, petname := range contacts {
			row := ContactRow{PublicKey: pub, Petname: petname}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveProfileIfNewer upserts a Metadata event's content for author, but only
// if createdAt is newer than whatever is already stored — Metadata is the
// one domain object the reducer dedups by recency instead of by id.
func (s *Store) SaveProfileIfNewer(author domain.PublicKey, content []byte, createdAt time.Time) error {
	var existing ProfileRow
	err := s.db.First(&existing, "public_key = ?", author.String()).Error
	if err == nil && !createdAt.After(existing.CreatedAt) {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	row := ProfileRow{PublicKey: author.String(), Content: content, CreatedAt: createdAt}
	return s.db.Save(&row).Error
}

// GetProfile returns the cached Metadata content for author, and whether a
// profile has been seen at all.
func (s *Store) GetProfile(author domain.PublicKey) ([]byte, bool, error) {
	var row ProfileRow
	if err := s.db.First(&row, "public_key = ?", author.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return row.Content, true, nil
}

// resyncKey namespaces a policy's chain-resync flag inside ConfigCellRow
// rather than a dedicated table: it is a single boolean the chain-sync loop
// polls and clears, not a queryable entity of its own.
func resyncKey(policyID domain.EventId) string {
	return "resync:" + policyID.String()
}

// MarkPolicyResync flags policyID for the chain-sync loop to prioritize on
// its next pass, set when a COMPLETED_PROPOSAL for it lands within the last
// 60 seconds.
func (s *Store) MarkPolicyResync(policyID domain.EventId) error {
	return s.SetConfigCell(resyncKey(policyID), "1")
}

// TakeResyncFlags returns every policy id currently flagged for resync and
// clears them, the chain-sync loop's poll-and-drain step.
func (s *Store) TakeResyncFlags() ([]domain.EventId, error) {
	var rows []ConfigCellRow
	if err := s.db.Where("key LIKE ?", "resync:%").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.EventId, 0, len(rows))
	for _, r := range rows {
		id, err := domain.EventIdFromHex(r.Key[len("resync:"):])
		if err != nil {
			continue
		}
		out = append(out, id)
		if err := s.db.Delete(&ConfigCellRow{}, "key = ?", r.Key).Error; err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExportPolicyBackup bundles a Policy with its locally-held K_p, gated on
// this node actually holding the key (the original client's export
// invariant — you cannot export what you can't decrypt).
func (s *Store) ExportPolicyBackup(id domain.EventId) (PolicyBackup, error) {
	has, err := s.HasSharedKey(id)
	if err != nil {
		return PolicyBackup{}, err
	}
	if !has {
		return PolicyBackup{}, fmt.Errorf("store: cannot export policy %s without its shared key", id)
	}
	policy, err := s.GetPolicy(id)
	if err != nil {
		return PolicyBackup{}, err
	}
	key, err := s.GetSharedKey(id)
	if err != nil {
		return PolicyBackup{}, err
	}
	return PolicyBackup{Policy: policy, Secret: key.Secret}, nil
}

// ImportPolicyBackup restores a Policy and its shared key from a backup,
// transactionally.
func (s *Store) ImportPolicyBackup(b PolicyBackup) error {
	row, err := policyToRow(b.Policy)
	if err != nil {
		return err
	}
	keyRow := SharedKeyRow{PolicyID: b.Policy.ID.String(), Secret: append([]byte(nil), b.Secret[:]...)}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		return tx.Save(&keyRow).Error
	})
}

// SetChainState caches the indexer's last-seen tip height and confirmation
// depth.
func (s *Store) SetChainState(height, confirmations int64, at time.Time) error {
	row := ChainStateRow{ID: 1, Height: height, Confirmations: confirmations, UpdatedAt: at}
	return s.db.Save(&row).Error
}

// GetChainState returns the cached tip height and confirmation depth.
func (s *Store) GetChainState() (height, confirmations int64, err error) {
	var row ChainStateRow
	if err := s.db.First(&row, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return row.Height, row.Confirmations, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
