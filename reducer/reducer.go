// Package reducer implements the Event Reducer (§4.4): the single-threaded
// dispatch table that turns one inbound relay.SignedEvent into Store
// mutations, deferring rather than erroring when a causal dependency (a
// shared key, a parent policy) hasn't arrived yet.
package reducer

import (
	"errors"
	"fmt"
	"time"

	"coinstr/codec"
	"coinstr/connect"
	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/observability"
	"coinstr/relay"
	"coinstr/store"
)

// Outcome reports what the reducer did with one event.
type Outcome int

// Possible outcomes of a Reduce call.
const (
	// Applied means the event was processed and the store updated (or the
	// event was a harmless duplicate).
	Applied Outcome = iota
	// Dropped means the event was discarded permanently: tombstoned,
	// expired, or malformed in a way no later event can fix.
	Dropped
	// Deferred means a causal dependency is missing; the pending-event loop
	// should retry this event later.
	Deferred
)

// Reducer owns the single-threaded conversion from relay events to Store
// state. One instance is driven serially per engine, matching §5's
// requirement that Store updates from the event stream are deterministic.
type Reducer struct {
	store    *store.Store
	identity *crypto.PrivateKey
	connect  *connect.Handler
	now      func() time.Time
	notify   func(domain.Notification)
}

// New returns a Reducer. notify, if non-nil, is called after a Notification
// is persisted — the engine wires it to its broadcast queue (§5's bounded,
// never-blocking notification channel). now defaults to time.Now.
func New(st *store.Store, identity *crypto.PrivateKey, ch *connect.Handler, now func() time.Time, notify func(domain.Notification)) *Reducer {
	if now == nil {
		now = time.Now
	}
	return &Reducer{store: st, identity: identity, connect: ch, now: now, notify: notify}
}

// Reduce applies one event to the store, implementing the dispatch table in
// §4.4. A Deferred outcome is also persisted here, in deferEvent, so that
// every caller gets the retry-until-dependency-resolves behavior for free
// rather than having to remember to handle it themselves.
func (r *Reducer) Reduce(e relay.SignedEvent) (Outcome, error) {
	outcome, err := r.dispatch(e)
	if outcome == Deferred && err == nil {
		if derr := r.deferEvent(e); derr != nil {
			return outcome, fmt.Errorf("reducer: defer event: %w", derr)
		}
	}
	observability.Reducer().Observe(kindName(e.Kind), outcomeName(outcome))
	return outcome, err
}

// deferEvent persists e so the deferred-event loop (§4.6) can retry it every
// 30s once its dependency arrives. Any author's event can land here, not
// just this node's own — unlike the pending-event queue, which only tracks
// outbound publishes awaiting a relay ack.
func (r *Reducer) deferEvent(e relay.SignedEvent) error {
	payload, err := relay.EncodeSignedEvent(e)
	if err != nil {
		return err
	}
	return r.store.SaveDeferredEvent(domain.DeferredEvent{
		ID:        e.ID,
		Kind:      int(e.Kind),
		Payload:   payload,
		CreatedAt: r.now(),
	})
}

func (r *Reducer) dispatch(e relay.SignedEvent) (Outcome, error) {
	deleted, err := r.store.IsDeleted(e.ID)
	if err != nil {
		return Dropped, fmt.Errorf("reducer: tombstone check: %w", err)
	}
	if deleted {
		return Dropped, nil
	}

	switch e.Kind {
	case relay.KindSharedKey:
		return r.reduceSharedKey(e)
	case relay.KindPolicy:
		return r.reducePolicy(e)
	case relay.KindProposal:
		return r.reduceProposal(e)
	case relay.KindApprovedProposal:
		return r.reduceApproval(e)
	case relay.KindCompletedProposal:
		return r.reduceCompleted(e)
	case relay.KindSigners:
		return r.reduceSigner(e)
	case relay.KindSharedSigners:
		return r.reduceSharedSigner(e)
	case relay.KindEventDeletion:
		return r.reduceDeletion(e)
	case relay.KindContactList:
		return r.reduceContactList(e)
	case relay.KindMetadata:
		return r.reduceMetadata(e)
	case relay.KindNostrConnect:
		return r.reduceConnect(e)
	default:
		return Dropped, nil
	}
}

func (r *Reducer) reduceSharedKey(e relay.SignedEvent) (Outcome, error) {
	sk, err := codec.DecodeSharedKey(r.identity, e)
	if err != nil {
		// Not addressed to us, or undecryptable: not an error, just not ours.
		return Dropped, nil
	}
	// SaveSharedKey itself resolves the race (§4.2) if a key is already
	// held for this policy, so every SHARED_KEY seen is handed to it
	// regardless of arrival order.
	if err := r.store.SaveSharedKey(sk, time.Unix(e.CreatedAt, 0)); err != nil {
		return Dropped, fmt.Errorf("reducer: save shared key: %w", err)
	}
	return Applied, nil
}

func (r *Reducer) reducePolicy(e relay.SignedEvent) (Outcome, error) {
	if _, err := r.store.GetPolicy(e.ID); err == nil {
		return Applied, nil
	}
	key, err := r.store.GetSharedKey(e.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	policy, err := codec.DecodePolicy(key.Secret, e)
	if err != nil {
		// Malformed or not actually keyed by this K_p: drop, don't poison
		// the reducer loop over one bad event.
		return Dropped, nil
	}
	if len(policy.Cosigners) == 0 {
		return Dropped, nil
	}
	if err := r.store.SavePolicy(policy); err != nil {
		return Dropped, fmt.Errorf("reducer: save policy: %w", err)
	}
	r.emit(domain.NotificationNewPolicy, e.ID, e.ID)
	return Applied, nil
}

func (r *Reducer) reduceProposal(e relay.SignedEvent) (Outcome, error) {
	if _, err := r.store.GetProposal(e.ID); err == nil {
		return Applied, nil
	}
	policyTags := e.TagValues("e")
	if len(policyTags) == 0 {
		return Dropped, nil
	}
	policyID, err := domain.EventIdFromHex(policyTags[0])
	if err != nil {
		return Dropped, nil
	}
	if _, err := r.store.GetPolicy(policyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	key, err := r.store.GetSharedKey(policyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	proposal, err := codec.DecodeProposal(key.Secret, e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.SaveProposal(proposal); err != nil {
		return Dropped, fmt.Errorf("reducer: save proposal: %w", err)
	}
	r.emit(domain.NotificationNewProposal, e.ID, policyID)
	return Applied, nil
}

func (r *Reducer) reduceApproval(e relay.SignedEvent) (Outcome, error) {
	if expiresAt, ok := codec.ApprovalExpiration(e); ok && expiresAt.Before(r.now()) {
		// I6: an expired APPROVED_PROPOSAL is never persisted, regardless
		// of whether we can even decrypt it.
		return Dropped, nil
	}
	refs := e.TagValues("e")
	if len(refs) < 2 {
		return Dropped, nil
	}
	proposalID, err := domain.EventIdFromHex(refs[0])
	if err != nil {
		return Dropped, nil
	}
	policyID, err := domain.EventIdFromHex(refs[1])
	if err != nil {
		return Dropped, nil
	}
	if _, err := r.store.GetPolicy(policyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	key, err := r.store.GetSharedKey(policyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	existing, err := r.store.GetApprovedProposalsByID(proposalID)
	if err != nil {
		return Dropped, err
	}
	for _, a := range existing {
		if a.ID == e.ID {
			return Applied, nil
		}
	}
	approval, err := codec.DecodeApproval(key.Secret, e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.SaveApproval(approval); err != nil {
		return Dropped, fmt.Errorf("reducer: save approval: %w", err)
	}
	r.emit(domain.NotificationNewApproval, e.ID, policyID)
	return Applied, nil
}

func (r *Reducer) reduceCompleted(e relay.SignedEvent) (Outcome, error) {
	if _, err := r.store.GetCompletedProposal(e.ID); err == nil {
		return Applied, nil
	}
	refs := e.TagValues("e")
	if len(refs) < 2 {
		return Dropped, nil
	}
	proposalID, err := domain.EventIdFromHex(refs[0])
	if err != nil {
		return Dropped, nil
	}
	policyID, err := domain.EventIdFromHex(refs[1])
	if err != nil {
		return Dropped, nil
	}
	key, err := r.store.GetSharedKey(policyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Deferred, nil
		}
		return Dropped, err
	}
	completed, err := codec.DecodeCompletedProposal(key.Secret, e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.SaveCompletedProposal(completed); err != nil {
		return Dropped, fmt.Errorf("reducer: save completed proposal: %w", err)
	}
	// Double-delete tolerance (§9 open question, resolved): finalize()
	// already deletes the source Proposal locally before publishing this
	// event, so a missing row here is expected on the publishing node and
	// DeleteProposal is a no-op in that case. Other cosigners still need
	// this delete to remove the row the reducer created for them.
	if err := r.store.DeleteProposal(proposalID); err != nil {
		return Dropped, fmt.Errorf("reducer: delete source proposal: %w", err)
	}
	if r.now().Sub(completed.CreatedAt) <= 60*time.Second {
		if err := r.store.MarkPolicyResync(policyID); err != nil {
			return Dropped, err
		}
	}
	r.emit(domain.NotificationNewCompletedProposal, e.ID, policyID)
	return Applied, nil
}

func (r *Reducer) reduceSigner(e relay.SignedEvent) (Outcome, error) {
	existing, err := r.store.GetSigners(e.Author)
	if err != nil {
		return Dropped, err
	}
	for _, s := range existing {
		if s.ID == e.ID {
			return Applied, nil
		}
	}
	signer, err := codec.DecodeSigner(r.identity, e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.SaveSigner(signer); err != nil {
		return Dropped, fmt.Errorf("reducer: save signer: %w", err)
	}
	return Applied, nil
}

func (r *Reducer) reduceSharedSigner(e relay.SignedEvent) (Outcome, error) {
	if e.Author == r.identity.PubKey() {
		// Our own outgoing share: nothing further to converge locally, the
		// share_signer operation already recorded it when it published.
		return Applied, nil
	}
	shared, signer, err := codec.DecodeSharedSigner(r.identity, e)
	if err != nil {
		// Not addressed to us.
		return Dropped, nil
	}
	if err := r.store.SaveSharedSigner(shared); err != nil {
		return Dropped, fmt.Errorf("reducer: save shared signer: %w", err)
	}
	if err := r.store.SaveSigner(signer); err != nil {
		return Dropped, fmt.Errorf("reducer: cache shared signer descriptor: %w", err)
	}
	r.emit(domain.NotificationNewSharedSigner, e.ID, domain.ZeroEventId)
	return Applied, nil
}

func (r *Reducer) reduceDeletion(e relay.SignedEvent) (Outcome, error) {
	ids, err := codec.DecodeEventDeletion(e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.MarkDeleted(ids, r.now()); err != nil {
		return Dropped, fmt.Errorf("reducer: mark deleted: %w", err)
	}
	for _, id := range ids {
		r.cascadeDelete(id)
	}
	return Applied, nil
}

// cascadeDelete removes whichever entity id names, trying each table in
// turn since a tombstoned id's kind isn't known without decrypting the
// event it named — a Policy's id cascades its proposals/approvals/
// completions via Store.DeletePolicy, matching §4.4's cascade rule.
func (r *Reducer) cascadeDelete(id domain.EventId) {
	_ = r.store.DeletePolicy(id)
	_ = r.store.DeleteProposal(id)
	_ = r.store.DeleteCompleted(id)
	_ = r.store.DeleteSigner(id)
	_ = r.store.RevokeSharedSigner(id)
}

func (r *Reducer) reduceContactList(e relay.SignedEvent) (Outcome, error) {
	contacts, err := codec.DecodeContactList(e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.ReplaceContacts(contacts); err != nil {
		return Dropped, fmt.Errorf("reducer: replace contacts: %w", err)
	}
	return Applied, nil
}

func (r *Reducer) reduceMetadata(e relay.SignedEvent) (Outcome, error) {
	content, err := codec.DecodeMetadata(e)
	if err != nil {
		return Dropped, nil
	}
	if err := r.store.SaveProfileIfNewer(e.Author, content, unixToTime(e.CreatedAt)); err != nil {
		return Dropped, fmt.Errorf("reducer: save profile: %w", err)
	}
	return Applied, nil
}

func (r *Reducer) reduceConnect(e relay.SignedEvent) (Outcome, error) {
	if r.connect == nil {
		return Dropped, nil
	}
	if err := r.connect.HandleIncoming(e); err != nil {
		// Not addressed to us, or undecryptable.
		return Dropped, nil
	}
	return Applied, nil
}

func (r *Reducer) emit(kind domain.NotificationKind, refID, policyID domain.EventId) {
	n := domain.Notification{ID: refID, Kind: kind, RefID: refID, PolicyID: policyID, CreatedAt: r.now()}
	if err := r.store.SaveNotification(n); err != nil {
		return
	}
	if r.notify != nil {
		r.notify(n)
	}
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func kindName(k relay.Kind) string {
	switch k {
	case relay.KindMetadata:
		return "metadata"
	case relay.KindContactList:
		return "contact_list"
	case relay.KindEventDeletion:
		return "event_deletion"
	case relay.KindPolicy:
		return "policy"
	case relay.KindProposal:
		return "proposal"
	case relay.KindApprovedProposal:
		return "approved_proposal"
	case relay.KindCompletedProposal:
		return "completed_proposal"
	case relay.KindSharedKey:
		return "shared_key"
	case relay.KindSigners:
		return "signers"
	case relay.KindSharedSigners:
		return "shared_signers"
	case relay.KindNostrConnect:
		return "nostr_connect"
	default:
		return "unknown"
	}
}

func outcomeName(o Outcome) string {
	switch o {
	case Applied:
		return "applied"
	case Deferred:
		return "deferred"
	default:
		return "dropped"
	}
}
