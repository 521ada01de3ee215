package domain

import (
	"time"

	"coinstr/wallet"
)

// ProposalKind distinguishes the two proposal variants this engine
// coordinates approvals for. Modeled as a tagged struct rather than an
// interface hierarchy: both variants share the PSBT-aggregation lifecycle in
// §4.5, and a flat Kind field makes the dispatch in the reducer and engine
// an exhaustive switch instead of a type assertion.
type ProposalKind string

// Known proposal kinds.
const (
	ProposalSpending       ProposalKind = "spending"
	ProposalProofOfReserve ProposalKind = "proof_of_reserve"
)

// ProposalStatus tracks a proposal's lifecycle from creation to completion
// or revocation.
type ProposalStatus string

// Known proposal statuses.
const (
	ProposalPending   ProposalStatus = "pending"
	ProposalCompleted ProposalStatus = "completed"
)

// Policy is a descriptor plus the metadata needed to coordinate the
// cosigners who share it: its name, the network it's valid on, and the set
// of public keys authorized to propose and approve spends under it.
type Policy struct {
	ID          EventId
	Name        string
	Description string
	Descriptor  string
	Network     Network
	Cosigners   []PublicKey
	// Threshold is the number of signatures finalize requires. The
	// descriptor's script encodes the real threshold; since interpreting
	// miniscript is out of scope, Threshold is derived heuristically (see
	// wallet.ExtractThreshold) at save_policy time and cached here.
	Threshold int
	CreatedAt time.Time
}

// DetailedPolicy bundles a Policy with the on-chain state the original
// client.rs surfaces alongside it: the wallet's current balance and the
// chain indexer's last-seen sync height, so a caller doesn't need a second
// round trip through the wallet/chain boundary to render a policy summary.
type DetailedPolicy struct {
	Policy         Policy
	Balance        wallet.Balance
	LastSyncHeight int64
}

// DeferredEvent is a raw inbound event the reducer saw but couldn't yet
// apply because a causal dependency (a shared key or a parent policy/
// proposal) hadn't arrived (§4.4's Deferred outcome). It is retried against
// the reducer every 30s until the dependency resolves, is tombstoned, or is
// otherwise permanently droppable — the inbound counterpart to PendingEvent,
// which tracks this node's own outbound publishes instead.
type DeferredEvent struct {
	ID        EventId
	Kind      int
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// SharedKey is the per-policy symmetric secret K_p: a keypair generated by
// whichever cosigner first creates the policy, then encrypted once per
// recipient and published so every cosigner who holds it can decrypt the
// policy's proposals and approvals. Holding K_p is what distinguishes an
// active cosigner from a mere observer of the relay stream.
type SharedKey struct {
	PolicyID EventId
	Secret   [32]byte
}

// Proposal is a proposed spend or proof-of-reserve awaiting enough
// approvals to finalize. Spending proposals carry a destination, amount,
// and fee rate; proof-of-reserve proposals carry the message being proven.
// Only the fields relevant to Kind are populated.
type Proposal struct {
	ID         EventId
	PolicyID   EventId
	Kind       ProposalKind
	Descriptor string
	Psbt       wallet.Psbt
	Status     ProposalStatus

	// Spending fields.
	Address wallet.Address
	Amount  wallet.Sats
	FeeRate wallet.FeeRate

	// ProofOfReserve fields.
	Message string

	CreatedBy PublicKey
	CreatedAt time.Time
}

// Approval is one cosigner's partially-signed PSBT contribution toward a
// Proposal. The reducer aggregates approvals by ProposalID; the engine
// combines them via wallet.Wallet.CombinePsbts once enough accumulate.
type Approval struct {
	ID         EventId
	ProposalID EventId
	PolicyID   EventId
	Approver   PublicKey
	Psbt       wallet.Psbt
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// CompletedProposal is the terminal state of a Proposal once its combined
// PSBT has been finalized and (for spends) broadcast.
type CompletedProposal struct {
	ID         EventId
	ProposalID EventId
	PolicyID   EventId
	Kind       ProposalKind
	Psbt       wallet.Psbt
	Txid       wallet.Txid
	RawTx      wallet.RawTx
	CreatedAt  time.Time
}

// Signer is a named cosigner descriptor fragment (an xpub plus its
// fingerprint and derivation path) that a user can share with contacts so
// they can be added to a Policy without exchanging the raw key material out
// of band.
type Signer struct {
	ID          EventId
	Name        string
	Fingerprint string
	Descriptor  string
	Owner       PublicKey
	CreatedAt   time.Time
}

// SharedSigner is a Signer published encrypted for one specific recipient —
// the unit §4.5's share_signer/revoke_shared_signer operations act on.
type SharedSigner struct {
	ID        EventId
	SignerID  EventId
	Owner     PublicKey
	Recipient PublicKey
	CreatedAt time.Time
}

// ConnectSession is one NostrConnect-style remote-signing pairing: a
// third-party application identified by AppPublicKey, talking to this
// engine's signer over RelayURL, optionally pre-authorized until
// PreAuthUntil, during which every request is answered without a
// per-request prompt.
type ConnectSession struct {
	ID            string
	AppPublicKey  PublicKey
	RelayURL      string
	Permissions   []string
	PreAuthorized bool
	PreAuthUntil  time.Time
	CreatedAt     time.Time
}

// ConnectRequestStatus tracks a ConnectRequest's approval lifecycle.
type ConnectRequestStatus string

// Known connect-request statuses.
const (
	ConnectRequestPending  ConnectRequestStatus = "pending"
	ConnectRequestApproved ConnectRequestStatus = "approved"
	ConnectRequestRejected ConnectRequestStatus = "rejected"
)

// ConnectRequest is one method invocation an app sends over a ConnectSession
// (get_public_key, sign_event, and so on) awaiting local approval.
type ConnectRequest struct {
	ID        string
	SessionID string
	Method    string
	Params    string
	Status    ConnectRequestStatus
	Response  string
	CreatedAt time.Time
}

// NotificationKind tags which domain event a Notification wraps.
type NotificationKind string

// Known notification kinds.
const (
	NotificationNewPolicy            NotificationKind = "new_policy"
	NotificationNewProposal          NotificationKind = "new_proposal"
	NotificationNewApproval          NotificationKind = "new_approval"
	NotificationNewSharedSigner      NotificationKind = "new_shared_signer"
	NotificationNewCompletedProposal NotificationKind = "new_completed_proposal"
)

// Notification is a locally-recorded, user-facing surfacing of a reduced
// event — one per NotificationKind variant, referencing the EventId of the
// event that triggered it.
type Notification struct {
	ID        EventId
	Kind      NotificationKind
	RefID     EventId
	PolicyID  EventId
	Seen      bool
	CreatedAt time.Time
}

// PendingEvent is a locally-authored event not yet acknowledged by every
// configured relay. The retry loop (§4.6) republishes these until one
// publish succeeds on every configured relay; tombstones are not consulted.
type PendingEvent struct {
	ID          EventId
	Kind        int
	Payload     []byte
	Relays      []string
	Attempts    int
	LastAttempt time.Time
	CreatedAt   time.Time
}
