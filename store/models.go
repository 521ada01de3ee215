// Package store is the Local Store (§4.1): the durable, queryable home for
// every domain entity the reducer converges on, plus the small bookkeeping
// rows (relay sync cursors, pending-event queue, tombstones) the background
// loops need. It is the only package that touches a *gorm.DB directly —
// every other package talks to it through the typed methods in store.go.
package store

import (
	"time"

	"gorm.io/gorm"
)

// PolicyRow is Policy's row shape. Cosigners is a JSON array of hex pubkeys
// rather than a join table: policies are read whole far more often than
// queried by cosigner, so the denormalized form avoids a join on the hot
// path at the cost of a linear scan on the rare reverse lookup.
type PolicyRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Description string
	Descriptor  string
	Network     string `gorm:"index"`
	Cosigners   string // JSON []string
	Threshold   int
	CreatedAt   time.Time
}

// SharedKeyRow holds K_p for a policy this node holds the key to. One row
// per (policy, holder) pair would model the original registry more
// precisely, but this node only ever needs its own copy once decrypted.
// CreatedAt carries the publishing SHARED_KEY event's timestamp so a later
// race candidate can be compared against it with sharedkey.Resolve.
type SharedKeyRow struct {
	PolicyID  string `gorm:"primaryKey"`
	Secret    []byte
	CreatedAt time.Time
}

// ProposalRow is Proposal's row shape.
type ProposalRow struct {
	ID         string `gorm:"primaryKey"`
	PolicyID   string `gorm:"index"`
	Kind       string
	Descriptor string
	Psbt       []byte
	Status     string `gorm:"index"`
	Address    string
	Amount     uint64
	FeeRate    float64
	Message    string
	CreatedBy  string
	CreatedAt  time.Time
}

// ApprovalRow is Approval's row shape.
type ApprovalRow struct {
	ID         string `gorm:"primaryKey"`
	ProposalID string `gorm:"index"`
	PolicyID   string `gorm:"index"`
	Approver   string
	Psbt       []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// CompletedProposalRow is CompletedProposal's row shape.
type CompletedProposalRow struct {
	ID         string `gorm:"primaryKey"`
	ProposalID string `gorm:"index"`
	PolicyID   string `gorm:"index"`
	Kind       string
	Psbt       []byte
	Txid       string
	RawTx      []byte
	CreatedAt  time.Time
}

// SignerRow is Signer's row shape. Descriptor is unique per owner: the same
// cosigner key fragment should not be saved twice.
type SignerRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Fingerprint string
	Descriptor  string `gorm:"uniqueIndex:idx_signer_owner_descriptor"`
	Owner       string `gorm:"uniqueIndex:idx_signer_owner_descriptor"`
	CreatedAt   time.Time
}

// SharedSignerRow is SharedSigner's row shape.
type SharedSignerRow struct {
	ID        string `gorm:"primaryKey"`
	SignerID  string `gorm:"index"`
	Owner     string `gorm:"index"`
	Recipient string `gorm:"index:idx_shared_signer_recipient"`
	CreatedAt time.Time
}

// ConnectSessionRow is ConnectSession's row shape.
type ConnectSessionRow struct {
	ID            string `gorm:"primaryKey"`
	AppPublicKey  string `gorm:"index"`
	RelayURL      string
	Permissions   string // JSON []string
	PreAuthorized bool
	PreAuthUntil  time.Time
	CreatedAt     time.Time
}

// ConnectRequestRow is ConnectRequest's row shape.
type ConnectRequestRow struct {
	ID        string `gorm:"primaryKey"`
	SessionID string `gorm:"index"`
	Method    string
	Params    string
	Status    string `gorm:"index"`
	Response  string
	CreatedAt time.Time
}

// NotificationRow is Notification's row shape.
type NotificationRow struct {
	ID        string `gorm:"primaryKey"`
	Kind      string
	RefID     string
	PolicyID  string `gorm:"index"`
	Seen      bool   `gorm:"index"`
	CreatedAt time.Time
}

// PendingEventRow is PendingEvent's row shape: a locally-authored event
// awaiting acknowledgement from one or more relays. Distinct from
// DeferredEventRow below, which holds events authored by anyone and blocked
// on a causal dependency rather than a relay ack.
type PendingEventRow struct {
	ID          string `gorm:"primaryKey"`
	Kind        int
	Payload     []byte
	Relays      string // JSON []string, relays configured when the event was queued
	Attempts    int
	LastAttempt time.Time
	CreatedAt   time.Time
}

// DeferredEventRow is DeferredEvent's row shape: a raw inbound event the
// reducer couldn't yet apply because its shared key or parent policy/
// proposal hadn't arrived, retried every 30s by the deferred-event loop
// until the dependency resolves.
type DeferredEventRow struct {
	ID        string `gorm:"primaryKey"`
	Kind      int
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// DeletedEventRow is a tombstone: once an id appears here, the reducer must
// refuse to (re)admit it regardless of what a relay still serves.
type DeletedEventRow struct {
	ID        string `gorm:"primaryKey"`
	DeletedAt time.Time
}

// RelaySyncRow tracks the last event timestamp this node has consumed from
// a given relay, so the subscription loop can resume a REQ with
// `since` instead of re-fetching the whole history on every restart.
type RelaySyncRow struct {
	URL        string `gorm:"primaryKey"`
	LastSyncAt int64
}

// ContactRow is one entry in the user's contact list: a petname for a
// public key, mirroring the Nostr kind-3 contact list this engine also
// consumes for the ContactList domain kind.
type ContactRow struct {
	PublicKey string `gorm:"primaryKey"`
	Petname   string
}

// ProfileRow caches one author's Metadata event content, last-write-wins by
// CreatedAt — the only domain object the reducer updates in place rather
// than rejecting as a duplicate.
type ProfileRow struct {
	PublicKey string `gorm:"primaryKey"`
	Content   []byte
	CreatedAt time.Time
}

// ConfigCellRow is a tiny key/value table for the small mutable settings
// the engine exposes read/write accessors for (the Electrum endpoint, the
// configured network) without a dedicated table each.
type ConfigCellRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// ChainStateRow caches the last-seen tip height and confirmation count the
// original client keeps alongside its wallet object, avoiding a chain query
// on every balance read.
type ChainStateRow struct {
	ID            uint `gorm:"primaryKey"`
	Height        int64
	Confirmations int64
	UpdatedAt     time.Time
}

// AutoMigrate creates or updates every table this package owns, following
// the otc-gateway's models.AutoMigrate(db) startup pattern.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PolicyRow{},
		&SharedKeyRow{},
		&ProposalRow{},
		&ApprovalRow{},
		&CompletedProposalRow{},
		&SignerRow{},
		&SharedSignerRow{},
		&ConnectSessionRow{},
		&ConnectRequestRow{},
		&NotificationRow{},
		&PendingEventRow{},
		&DeferredEventRow{},
		&DeletedEventRow{},
		&RelaySyncRow{},
		&ContactRow{},
		&ProfileRow{},
		&ConfigCellRow{},
		&ChainStateRow{},
	)
}
