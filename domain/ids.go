// Package domain holds the wallet-domain entities the coordination engine
// converges on: policies, proposals, approvals, completions, signers, and
// the connect-session objects layered on top of the relay event stream.
package domain

import (
	"encoding/hex"
	"errors"

	"coinstr/crypto"
)

// EventId is the opaque 256-bit identifier of a relay event — the hash of
// its canonical form. Domain objects are addressed by the EventId of the
// event that first published them.
type EventId [32]byte

// ZeroEventId is the nil identifier, used to mean "no parent".
var ZeroEventId = EventId{}

// IsZero reports whether id carries no value.
func (id EventId) IsZero() bool { return id == ZeroEventId }

// String renders the id as lowercase hex.
func (id EventId) String() string { return hex.EncodeToString(id[:]) }

// EventIdFromHex parses a hex-encoded event id.
func EventIdFromHex(s string) (EventId, error) {
	var out EventId
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, errors.New("domain: event id must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// PublicKey re-exports crypto.PublicKey so domain types don't need callers
// to import both packages for every field.
type PublicKey = crypto.PublicKey

// Network identifies which Bitcoin network a Policy's descriptor is valid
// under.
type Network string

// Supported networks.
const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Signet  Network = "signet"
	Regtest Network = "regtest"
)

// Valid reports whether n is one of the known networks.
func (n Network) Valid() bool {
	switch n {
	case Mainnet, Testnet, Signet, Regtest:
		return true
	default:
		return false
	}
}
