// Package sharedkey implements the Shared-Key Registry (§4.2): generating a
// fresh K_p for a new Policy and resolving the rare case where two
// cosigners race to publish one, each believing they're first.
package sharedkey

import (
	"fmt"
	"time"

	"coinstr/crypto"
	"coinstr/domain"
)

// Generate creates a fresh K_p for policyID. The secret is a random
// secp256k1 scalar, the same key-material shape as an author identity, so
// it can be distributed with the same ECDH envelope scheme.
func Generate(policyID domain.EventId) (domain.SharedKey, error) {
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		return domain.SharedKey{}, fmt.Errorf("sharedkey: generate: %w", err)
	}
	var sk domain.SharedKey
	sk.PolicyID = policyID
	copy(sk.Secret[:], priv.Bytes())
	return sk, nil
}

// Candidate is one SharedKey event seen for a policy, carrying the
// timestamp it was published at so first-seen-wins resolution has
// something to compare.
type Candidate struct {
	Key       domain.SharedKey
	CreatedAt time.Time
}

// Resolve implements first-seen-wins: if two or more cosigners each
// generate and publish their own K_p for the same policy (a race the
// relay's eventual-consistency model cannot prevent outright), every
// well-behaved node converges on the earliest-timestamped one, breaking
// ties on the lexicographically smaller secret so the choice is
// deterministic even when two candidates share a timestamp.
func Resolve(candidates []Candidate) (domain.SharedKey, error) {
	if len(candidates) == 0 {
		return domain.SharedKey{}, fmt.Errorf("sharedkey: no candidates to resolve")
	}
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.CreatedAt.Before(winner.CreatedAt) {
			winner = c
			continue
		}
		if c.CreatedAt.Equal(winner.CreatedAt) && lessSecret(c.Key.Secret, winner.Key.Secret) {
			winner = c
		}
	}
	return winner.Key, nil
}

func lessSecret(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
