package engine

import (
	"context"
	"fmt"

	"coinstr/domain"
)

// AddRelay implements add_relay: dials url and records it for the
// subscription loop to pick up on its next pass.
func (e *Engine) AddRelay(ctx context.Context, url string) error {
	if err := e.transport.AddRelay(ctx, url); err != nil {
		return fmt.Errorf("engine: add relay %s: %w", url, err)
	}
	return e.store.AddRelay(url)
}

// RemoveRelay implements remove_relay.
func (e *Engine) RemoveRelay(url string) error {
	if err := e.transport.RemoveRelay(url); err != nil {
		return fmt.Errorf("engine: remove relay %s: %w", url, err)
	}
	return e.store.RemoveRelay(url)
}

// GetRelays implements get_relays.
func (e *Engine) GetRelays() ([]string, error) {
	return e.store.GetRelays()
}

// GetContacts implements get_contacts.
func (e *Engine) GetContacts() (map[string]string, error) {
	return e.store.GetContacts()
}

// SetContact implements the petname half of the ContactList ambient kind:
// it records a contact locally only; no ContactList event is published.
func (e *Engine) SetContact(pub domain.PublicKey, petname string) error {
	return e.store.SetContact(pub, petname)
}
