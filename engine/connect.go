package engine

import (
	"context"
	"time"

	"coinstr/crypto"
	"coinstr/domain"
)

// NewNostrConnectSession implements new_nostr_connect_session: adds the
// session's relay and opens a ConnectSession with it, subscribing with the
// same canonical filter set every other relay uses (wired by the
// subscription loop, not here).
func (e *Engine) NewNostrConnectSession(appPub crypto.PublicKey, relayURL string, permissions []string) (domain.ConnectSession, error) {
	if err := e.transport.AddRelay(context.Background(), relayURL); err != nil {
		return domain.ConnectSession{}, err
	}
	if err := e.store.AddRelay(relayURL); err != nil {
		return domain.ConnectSession{}, err
	}
	return e.connect.NewSession(appPub, relayURL, permissions)
}

// ApproveNostrConnectRequest implements approve_nostr_connect_request.
func (e *Engine) ApproveNostrConnectRequest(sessionID, requestID, response string) error {
	return e.connect.ApproveRequest(sessionID, requestID, response)
}

// AutoApproveNostrConnect implements auto_approve.
func (e *Engine) AutoApproveNostrConnect(appPub crypto.PublicKey, duration time.Duration) error {
	return e.connect.AutoApprove(appPub, duration)
}

// RevokeNostrConnectAutoApproval revokes a prior AutoApproveNostrConnect.
func (e *Engine) RevokeNostrConnectAutoApproval(appPub crypto.PublicKey) error {
	return e.connect.Revoke(appPub)
}

// GetConnectSessions implements the connect-session listing read.
func (e *Engine) GetConnectSessions() ([]domain.ConnectSession, error) {
	return e.store.GetConnectSessions()
}

// GetConnectRequests implements the pending-request listing read.
func (e *Engine) GetConnectRequests(sessionID string) ([]domain.ConnectRequest, error) {
	return e.store.GetConnectRequests(sessionID)
}
