// Package connect implements the Remote Signing Channel (§4.7): a
// NostrConnect-style session lets a third-party application request
// signing actions from this node's identity key, either auto-approved
// within a pre-authorization window or queued for the user to approve.
package connect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"coinstr/codec"
	"coinstr/crypto"
	"coinstr/domain"
	"coinstr/observability"
	"coinstr/relay"
	"coinstr/store"
)

// ErrAlreadyApproved is returned by ApproveRequest when the request was
// already approved.
var ErrAlreadyApproved = errors.New("connect: request already approved")

// ErrSessionNotFound is returned when a message references a session this
// node doesn't recognize.
var ErrSessionNotFound = errors.New("connect: session not found")

// ErrRateLimited is returned by HandleIncoming when an application has
// exceeded its request rate, protecting the user's pending-approval queue
// from a misbehaving or compromised remote app.
var ErrRateLimited = errors.New("connect: app rate limited")

const (
	appRequestsPerSecond = 2
	appRequestBurst      = 10
)

// Handler owns the ConnectSession/ConnectRequest lifecycle.
type Handler struct {
	store     *store.Store
	identity  *crypto.PrivateKey
	transport relay.Transport
	now       func() time.Time

	limitersMu sync.Mutex
	limiters   map[crypto.PublicKey]*rate.Limiter
}

// New returns a Handler. now defaults to time.Now when nil, overridable for
// deterministic tests.
func New(st *store.Store, identity *crypto.PrivateKey, transport relay.Transport, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		store:     st,
		identity:  identity,
		transport: transport,
		now:       now,
		limiters:  make(map[crypto.PublicKey]*rate.Limiter),
	}
}

func (h *Handler) limiterFor(app crypto.PublicKey) *rate.Limiter {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()
	l, ok := h.limiters[app]
	if !ok {
		l = rate.NewLimiter(rate.Limit(appRequestsPerSecond), appRequestBurst)
		h.limiters[app] = l
	}
	return l
}

// NewSession opens a ConnectSession for an application reachable at
// relayURL, persisting it and sending the app a "connect" acknowledgement.
// Adding relayURL to the transport is left to the caller
// (engine.NewNostrConnectSession).
func (h *Handler) NewSession(appPub crypto.PublicKey, relayURL string, permissions []string) (domain.ConnectSession, error) {
	session := domain.ConnectSession{
		ID:           uuid.NewString(),
		AppPublicKey: appPub,
		RelayURL:     relayURL,
		Permissions:  permissions,
		CreatedAt:    h.now(),
	}
	if err := h.store.SaveConnectSession(session); err != nil {
		return domain.ConnectSession{}, fmt.Errorf("connect: save session: %w", err)
	}
	ack := codec.ConnectPayload{ID: session.ID, Method: "connect", Result: "ack"}
	ev, err := codec.EncodeConnectMessage(h.identity, appPub, h.now().Unix(), ack)
	if err != nil {
		return domain.ConnectSession{}, err
	}
	return session, h.transport.Publish(context.Background(), ev)
}

// HandleIncoming decrypts and routes one inbound NostrConnect event,
// implementing the method dispatch table in §4.7.
func (h *Handler) HandleIncoming(e relay.SignedEvent) error {
	if !h.limiterFor(e.Author).AllowN(h.now(), 1) {
		observability.Connect().RecordRateLimited()
		return ErrRateLimited
	}
	payload, err := codec.DecodeConnectMessage(h.identity, e)
	if err != nil {
		return fmt.Errorf("connect: decode: %w", err)
	}
	var method string
	switch payload.Method {
	case "disconnect":
		method = "disconnect"
		err = h.handleDisconnect(e.Author)
	case "get_public_key":
		method = "get_public_key"
		err = h.respond(e.Author, payload.ID, h.identity.PubKey().String())
	default:
		method = payload.Method
		err = h.handleGenericRequest(e.Author, payload)
	}
	observability.Connect().Observe(method, err)
	return err
}

func (h *Handler) handleDisconnect(app crypto.PublicKey) error {
	sessions, err := h.store.GetConnectSessions()
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.AppPublicKey == app {
			if err := h.store.DeleteConnectSession(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) handleGenericRequest(app crypto.PublicKey, payload codec.ConnectPayload) error {
	session, err := h.sessionFor(app)
	if err != nil {
		return err
	}
	if session.PreAuthorized && h.now().Before(session.PreAuthUntil) {
		return h.respond(app, payload.ID, "auto-approved")
	}
	req := domain.ConnectRequest{
		ID:        payload.ID,
		SessionID: session.ID,
		Method:    payload.Method,
		Params:    fmt.Sprintf("%v", payload.Params),
		Status:    domain.ConnectRequestPending,
		CreatedAt: h.now(),
	}
	return h.store.SaveConnectRequest(req)
}

func (h *Handler) sessionFor(app crypto.PublicKey) (domain.ConnectSession, error) {
	sessions, err := h.store.GetConnectSessions()
	if err != nil {
		return domain.ConnectSession{}, err
	}
	for _, s := range sessions {
		if s.AppPublicKey == app {
			return s, nil
		}
	}
	return domain.ConnectSession{}, ErrSessionNotFound
}

// ApproveRequest sends the response for a pending ConnectRequest and marks
// it approved. Fails with ErrAlreadyApproved if it was already approved.
func (h *Handler) ApproveRequest(sessionID, requestID, response string) error {
	requests, err := h.store.GetConnectRequests(sessionID)
	if err != nil {
		return err
	}
	var target *domain.ConnectRequest
	for i := range requests {
		if requests[i].ID == requestID {
			target = &requests[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("connect: request %s not found", requestID)
	}
	if target.Status == domain.ConnectRequestApproved {
		return ErrAlreadyApproved
	}
	session, err := h.store.GetConnectSession(sessionID)
	if err != nil {
		return err
	}
	target.Status = domain.ConnectRequestApproved
	target.Response = response
	if err := h.store.SaveConnectRequest(*target); err != nil {
		return err
	}
	return h.respond(session.AppPublicKey, requestID, response)
}

// AutoApprove sets a pre-authorization window for app's session, so
// subsequent requests auto-respond until it elapses.
func (h *Handler) AutoApprove(app crypto.PublicKey, duration time.Duration) error {
	session, err := h.sessionFor(app)
	if err != nil {
		return err
	}
	session.PreAuthorized = true
	session.PreAuthUntil = h.now().Add(duration)
	return h.store.SaveConnectSession(session)
}

// Revoke clears a session's pre-authorization window.
func (h *Handler) Revoke(app crypto.PublicKey) error {
	session, err := h.sessionFor(app)
	if err != nil {
		return err
	}
	session.PreAuthorized = false
	session.PreAuthUntil = time.Time{}
	return h.store.SaveConnectSession(session)
}

func (h *Handler) respond(app crypto.PublicKey, id, result string) error {
	payload := codec.ConnectPayload{ID: id, Result: result}
	ev, err := codec.EncodeConnectMessage(h.identity, app, h.now().Unix(), payload)
	if err != nil {
		return err
	}
	return h.transport.Publish(context.Background(), ev)
}
