package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const connectedSubscription = "rpc.connected"

// binding is the provider owned by one session. ready is closed once the
// dial finished, successfully or not.
type binding struct {
	key   string
	ready chan struct{}

	provider ports.Provider
	meta     core.ProviderMeta
	err      error
}

// ProviderMux binds at most one RPC provider to each session and forwards
// calls to it.
type ProviderMux struct {
	factory  ports.ProviderFactory
	sessions *SessionRegistry
	logger   watermill.LoggerAdapter

	mu       sync.Mutex
	bindings map[string]*binding
}

// NewProviderMux creates a multiplexer over the providers factory knows.
func NewProviderMux(factory ports.ProviderFactory, sessions *SessionRegistry,
	logger watermill.LoggerAdapter) *ProviderMux {

	return &ProviderMux{
		factory:  factory,
		sessions: sessions,
		logger:   logger.With(watermill.LogFields{"component": "provider_mux"}),
		bindings: make(map[string]*binding),
	}
}

// Providers lists the configured providers.
func (m *ProviderMux) Providers() map[string]core.ProviderMeta {
	return m.factory.Providers()
}

// Start binds provider key to the session. A session that already has a
// provider gets the bound provider's meta back and nothing is dialed.
func (m *ProviderMux) Start(ctx context.Context, sessionID, key string) (core.ProviderMeta, error) {
	m.mu.Lock()
	if b, ok := m.bindings[sessionID]; ok {
		m.mu.Unlock()
		select {
		case <-b.ready:
		case <-ctx.Done():
			return core.ProviderMeta{}, ctx.Err()
		}
		if b.err != nil {
			return core.ProviderMeta{}, b.err
		}
		return b.meta, nil
	}

	meta, ok := m.factory.Providers()[key]
	if !ok {
		m.mu.Unlock()
		return core.ProviderMeta{}, fmt.Errorf("%w: provider %s", core.ErrNotFound, key)
	}
	b := &binding{key: key, meta: meta, ready: make(chan struct{})}
	m.bindings[sessionID] = b
	m.mu.Unlock()

	provider, err := m.factory.Dial(ctx, key)
	if err == nil {
		err = m.sessions.OnClose(sessionID, func() { m.Release(sessionID) })
		if err != nil {
			provider.Disconnect()
		}
	}

	m.mu.Lock()
	if err != nil {
		b.err = fmt.Errorf("failed to start provider %s: %w", key, err)
		if m.bindings[sessionID] == b {
			delete(m.bindings, sessionID)
		}
	} else {
		b.provider = provider
	}
	m.mu.Unlock()
	close(b.ready)

	if err != nil {
		return core.ProviderMeta{}, b.err
	}

	m.logger.Info("Provider started", watermill.LogFields{
		"session":  sessionID,
		"provider": key,
	})

	return meta, nil
}

// Release disconnects the provider bound to the session, if any.
func (m *ProviderMux) Release(sessionID string) {
	m.mu.Lock()
	b, ok := m.bindings[sessionID]
	if ok {
		delete(m.bindings, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	<-b.ready
	if b.provider != nil {
		b.provider.Disconnect()
		m.logger.Debug("Provider released", watermill.LogFields{
			"session":  sessionID,
			"provider": b.key,
		})
	}
}

// Send forwards a single call to the session's provider.
func (m *ProviderMux) Send(ctx context.Context, sessionID string, req core.RPCSendRequest) (json.RawMessage, error) {
	provider, err := m.provider(sessionID).UnwrapOrErr(core.ErrProviderUnset)
	if err != nil {
		return nil, err
	}
	return provider.Send(ctx, req.Method, req.Params)
}

// Subscribe opens a node subscription for the session. Notifications are
// delivered as subscription responses to envelope envID until the
// subscription is removed or the session closes.
func (m *ProviderMux) Subscribe(ctx context.Context, sessionID, envID string,
	req core.RPCSubscribeRequest) (string, error) {

	provider, err := m.provider(sessionID).UnwrapOrErr(core.ErrProviderUnset)
	if err != nil {
		return "", err
	}

	subID := uuid.New().String()
	key := core.SubscriptionKey{Type: req.Type, ID: subID}

	cancel, err := provider.Subscribe(ctx, req.Namespace, req.Params, func(msg json.RawMessage) {
		m.sessions.Deliver(sessionID, key, core.Response{
			ID:           envID,
			Subscription: msg,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to subscribe to %s: %w", req.Type, err)
	}

	if err := m.sessions.AddSubscription(sessionID, key, cancel); err != nil {
		cancel()
		return "", err
	}

	return subID, nil
}

// Unsubscribe closes a subscription opened by Subscribe.
func (m *ProviderMux) Unsubscribe(sessionID string, req core.RPCUnsubscribeRequest) error {
	if m.provider(sessionID).IsNone() {
		return core.ErrProviderUnset
	}
	return m.sessions.RemoveSubscription(sessionID, core.SubscriptionKey{
		Type: req.Type,
		ID:   req.SubscriptionID,
	})
}

// SubscribeConnected streams the provider's connection state: true now,
// false once the node connection is lost.
func (m *ProviderMux) SubscribeConnected(sessionID, envID string) error {
	provider, err := m.provider(sessionID).UnwrapOrErr(core.ErrProviderUnset)
	if err != nil {
		return err
	}

	key := core.SubscriptionKey{Type: connectedSubscription, ID: envID}
	quit := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(quit) }) }

	if err := m.sessions.AddSubscription(sessionID, key, stop); err != nil {
		return err
	}

	m.sessions.Deliver(sessionID, key, core.Response{ID: envID, Subscription: true})

	go func() {
		select {
		case <-provider.Disconnected():
			m.sessions.Deliver(sessionID, key, core.Response{ID: envID, Subscription: false})
		case <-quit:
		}
	}()

	return nil
}

// provider returns the session's started provider.
func (m *ProviderMux) provider(sessionID string) fn.Option[ports.Provider] {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[sessionID]
	if !ok || b.provider == nil {
		return fn.None[ports.Provider]()
	}
	return fn.Some(b.provider)
}
