package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
	"github.com/lightningnetwork/lnd/clock"
)

// Config holds the collaborators of a Broker.
type Config struct {
	Store        ports.Store
	Keyring      ports.Keyring
	UI           ports.ApprovalUI
	Providers    ports.ProviderFactory
	Clock        clock.Clock
	Notification core.NotificationMode
	Logger       watermill.LoggerAdapter
}

// scope says which sessions may send a kind.
type scope int

const (
	// scopePage kinds come from web pages and need an authorized origin.
	scopePage scope = iota

	// scopeExtension kinds come only from the extension's own pages.
	scopeExtension

	// scopeAny kinds are accepted from both; pages still need an
	// authorized origin.
	scopeAny
)

// request is an envelope together with what the broker learned about it
// before routing.
type request struct {
	env     core.Envelope
	session *Session

	// auth is the origin's entry; zero for extension sessions and for
	// authorize.
	auth core.AuthUrlInfo
}

type handlerFunc func(ctx context.Context, req request) (any, error)

type route struct {
	scope   scope
	handler handlerFunc
}

// Broker is the root object: it owns every component and dispatches
// envelopes to them.
type Broker struct {
	auth      *AuthStore
	metadata  *MetadataStore
	passwords *PasswordCache
	queues    *QueueManager
	sessions  *SessionRegistry
	providers *ProviderMux
	popup     *Popup
	keyring   ports.Keyring
	logger    watermill.LoggerAdapter

	// decideMu makes the known-origin check and enqueue of authorize atomic
	// with recording and resolving a decision.
	decideMu sync.Mutex

	routes map[string]route
}

// NewBroker wires the components around the given collaborators.
func NewBroker(cfg Config) *Broker {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = watermill.NopLogger{}
	}
	if !cfg.Notification.Valid() {
		cfg.Notification = core.NotificationNormal
	}

	b := &Broker{
		auth:      NewAuthStore(cfg.Store, cfg.Logger),
		metadata:  NewMetadataStore(cfg.Store, cfg.Logger),
		passwords: NewPasswordCache(cfg.Keyring, cfg.Clock, cfg.Logger),
		sessions:  NewSessionRegistry(cfg.Logger),
		keyring:   cfg.Keyring,
		logger:    cfg.Logger.With(watermill.LogFields{"component": "broker"}),
	}
	b.queues = NewQueueManager(cfg.Clock, cfg.Logger, func() {
		b.popup.Recompute(context.Background())
	})
	b.popup = NewPopup(cfg.UI, cfg.Store, cfg.Notification, b.queues.Counts, cfg.Logger)
	b.providers = NewProviderMux(cfg.Providers, b.sessions, cfg.Logger)
	b.routes = b.buildRoutes()

	return b
}

// Load reads persisted authorization, metadata and settings.
func (b *Broker) Load(ctx context.Context) error {
	if err := b.auth.Load(ctx); err != nil {
		return err
	}
	if err := b.metadata.Load(ctx); err != nil {
		return err
	}
	return b.popup.Load(ctx)
}

func (b *Broker) buildRoutes() map[string]route {
	page := func(h handlerFunc) route { return route{scope: scopePage, handler: h} }
	ext := func(h handlerFunc) route { return route{scope: scopeExtension, handler: h} }

	return map[string]route{
		core.KindPing: {scope: scopeAny, handler: b.handlePing},

		core.KindAuthorize:        page(b.handleAuthorize),
		core.KindAuthorizeApprove: ext(b.handleAuthorizeApprove),
		core.KindAuthorizeReject:  ext(b.handleAuthorizeReject),
		core.KindAuthorizeUpdate:  ext(b.handleAuthorizeUpdate),
		core.KindAuthorizeList:    ext(b.handleAuthorizeList),
		core.KindAuthorizeRemove:  ext(b.handleAuthorizeRemove),
		core.KindAuthorizeRequests: ext(func(ctx context.Context, req request) (any, error) {
			return true, streamQueue(b.sessions, req, b.queues.Auth)
		}),

		core.KindAccountsList:        page(b.handleAccountsList),
		core.KindAccountsSubscribe:   page(b.handleAccountsSubscribe),
		core.KindAccountsUnsubscribe: page(b.handleAccountsUnsubscribe),

		core.KindMetadataProvide: page(b.handleMetadataProvide),
		core.KindMetadataList:    page(b.handleMetadataList),
		core.KindMetadataApprove: ext(b.handleMetadataApprove),
		core.KindMetadataReject:  ext(b.handleMetadataReject),
		core.KindMetadataRequests: ext(func(ctx context.Context, req request) (any, error) {
			return true, streamQueue(b.sessions, req, b.queues.Metadata)
		}),

		core.KindBytesSign:               page(b.handleBytesSign),
		core.KindExtrinsicSign:           page(b.handleExtrinsicSign),
		core.KindSigningApprovePassword:  ext(b.handleSigningApprovePassword),
		core.KindSigningApproveSignature: ext(b.handleSigningApproveSignature),
		core.KindSigningCancel:           ext(b.handleSigningCancel),
		core.KindSigningIsLocked:         ext(b.handleSigningIsLocked),
		core.KindSigningRequests: ext(func(ctx context.Context, req request) (any, error) {
			return true, streamQueue(b.sessions, req, b.queues.Signing)
		}),

		core.KindSettingsNotification: ext(b.handleSettingsNotification),

		core.KindRPCListProviders:      page(b.handleRPCListProviders),
		core.KindRPCStartProvider:      page(b.handleRPCStartProvider),
		core.KindRPCSend:               page(b.handleRPCSend),
		core.KindRPCSubscribe:          page(b.handleRPCSubscribe),
		core.KindRPCUnsubscribe:        page(b.handleRPCUnsubscribe),
		core.KindRPCSubscribeConnected: page(b.handleRPCSubscribeConnected),
	}
}

// OpenSession registers a transport connection.
func (b *Broker) OpenSession(id string, privileged bool, sink ports.Sink) error {
	return b.sessions.Open(id, privileged, sink)
}

// CloseSession tears a connection down: its provider is released and its
// subscriptions cancelled. Its pending requests stay queued.
func (b *Broker) CloseSession(id string) {
	b.sessions.Close(id)
}

// Dispatch handles one envelope and returns its response. Kinds that wait for
// a human decision block until the request is resolved or ctx ends.
func (b *Broker) Dispatch(ctx context.Context, env core.Envelope) core.Response {
	resp := core.Response{ID: env.ID}

	result, err := b.dispatch(ctx, env)
	if err != nil {
		b.logger.Debug("Request failed", watermill.LogFields{
			"id":      env.ID,
			"kind":    env.Kind,
			"session": env.SessionID,
			"err":     err.Error(),
		})
		resp.Error = err.Error()
		return resp
	}

	resp.Response = result
	return resp
}

func (b *Broker) dispatch(ctx context.Context, env core.Envelope) (any, error) {
	session, ok := b.sessions.Get(env.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", core.ErrSessionClosed, env.SessionID)
	}

	r, ok := b.routes[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownKind, env.Kind)
	}

	req := request{env: env, session: session}

	switch {
	case r.scope == scopeExtension && !session.Privileged:
		return nil, fmt.Errorf("%w: %s", core.ErrForbidden, env.Kind)

	case r.scope == scopeAny && session.Privileged:
		// Extension pages have no origin to check.

	case r.scope != scopeExtension && env.Kind != core.KindAuthorize:
		info, err := b.auth.EnsureAuthorized(env.Origin)
		if err != nil {
			return nil, err
		}
		req.auth = info
	}

	return r.handler(ctx, req)
}

func (b *Broker) handlePing(context.Context, request) (any, error) {
	return true, nil
}

// Auth returns the authorization store.
func (b *Broker) Auth() *AuthStore { return b.auth }

// Metadata returns the metadata store.
func (b *Broker) Metadata() *MetadataStore { return b.metadata }

// Passwords returns the password cache.
func (b *Broker) Passwords() *PasswordCache { return b.passwords }

// Queues returns the confirmation queues.
func (b *Broker) Queues() *QueueManager { return b.queues }

// Sessions returns the session registry.
func (b *Broker) Sessions() *SessionRegistry { return b.sessions }

// Providers returns the provider multiplexer.
func (b *Broker) Providers() *ProviderMux { return b.providers }

// Popup returns the icon and popup coordinator.
func (b *Broker) Popup() *Popup { return b.popup }

// decode unmarshals an envelope payload into T.
func decode[T any](env core.Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", core.ErrInvalidPayload, env.Kind, err)
	}
	return v, nil
}

// isNotFound reports whether err is a lookup failure.
func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
