package service

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// Session is one live transport connection.
type Session struct {
	ID         string
	Privileged bool

	sink    ports.Sink
	hooks   []func()
	subs    map[core.SubscriptionKey]func()
	subKeys []core.SubscriptionKey
}

// SessionRegistry tracks open sessions and the subscriptions they own.
// Nothing is delivered to a session once Close has started.
type SessionRegistry struct {
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(logger watermill.LoggerAdapter) *SessionRegistry {
	return &SessionRegistry{
		logger:   logger.With(watermill.LogFields{"component": "sessions"}),
		sessions: make(map[string]*Session),
	}
}

// Open registers a session. Privileged sessions belong to the extension's
// own pages.
func (r *SessionRegistry) Open(id string, privileged bool, sink ports.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("session %s already open", id)
	}
	r.sessions[id] = &Session{
		ID:         id,
		Privileged: privileged,
		sink:       sink,
		subs:       make(map[core.SubscriptionKey]func()),
	}

	r.logger.Debug("Session opened", watermill.LogFields{
		"session":    id,
		"privileged": privileged,
	})

	return nil
}

// Get returns the session with id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// OnClose registers a hook that Close runs before cancelling subscriptions.
func (r *SessionRegistry) OnClose(id string, hook func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", core.ErrSessionClosed, id)
	}
	s.hooks = append(s.hooks, hook)
	return nil
}

// AddSubscription records a stream owned by session id. cancel runs when the
// stream is removed or the session closes.
func (r *SessionRegistry) AddSubscription(id string, key core.SubscriptionKey, cancel func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", core.ErrSessionClosed, id)
	}
	if _, dup := s.subs[key]; dup {
		return fmt.Errorf("subscription %s/%s already exists", key.Type, key.ID)
	}
	s.subs[key] = cancel
	s.subKeys = append(s.subKeys, key)
	return nil
}

// RemoveSubscription removes a stream and runs its cancel function.
func (r *SessionRegistry) RemoveSubscription(id string, key core.SubscriptionKey) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s", core.ErrSessionClosed, id)
	}
	cancel, ok := s.subs[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: subscription %s/%s", core.ErrNotFound, key.Type, key.ID)
	}
	delete(s.subs, key)
	for i, k := range s.subKeys {
		if k == key {
			s.subKeys = append(s.subKeys[:i], s.subKeys[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	cancel()
	return nil
}

// HasSubscription reports whether key is live on session id.
func (r *SessionRegistry) HasSubscription(id string, key core.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	_, ok = s.subs[key]
	return ok
}

// Deliver sends a subscription response if key is still live on session id.
// It reports whether the response was delivered.
func (r *SessionRegistry) Deliver(id string, key core.SubscriptionKey, resp core.Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if _, ok := s.subs[key]; !ok {
		return false
	}
	s.sink.Send(resp)
	return true
}

// Reply sends a response to session id if it is still open.
func (r *SessionRegistry) Reply(id string, resp core.Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.sink.Send(resp)
	return true
}

// Close destroys a session. It runs the close hooks, then cancels every
// subscription, and returns once both are done. Closing an unknown or
// already closed session does nothing.
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	hooks := s.hooks
	cancels := make([]func(), 0, len(s.subKeys))
	for _, key := range s.subKeys {
		cancels = append(cancels, s.subs[key])
	}
	s.hooks, s.subs, s.subKeys = nil, nil, nil
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	for _, cancel := range cancels {
		cancel()
	}

	r.logger.Debug("Session closed", watermill.LogFields{
		"session":       id,
		"subscriptions": len(cancels),
	})
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
