package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ethereum/go-ethereum/event"
	"github.com/layer-3/sentinel/core"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PendingRequest is a request waiting for a human decision. Its result is
// delivered exactly once, when the request leaves its queue.
type PendingRequest[P, R any] struct {
	ID        core.RequestID
	Origin    string
	URL       string
	SessionID string
	Payload   P
	CreatedAt time.Time

	done chan fn.Result[R]
}

// Wait blocks until the request is resolved or ctx ends. A request is never
// evicted because its waiter went away.
func (p *PendingRequest[P, R]) Wait(ctx context.Context) (R, error) {
	select {
	case res := <-p.done:
		return res.Unpack()
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (p *PendingRequest[P, R]) view() core.PendingView[P] {
	return core.PendingView[P]{
		ID:        p.ID,
		Origin:    p.Origin,
		URL:       p.URL,
		CreatedAt: p.CreatedAt,
		Payload:   p.Payload,
	}
}

// Queue holds pending requests of one kind in arrival order.
type Queue[P, R any] struct {
	name         string
	uniqueOrigin bool
	ids          *idGenerator
	clock        clock.Clock
	logger       watermill.LoggerAdapter
	onChange     func()

	mu      sync.Mutex
	order   []*PendingRequest[P, R]
	pending map[core.RequestID]*PendingRequest[P, R]

	feed event.Feed
}

func newQueue[P, R any](name string, uniqueOrigin bool, ids *idGenerator, c clock.Clock,
	logger watermill.LoggerAdapter, onChange func()) *Queue[P, R] {

	return &Queue[P, R]{
		name:         name,
		uniqueOrigin: uniqueOrigin,
		ids:          ids,
		clock:        c,
		logger:       logger.With(watermill.LogFields{"queue": name}),
		onChange:     onChange,
		pending:      make(map[core.RequestID]*PendingRequest[P, R]),
	}
}

// Enqueue adds a request. On a queue with unique origins a second request
// from an origin that is still pending fails with core.ErrDuplicate.
func (q *Queue[P, R]) Enqueue(origin, url, sessionID string, payload P) (*PendingRequest[P, R], error) {
	q.mu.Lock()
	if q.uniqueOrigin {
		for _, req := range q.order {
			if req.Origin == origin {
				q.mu.Unlock()
				return nil, fmt.Errorf("%w: the source %s", core.ErrDuplicate, url)
			}
		}
	}

	req := &PendingRequest[P, R]{
		ID:        q.ids.next(),
		Origin:    origin,
		URL:       url,
		SessionID: sessionID,
		Payload:   payload,
		CreatedAt: q.clock.Now(),
		done:      make(chan fn.Result[R], 1),
	}
	q.order = append(q.order, req)
	q.pending[req.ID] = req
	q.mu.Unlock()

	q.logger.Debug("Request queued", watermill.LogFields{
		"id":     req.ID,
		"origin": origin,
		"state":  core.StateCreated,
	})
	q.notify()

	return req, nil
}

// Resolve completes id with value.
func (q *Queue[P, R]) Resolve(id core.RequestID, value R) error {
	return q.complete(id, fn.Ok(value), core.StateApproved)
}

// Reject completes id with err.
func (q *Queue[P, R]) Reject(id core.RequestID, err error) error {
	return q.complete(id, fn.Err[R](err), core.StateRejected)
}

// Cancel rejects id with core.ErrCancelled.
func (q *Queue[P, R]) Cancel(id core.RequestID) error {
	return q.complete(id, fn.Err[R](core.ErrCancelled), core.StateCancelled)
}

// Get returns a view of a pending request without removing it.
func (q *Queue[P, R]) Get(id core.RequestID) (core.PendingView[P], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.pending[id]
	if !ok {
		return core.PendingView[P]{}, false
	}
	return req.view(), true
}

// List returns the pending requests, oldest first.
func (q *Queue[P, R]) List() []core.PendingView[P] {
	q.mu.Lock()
	defer q.mu.Unlock()

	views := make([]core.PendingView[P], 0, len(q.order))
	for _, req := range q.order {
		views = append(views, req.view())
	}
	return views
}

// Len returns the number of pending requests.
func (q *Queue[P, R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.order)
}

// Subscribe registers ch to be signalled after every change.
func (q *Queue[P, R]) Subscribe(ch chan<- struct{}) event.Subscription {
	return q.feed.Subscribe(ch)
}

func (q *Queue[P, R]) complete(id core.RequestID, res fn.Result[R], state string) error {
	q.mu.Lock()
	req, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	delete(q.pending, id)
	for i, r := range q.order {
		if r == req {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	req.done <- res

	q.logger.Debug("Request resolved", watermill.LogFields{
		"id":    id,
		"state": state,
	})
	q.notify()

	return nil
}

func (q *Queue[P, R]) notify() {
	if q.onChange != nil {
		q.onChange()
	}
	q.feed.Send(struct{}{})
}

// QueueManager owns the three confirmation queues.
type QueueManager struct {
	Auth     *Queue[core.AuthorizeRequest, bool]
	Metadata *Queue[core.MetadataDef, bool]
	Signing  *Queue[core.SignRequest, core.SignResult]
}

// NewQueueManager creates the queues. onChange runs after every change to
// any of them.
func NewQueueManager(c clock.Clock, logger watermill.LoggerAdapter, onChange func()) *QueueManager {
	ids := newIDGenerator(c)

	return &QueueManager{
		Auth:     newQueue[core.AuthorizeRequest, bool]("authorize", true, ids, c, logger, onChange),
		Metadata: newQueue[core.MetadataDef, bool]("metadata", false, ids, c, logger, onChange),
		Signing:  newQueue[core.SignRequest, core.SignResult]("signing", false, ids, c, logger, onChange),
	}
}

// Counts returns the number of pending requests per queue.
func (m *QueueManager) Counts() (auth, metadata, signing int) {
	return m.Auth.Len(), m.Metadata.Len(), m.Signing.Len()
}
