package service

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
)

const accountsSubscription = "accounts"

func (b *Broker) handleAccountsList(ctx context.Context, req request) (any, error) {
	all, err := b.keyring.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return req.auth.FilterAccounts(all), nil
}

// handleAccountsSubscribe streams the origin's visible accounts, now and
// after every authorization change.
func (b *Broker) handleAccountsSubscribe(ctx context.Context, req request) (any, error) {
	origin := req.auth.Origin
	key := core.SubscriptionKey{Type: accountsSubscription, ID: req.env.ID}
	sessionID := req.session.ID

	updates := make(chan AuthSnapshot, 1)
	sub := b.auth.Subscribe(updates)
	quit := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(quit) }) }

	if err := b.sessions.AddSubscription(sessionID, key, stop); err != nil {
		sub.Unsubscribe()
		return nil, err
	}

	push := func(info core.AuthUrlInfo) {
		all, err := b.keyring.Accounts(context.Background())
		if err != nil {
			b.logger.Error("Failed to list accounts", err, watermill.LogFields{"origin": origin})
			return
		}
		b.sessions.Deliver(sessionID, key, core.Response{
			ID:           req.env.ID,
			Subscription: info.FilterAccounts(all),
		})
	}

	// Read after subscribing: later changes wait in updates and land after
	// the initial list.
	current, _ := b.auth.Get(origin)
	push(current)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case snap := <-updates:
				// A removed origin sees no accounts.
				push(snap[origin])
			case <-sub.Err():
				return
			case <-quit:
				return
			}
		}
	}()

	return req.env.ID, nil
}

func (b *Broker) handleAccountsUnsubscribe(ctx context.Context, req request) (any, error) {
	payload, err := decode[struct {
		ID string `json:"id"`
	}](req.env)
	if err != nil {
		return nil, err
	}

	key := core.SubscriptionKey{Type: accountsSubscription, ID: payload.ID}
	return true, b.sessions.RemoveSubscription(req.session.ID, key)
}

// streamQueue sends the queue's pending requests to the session now and
// after every change, until the session closes.
func streamQueue[P, R any](sessions *SessionRegistry, req request, q *Queue[P, R]) error {
	sessionID := req.session.ID
	key := core.SubscriptionKey{Type: req.env.Kind, ID: req.env.ID}

	signal := make(chan struct{}, 1)
	sub := q.Subscribe(signal)
	quit := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(quit) }) }

	if err := sessions.AddSubscription(sessionID, key, stop); err != nil {
		sub.Unsubscribe()
		return err
	}

	push := func() {
		sessions.Deliver(sessionID, key, core.Response{
			ID:           req.env.ID,
			Subscription: q.List(),
		})
	}

	push()

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-signal:
				push()
			case <-sub.Err():
				return
			case <-quit:
				return
			}
		}
	}()

	return nil
}
