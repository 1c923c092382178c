package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
)

type requestIDPayload struct {
	ID core.RequestID `json:"id"`
}

type authorizeApprovePayload struct {
	ID       core.RequestID `json:"id"`
	Accounts []string       `json:"accounts"`
}

type authorizeRejectPayload struct {
	ID       core.RequestID `json:"id"`
	Remember bool           `json:"remember"`
}

type authorizeUpdatePayload struct {
	Diff map[string][]string `json:"diff"`
}

type authorizeRemovePayload struct {
	Origin string `json:"origin"`
}

// handleAuthorize answers false for an origin seen before and otherwise
// queues the request until the user decides.
func (b *Broker) handleAuthorize(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.AuthorizeRequest](req.env)
	if err != nil {
		return nil, err
	}

	origin, err := core.StripURL(req.env.Origin)
	if err != nil {
		return nil, err
	}

	b.decideMu.Lock()
	if info, ok := b.auth.Get(origin); ok {
		b.decideMu.Unlock()

		if info.Denied {
			return nil, fmt.Errorf("%w: the source %s", core.ErrNotAllowed, req.env.Origin)
		}
		if err := b.auth.CountRequest(ctx, origin); err != nil {
			b.logger.Error("Failed to count request", err, watermill.LogFields{"origin": origin})
		}
		return false, nil
	}

	pending, err := b.queues.Auth.Enqueue(origin, req.env.Origin, req.session.ID, payload)
	b.decideMu.Unlock()
	if err != nil {
		return nil, err
	}

	return pending.Wait(ctx)
}

func (b *Broker) handleAuthorizeApprove(ctx context.Context, req request) (any, error) {
	payload, err := decode[authorizeApprovePayload](req.env)
	if err != nil {
		return nil, err
	}

	b.decideMu.Lock()
	defer b.decideMu.Unlock()

	pending, ok := b.queues.Auth.Get(payload.ID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", core.ErrNotFound, payload.ID)
	}

	// The decision is persisted first so a failed write leaves the request
	// pending for another attempt.
	if err := b.auth.RecordDecision(ctx, pending.Origin, pending.URL, payload.Accounts, false); err != nil {
		return nil, err
	}

	return true, b.queues.Auth.Resolve(payload.ID, true)
}

func (b *Broker) handleAuthorizeReject(ctx context.Context, req request) (any, error) {
	payload, err := decode[authorizeRejectPayload](req.env)
	if err != nil {
		return nil, err
	}

	b.decideMu.Lock()
	defer b.decideMu.Unlock()

	pending, ok := b.queues.Auth.Get(payload.ID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", core.ErrNotFound, payload.ID)
	}

	if payload.Remember {
		if err := b.auth.RecordDecision(ctx, pending.Origin, pending.URL, nil, true); err != nil {
			return nil, err
		}
	}

	return true, b.queues.Auth.Reject(payload.ID, core.ErrRejected)
}

func (b *Broker) handleAuthorizeUpdate(ctx context.Context, req request) (any, error) {
	payload, err := decode[authorizeUpdatePayload](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.auth.UpdateAuthorizedAccounts(ctx, payload.Diff)
}

func (b *Broker) handleAuthorizeList(context.Context, request) (any, error) {
	return b.auth.List(), nil
}

func (b *Broker) handleAuthorizeRemove(ctx context.Context, req request) (any, error) {
	payload, err := decode[authorizeRemovePayload](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.auth.Remove(ctx, payload.Origin)
}
