package service

import (
	"context"
	"fmt"

	"github.com/layer-3/sentinel/core"
)

func (b *Broker) handleRPCListProviders(context.Context, request) (any, error) {
	return b.providers.Providers(), nil
}

func (b *Broker) handleRPCStartProvider(ctx context.Context, req request) (any, error) {
	key, err := decode[string](req.env)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: provider key required", core.ErrInvalidPayload)
	}

	return b.providers.Start(ctx, req.session.ID, key)
}

func (b *Broker) handleRPCSend(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.RPCSendRequest](req.env)
	if err != nil {
		return nil, err
	}

	return b.providers.Send(ctx, req.session.ID, payload)
}

func (b *Broker) handleRPCSubscribe(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.RPCSubscribeRequest](req.env)
	if err != nil {
		return nil, err
	}

	return b.providers.Subscribe(ctx, req.session.ID, req.env.ID, payload)
}

func (b *Broker) handleRPCUnsubscribe(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.RPCUnsubscribeRequest](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.providers.Unsubscribe(req.session.ID, payload)
}

func (b *Broker) handleRPCSubscribeConnected(ctx context.Context, req request) (any, error) {
	return true, b.providers.SubscribeConnected(req.session.ID, req.env.ID)
}
