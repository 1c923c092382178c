package service

import (
	"context"
	"fmt"

	"github.com/layer-3/sentinel/core"
)

func (b *Broker) handleMetadataProvide(ctx context.Context, req request) (any, error) {
	def, err := decode[core.MetadataDef](req.env)
	if err != nil {
		return nil, err
	}
	if def.GenesisHash == "" {
		return nil, fmt.Errorf("%w: metadata without genesis hash", core.ErrInvalidPayload)
	}

	pending, err := b.queues.Metadata.Enqueue(req.auth.Origin, req.env.Origin, req.session.ID, def)
	if err != nil {
		return nil, err
	}

	return pending.Wait(ctx)
}

func (b *Broker) handleMetadataList(context.Context, request) (any, error) {
	return b.metadata.List(), nil
}

func (b *Broker) handleMetadataApprove(ctx context.Context, req request) (any, error) {
	payload, err := decode[requestIDPayload](req.env)
	if err != nil {
		return nil, err
	}

	pending, ok := b.queues.Metadata.Get(payload.ID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", core.ErrNotFound, payload.ID)
	}

	if err := b.metadata.Save(ctx, pending.Payload); err != nil {
		return nil, err
	}

	return true, b.queues.Metadata.Resolve(payload.ID, true)
}

func (b *Broker) handleMetadataReject(ctx context.Context, req request) (any, error) {
	payload, err := decode[requestIDPayload](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.queues.Metadata.Reject(payload.ID, core.ErrRejected)
}
