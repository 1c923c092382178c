package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
)

type approvePasswordPayload struct {
	ID       core.RequestID `json:"id"`
	Password string         `json:"password"`
	SavePass bool           `json:"savePass"`
}

type approveSignaturePayload struct {
	ID        core.RequestID `json:"id"`
	Signature string         `json:"signature"`
}

type isLockedResponse struct {
	IsLocked      bool  `json:"isLocked"`
	RemainingTime int64 `json:"remainingTime"`
}

func (b *Broker) handleBytesSign(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.BytesPayload](req.env)
	if err != nil {
		return nil, err
	}

	return b.sign(ctx, req, core.SignRequest{
		Kind:    core.SignKindBytes,
		Address: payload.Address,
		Bytes:   &payload,
	})
}

func (b *Broker) handleExtrinsicSign(ctx context.Context, req request) (any, error) {
	payload, err := decode[core.ExtrinsicPayload](req.env)
	if err != nil {
		return nil, err
	}

	return b.sign(ctx, req, core.SignRequest{
		Kind:      core.SignKindExtrinsic,
		Address:   payload.Address,
		Extrinsic: &payload,
	})
}

// sign queues a signing request for an address the origin may use and waits
// for the user.
func (b *Broker) sign(ctx context.Context, req request, sr core.SignRequest) (any, error) {
	if _, err := b.keyring.IsLocked(sr.Address); err != nil {
		return nil, fmt.Errorf("unable to find keypair: %w", err)
	}
	if !req.auth.IsAuthorized(sr.Address) {
		return nil, fmt.Errorf("%w: account %s", core.ErrUnauthorized, sr.Address)
	}

	pending, err := b.queues.Signing.Enqueue(req.auth.Origin, req.env.Origin, req.session.ID, sr)
	if err != nil {
		return nil, err
	}

	return pending.Wait(ctx)
}

// handleSigningApprovePassword unlocks the pair if needed, signs, and
// resolves the request. A wrong password leaves the request pending.
func (b *Broker) handleSigningApprovePassword(ctx context.Context, req request) (any, error) {
	payload, err := decode[approvePasswordPayload](req.env)
	if err != nil {
		return nil, err
	}

	pending, ok := b.queues.Signing.Get(payload.ID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", core.ErrNotFound, payload.ID)
	}
	address := pending.Payload.Address

	b.passwords.Touch(address)

	locked, err := b.keyring.IsLocked(address)
	if err != nil {
		if isNotFound(err) {
			err = fmt.Errorf("unable to find pair: %w", err)
			if rerr := b.queues.Signing.Reject(payload.ID, err); rerr != nil {
				b.logger.Debug("Request already gone", watermill.LogFields{"id": payload.ID})
			}
		}
		return nil, err
	}

	if locked && payload.Password == "" {
		return nil, core.ErrPasswordNeeded
	}

	if locked {
		if err := b.keyring.Unlock(ctx, address, payload.Password); err != nil {
			if lerr := b.keyring.Lock(address); lerr != nil {
				b.logger.Error("Failed to lock pair", lerr, watermill.LogFields{"address": address})
			}
			if errors.Is(err, core.ErrInvalidPassword) {
				return nil, core.ErrInvalidPassword
			}
			return nil, err
		}
	}

	msg, err := pending.Payload.Message()
	if err != nil {
		return nil, err
	}

	signature, err := b.keyring.Sign(ctx, address, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	if payload.SavePass {
		b.passwords.Remember(address)
	} else {
		b.passwords.Forget(address)
		if err := b.keyring.Lock(address); err != nil {
			b.logger.Error("Failed to lock pair", err, watermill.LogFields{"address": address})
		}
	}

	return true, b.queues.Signing.Resolve(payload.ID, core.SignResult{
		ID:        payload.ID,
		Signature: signature,
	})
}

// handleSigningApproveSignature resolves a request signed outside the
// keyring, by a hardware or QR signer.
func (b *Broker) handleSigningApproveSignature(ctx context.Context, req request) (any, error) {
	payload, err := decode[approveSignaturePayload](req.env)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(payload.Signature, "0x") {
		return nil, fmt.Errorf("%w: signature must be hex", core.ErrInvalidPayload)
	}

	return true, b.queues.Signing.Resolve(payload.ID, core.SignResult{
		ID:        payload.ID,
		Signature: payload.Signature,
	})
}

func (b *Broker) handleSigningCancel(ctx context.Context, req request) (any, error) {
	payload, err := decode[requestIDPayload](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.queues.Signing.Cancel(payload.ID)
}

func (b *Broker) handleSigningIsLocked(ctx context.Context, req request) (any, error) {
	payload, err := decode[requestIDPayload](req.env)
	if err != nil {
		return nil, err
	}

	pending, ok := b.queues.Signing.Get(payload.ID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", core.ErrNotFound, payload.ID)
	}

	remaining := b.passwords.Touch(pending.Payload.Address)
	locked, err := b.keyring.IsLocked(pending.Payload.Address)
	if err != nil {
		return nil, err
	}

	return isLockedResponse{
		IsLocked:      locked,
		RemainingTime: remaining.Milliseconds(),
	}, nil
}

func (b *Broker) handleSettingsNotification(ctx context.Context, req request) (any, error) {
	payload, err := decode[struct {
		Mode core.NotificationMode `json:"mode"`
	}](req.env)
	if err != nil {
		return nil, err
	}

	return true, b.popup.SetNotification(ctx, payload.Mode)
}
