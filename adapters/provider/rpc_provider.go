package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// Source is reported in the meta of every configured provider
const Source = "sentinel"

// RPCProvider implements the Provider interface with a go-ethereum RPC client
type RPCProvider struct {
	client *rpc.Client

	closeOnce    sync.Once
	disconnected chan struct{}
}

// NewRPCProvider wraps an already dialed client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{
		client:       client,
		disconnected: make(chan struct{}),
	}
}

// Send performs a single JSON-RPC call
func (p *RPCProvider) Send(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, toArgs(params)...); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}

	return result, nil
}

// Subscribe calls <namespace>_subscribe and forwards notifications to cb
func (p *RPCProvider) Subscribe(ctx context.Context, namespace string, params []json.RawMessage,
	cb func(json.RawMessage)) (func(), error) {

	ch := make(chan json.RawMessage, 16)
	sub, err := p.client.Subscribe(ctx, namespace, ch, toArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("%s_subscribe failed: %w", namespace, err)
	}

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case msg := <-ch:
				cb(msg)
			case err := <-sub.Err():
				// The channel is closed by Unsubscribe; an error
				// means the connection itself went away.
				if err != nil && !errors.Is(err, rpc.ErrClientQuit) {
					p.markDisconnected()
				}
				return
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(quit)
			sub.Unsubscribe()
		})
	}

	return cancel, nil
}

// Disconnected is closed once the client is gone
func (p *RPCProvider) Disconnected() <-chan struct{} {
	return p.disconnected
}

// Disconnect closes the client
func (p *RPCProvider) Disconnect() {
	p.client.Close()
	p.markDisconnected()
}

func (p *RPCProvider) markDisconnected() {
	p.closeOnce.Do(func() { close(p.disconnected) })
}

func toArgs(params []json.RawMessage) []interface{} {
	args := make([]interface{}, len(params))
	for i, param := range params {
		args[i] = param
	}
	return args
}

// RPCFactory dials the configured node endpoints
type RPCFactory struct {
	endpoints map[string]string
}

// NewRPCFactory creates a factory for key -> endpoint URL
func NewRPCFactory(endpoints map[string]string) ports.ProviderFactory {
	copied := make(map[string]string, len(endpoints))
	for key, url := range endpoints {
		copied[key] = url
	}

	return &RPCFactory{endpoints: copied}
}

// Providers returns the meta of every configured endpoint
func (f *RPCFactory) Providers() map[string]core.ProviderMeta {
	metas := make(map[string]core.ProviderMeta, len(f.endpoints))
	for key, url := range f.endpoints {
		metas[key] = core.ProviderMeta{
			Network:   key,
			Node:      url,
			Source:    Source,
			Transport: transportOf(url),
		}
	}
	return metas
}

// Dial connects to the endpoint configured under key
func (f *RPCFactory) Dial(ctx context.Context, key string) (ports.Provider, error) {
	url, ok := f.endpoints[key]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s", core.ErrNotFound, key)
	}

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return NewRPCProvider(client), nil
}

func transportOf(url string) string {
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return "WsProvider"
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return "HttpProvider"
	}
	return "IpcProvider"
}
