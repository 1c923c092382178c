package ports

import (
	"context"
	"encoding/json"

	"github.com/layer-3/sentinel/core"
)

// Provider is a live connection to a blockchain node.
type Provider interface {
	Send(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)

	// Subscribe opens a node subscription and calls cb for every
	// notification until the returned cancel function runs.
	Subscribe(ctx context.Context, namespace string, params []json.RawMessage,
		cb func(json.RawMessage)) (cancel func(), err error)

	// Disconnected is closed once the node connection is gone.
	Disconnected() <-chan struct{}

	Disconnect()
}

// ProviderFactory knows the configured providers and dials them.
type ProviderFactory interface {
	Providers() map[string]core.ProviderMeta
	Dial(ctx context.Context, key string) (Provider, error)
}
