package sentinel

import (
	"context"
	"encoding/json"
)

// Caller represents the public interface for talking to a broker
type Caller interface {
	// Call sends one request and decodes its response into result
	Call(ctx context.Context, kind string, payload, result interface{}) error

	// Subscribe sends a streaming request; onUpdate receives every
	// subscription message until the client closes
	Subscribe(ctx context.Context, kind string, payload, result interface{},
		onUpdate func(json.RawMessage)) error

	// Close closes the connection
	Close() error
}
