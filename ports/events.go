package ports

import (
	"context"

	"github.com/layer-3/sentinel/core"
)

// ApprovalUI is the surface that shows pending requests to the user.
type ApprovalUI interface {
	SetBadge(ctx context.Context, text string) error
	Open(ctx context.Context, mode core.NotificationMode) error
	Close(ctx context.Context) error
}

// Sink receives responses for one session. Send must not block.
type Sink interface {
	Send(resp core.Response)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(resp core.Response)

// Send calls f(resp).
func (f SinkFunc) Send(resp core.Response) {
	f(resp)
}
