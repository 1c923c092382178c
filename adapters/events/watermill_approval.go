package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

const (
	// BadgeTopic carries badge text updates
	BadgeTopic = "sentinel.approval.badge"

	// OpenTopic asks the approval UI to show itself
	OpenTopic = "sentinel.approval.open"

	// CloseTopic asks the approval UI to close every window it opened
	CloseTopic = "sentinel.approval.close"
)

// BadgeEvent represents a badge update
type BadgeEvent struct {
	Text string `json:"text"`
}

// OpenEvent represents a request to open the approval UI. Token admits the
// window to the extension port.
type OpenEvent struct {
	Mode  core.NotificationMode `json:"mode"`
	Token string                `json:"token,omitempty"`
}

// CloseEvent represents a request to close the approval UI
type CloseEvent struct{}

// WatermillApproval implements the ApprovalUI interface by publishing
// events that the UI process consumes
type WatermillApproval struct {
	publisher message.Publisher
	tokenizer ports.Tokenizer
	tokenTTL  time.Duration
}

// NewWatermillApproval creates a new approval UI bridge. tokenizer may be nil,
// in which case open events carry no token.
func NewWatermillApproval(publisher message.Publisher, tokenizer ports.Tokenizer,
	tokenTTL time.Duration) ports.ApprovalUI {

	return &WatermillApproval{
		publisher: publisher,
		tokenizer: tokenizer,
		tokenTTL:  tokenTTL,
	}
}

// SetBadge publishes a badge event
func (a *WatermillApproval) SetBadge(ctx context.Context, text string) error {
	return a.publish(ctx, BadgeTopic, BadgeEvent{Text: text})
}

// Open publishes an open event
func (a *WatermillApproval) Open(ctx context.Context, mode core.NotificationMode) error {
	event := OpenEvent{Mode: mode}

	if a.tokenizer != nil {
		token, err := a.tokenizer.IssueExtensionToken(a.tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue extension token: %w", err)
		}
		event.Token = token
	}

	return a.publish(ctx, OpenTopic, event)
}

// Close publishes a close event
func (a *WatermillApproval) Close(ctx context.Context) error {
	return a.publish(ctx, CloseTopic, CloseEvent{})
}

func (a *WatermillApproval) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)

	if err := a.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
