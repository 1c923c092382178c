package core

import "encoding/json"

// ProviderMeta describes an RPC provider a page may start.
type ProviderMeta struct {
	Network   string `json:"network"`
	Node      string `json:"node"`
	Source    string `json:"source"`
	Transport string `json:"transport"`
}

// RPCSendRequest forwards a single JSON-RPC call.
type RPCSendRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// RPCSubscribeRequest opens a node subscription. Namespace selects the
// "<namespace>_subscribe" method, Type names the subscription.
type RPCSubscribeRequest struct {
	Type      string            `json:"type"`
	Namespace string            `json:"namespace"`
	Params    []json.RawMessage `json:"params"`
}

// RPCUnsubscribeRequest closes a subscription opened by RPCSubscribeRequest.
type RPCUnsubscribeRequest struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
}

// NotificationMode controls how the approval UI is surfaced.
type NotificationMode string

const (
	NotificationNormal    NotificationMode = "normal"
	NotificationWindow    NotificationMode = "window"
	NotificationExtension NotificationMode = "extension"
)

// Valid reports whether m is a known mode.
func (m NotificationMode) Valid() bool {
	switch m {
	case NotificationNormal, NotificationWindow, NotificationExtension:
		return true
	}
	return false
}
