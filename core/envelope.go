package core

import "encoding/json"

// Message kinds sent by pages.
const (
	KindAuthorize             = "authorize"
	KindAccountsList          = "accounts.list"
	KindAccountsSubscribe     = "accounts.subscribe"
	KindAccountsUnsubscribe   = "accounts.unsubscribe"
	KindMetadataProvide       = "metadata.provide"
	KindMetadataList          = "metadata.list"
	KindBytesSign             = "bytes.sign"
	KindExtrinsicSign         = "extrinsic.sign"
	KindRPCListProviders      = "rpc.listProviders"
	KindRPCStartProvider      = "rpc.startProvider"
	KindRPCSend               = "rpc.send"
	KindRPCSubscribe          = "rpc.subscribe"
	KindRPCUnsubscribe        = "rpc.unsubscribe"
	KindRPCSubscribeConnected = "rpc.subscribeConnected"
	KindPing                  = "ping"
)

// Message kinds only accepted from the extension itself.
const (
	KindAuthorizeApprove        = "authorize.approve"
	KindAuthorizeReject         = "authorize.reject"
	KindAuthorizeUpdate         = "authorize.update"
	KindAuthorizeList           = "authorize.list"
	KindAuthorizeRemove         = "authorize.remove"
	KindAuthorizeRequests       = "authorize.requests"
	KindMetadataApprove         = "metadata.approve"
	KindMetadataReject          = "metadata.reject"
	KindMetadataRequests        = "metadata.requests"
	KindSigningApprovePassword  = "signing.approve.password"
	KindSigningApproveSignature = "signing.approve.signature"
	KindSigningCancel           = "signing.cancel"
	KindSigningIsLocked         = "signing.isLocked"
	KindSigningRequests         = "signing.requests"
	KindSettingsNotification    = "settings.notification"
)

// Envelope is a request travelling from a page or the extension to the broker.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Origin    string          `json:"origin"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response travels back on the session an Envelope arrived on. Streaming
// kinds emit further responses with only Subscription set.
type Response struct {
	ID           string `json:"id"`
	Response     any    `json:"response,omitempty"`
	Error        string `json:"error,omitempty"`
	Subscription any    `json:"subscription,omitempty"`
}

// SubscriptionKey identifies a stream within a session. Ids are only unique
// within a type.
type SubscriptionKey struct {
	Type string
	ID   string
}
