package core

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RequestID identifies a pending request. It has the form "<unix-ms>.<n>"
// where n is a process-wide counter, so ids are never reused.
type RequestID string

// Request states. Resolved is terminal.
const (
	StateCreated   = "created"
	StateApproved  = "approved"
	StateRejected  = "rejected"
	StateCancelled = "cancelled"
)

// AuthorizeRequest is sent by a page asking to connect.
type AuthorizeRequest struct {
	// Origin is the display name the dApp gives itself.
	Origin string `json:"origin"`
}

// SignKind distinguishes the two signing payload shapes.
type SignKind string

const (
	SignKindBytes     SignKind = "bytes"
	SignKindExtrinsic SignKind = "extrinsic"
)

// ExtrinsicPayload is the chain-agnostic description of a transaction to
// sign. Encoding it for a particular chain is left to the keyring.
type ExtrinsicPayload struct {
	Address            string        `json:"address"`
	BlockHash          string        `json:"blockHash"`
	BlockNumber        string        `json:"blockNumber"`
	Era                string        `json:"era"`
	GenesisHash        string        `json:"genesisHash"`
	Method             hexutil.Bytes `json:"method"`
	Nonce              string        `json:"nonce"`
	SpecVersion        string        `json:"specVersion"`
	Tip                string        `json:"tip"`
	TransactionVersion string        `json:"transactionVersion"`
	SignedExtensions   []string      `json:"signedExtensions"`
	Version            int           `json:"version"`
}

// BytesPayload is a raw message to sign.
type BytesPayload struct {
	Address string        `json:"address"`
	Data    hexutil.Bytes `json:"data"`
	Type    string        `json:"type,omitempty"`
}

// SignRequest is the payload held by the signing queue.
type SignRequest struct {
	Kind      SignKind          `json:"kind"`
	Address   string            `json:"address"`
	Bytes     *BytesPayload     `json:"bytes,omitempty"`
	Extrinsic *ExtrinsicPayload `json:"extrinsic,omitempty"`
}

// Message returns the bytes handed to the keyring.
func (r SignRequest) Message() ([]byte, error) {
	switch r.Kind {
	case SignKindBytes:
		if r.Bytes == nil {
			return nil, ErrInvalidPayload
		}
		return r.Bytes.Data, nil
	case SignKindExtrinsic:
		if r.Extrinsic == nil {
			return nil, ErrInvalidPayload
		}
		return json.Marshal(r.Extrinsic)
	}
	return nil, ErrInvalidPayload
}

// SignResult is what a page receives once a signing request is approved.
type SignResult struct {
	ID        RequestID `json:"id"`
	Signature string    `json:"signature"`
}

// MetadataDef describes a chain as provided by a dApp.
type MetadataDef struct {
	Chain         string          `json:"chain"`
	GenesisHash   string          `json:"genesisHash"`
	Icon          string          `json:"icon,omitempty"`
	SS58Format    int             `json:"ss58Format"`
	SpecVersion   int             `json:"specVersion"`
	TokenDecimals int             `json:"tokenDecimals"`
	TokenSymbol   string          `json:"tokenSymbol"`
	Types         json.RawMessage `json:"types,omitempty"`
}

// PendingView is the read-only projection of a pending request shown by the
// approval UI.
type PendingView[P any] struct {
	ID        RequestID `json:"id"`
	Origin    string    `json:"origin"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   P         `json:"payload"`
}
