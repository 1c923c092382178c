package core

import "errors"

var (
	ErrUnauthorized    = errors.New("origin has not been authorized")
	ErrNotAllowed      = errors.New("origin is not allowed to interact with this extension")
	ErrDuplicate       = errors.New("origin has a pending authorization request")
	ErrNotFound        = errors.New("not found")
	ErrInvalidPassword = errors.New("unable to decode using the supplied passphrase")
	ErrPasswordNeeded  = errors.New("Password needed to unlock the account")
	ErrProviderUnset   = errors.New("cannot call before the provider is started")
	ErrRejected        = errors.New("rejected")
	ErrCancelled       = errors.New("cancelled")
	ErrInvalidOrigin   = errors.New("invalid url, expected to start with http:, https:, ipfs: or ipns:")
	ErrForbidden       = errors.New("message kind is restricted to the extension")
	ErrUnknownKind     = errors.New("unknown message kind")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrSessionClosed   = errors.New("session is closed")
)
