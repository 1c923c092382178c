package ports

import (
	"context"

	"github.com/layer-3/sentinel/core"
)

// Keyring holds the user's keypairs. Implementations return core.ErrNotFound
// for unknown addresses and core.ErrInvalidPassword when a password does not
// decode the pair.
type Keyring interface {
	Accounts(ctx context.Context) ([]core.Account, error)
	IsLocked(address string) (bool, error)
	Unlock(ctx context.Context, address, password string) error
	Lock(address string) error

	// Sign signs msg with an unlocked pair and returns the hex signature.
	Sign(ctx context.Context, address string, msg []byte) (string, error)
}
