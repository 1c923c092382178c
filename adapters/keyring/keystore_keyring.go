package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// AccountType is reported for every keystore account
const AccountType = "ethereum"

// KeystoreKeyring implements the Keyring interface on top of an encrypted
// go-ethereum key store directory
type KeystoreKeyring struct {
	ks *keystore.KeyStore

	mu       sync.Mutex
	unlocked map[common.Address]struct{}
}

// NewKeystoreKeyring wraps ks
func NewKeystoreKeyring(ks *keystore.KeyStore) ports.Keyring {
	return &KeystoreKeyring{
		ks:       ks,
		unlocked: make(map[common.Address]struct{}),
	}
}

// Accounts lists every key in the store
func (k *KeystoreKeyring) Accounts(ctx context.Context) ([]core.Account, error) {
	accs := k.ks.Accounts()
	out := make([]core.Account, 0, len(accs))
	for _, acc := range accs {
		out = append(out, core.Account{
			Address: acc.Address.Hex(),
			Type:    AccountType,
		})
	}
	return out, nil
}

// IsLocked reports whether the key must be decrypted before signing
func (k *KeystoreKeyring) IsLocked(address string) (bool, error) {
	acc, err := k.find(address)
	if err != nil {
		return false, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, ok := k.unlocked[acc.Address]
	return !ok, nil
}

// Unlock decrypts the key with password
func (k *KeystoreKeyring) Unlock(ctx context.Context, address, password string) error {
	acc, err := k.find(address)
	if err != nil {
		return err
	}

	if err := k.ks.Unlock(acc, password); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return core.ErrInvalidPassword
		}
		return fmt.Errorf("failed to unlock %s: %w", address, err)
	}

	k.mu.Lock()
	k.unlocked[acc.Address] = struct{}{}
	k.mu.Unlock()

	return nil
}

// Lock drops the decrypted key from memory
func (k *KeystoreKeyring) Lock(address string) error {
	acc, err := k.find(address)
	if err != nil {
		return err
	}

	k.mu.Lock()
	delete(k.unlocked, acc.Address)
	k.mu.Unlock()

	return k.ks.Lock(acc.Address)
}

// Sign signs the EIP-191 text hash of msg
func (k *KeystoreKeyring) Sign(ctx context.Context, address string, msg []byte) (string, error) {
	acc, err := k.find(address)
	if err != nil {
		return "", err
	}

	sig, err := k.ks.SignHash(acc, accounts.TextHash(msg))
	if err != nil {
		return "", fmt.Errorf("failed to sign with %s: %w", address, err)
	}

	return hexutil.Encode(sig), nil
}

func (k *KeystoreKeyring) find(address string) (accounts.Account, error) {
	if !common.IsHexAddress(address) {
		return accounts.Account{}, fmt.Errorf("%w: keypair %s", core.ErrNotFound, address)
	}

	acc, err := k.ks.Find(accounts.Account{Address: common.HexToAddress(address)})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: keypair %s", core.ErrNotFound, address)
	}

	return acc, nil
}
