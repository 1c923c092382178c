package service

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/ports"
	"github.com/lightningnetwork/lnd/clock"
)

// PasswordExpiry is how long a remembered password keeps an account unlocked.
const PasswordExpiry = 15 * time.Minute

// PasswordCache remembers which accounts were unlocked with "remember"
// requested. Expired entries are evicted lazily on Touch.
type PasswordCache struct {
	keyring ports.Keyring
	clock   clock.Clock
	logger  watermill.LoggerAdapter

	mu       sync.Mutex
	unlocked map[string]time.Time
}

// NewPasswordCache creates an empty cache.
func NewPasswordCache(keyring ports.Keyring, c clock.Clock, logger watermill.LoggerAdapter) *PasswordCache {
	return &PasswordCache{
		keyring:  keyring,
		clock:    c,
		logger:   logger.With(watermill.LogFields{"component": "password_cache"}),
		unlocked: make(map[string]time.Time),
	}
}

// Touch returns how long address stays unlocked. Once that time has run out
// the entry is dropped and the pair is locked again in the keyring.
func (p *PasswordCache) Touch(address string) time.Duration {
	p.mu.Lock()
	until := p.unlocked[address]
	remaining := until.Sub(p.clock.Now())
	if remaining > 0 {
		p.mu.Unlock()
		return remaining
	}
	delete(p.unlocked, address)
	p.mu.Unlock()

	if err := p.keyring.Lock(address); err != nil {
		p.logger.Debug("Failed to lock expired pair", watermill.LogFields{
			"address": address,
			"err":     err.Error(),
		})
	}

	return 0
}

// Remember keeps address unlocked for PasswordExpiry.
func (p *PasswordCache) Remember(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unlocked[address] = p.clock.Now().Add(PasswordExpiry)
}

// Forget drops address from the cache immediately.
func (p *PasswordCache) Forget(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.unlocked, address)
}
