package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// MetadataKey is the Store key holding approved chain metadata.
const MetadataKey = "metadata"

// MetadataStore keeps the chain metadata the user approved, keyed by genesis
// hash.
type MetadataStore struct {
	store  ports.Store
	logger watermill.LoggerAdapter

	writeMu sync.Mutex
	mu      sync.RWMutex
	defs    map[string]core.MetadataDef
}

// NewMetadataStore creates an empty store.
func NewMetadataStore(store ports.Store, logger watermill.LoggerAdapter) *MetadataStore {
	return &MetadataStore{
		store:  store,
		logger: logger.With(watermill.LogFields{"component": "metadata_store"}),
		defs:   make(map[string]core.MetadataDef),
	}
}

// Load reads persisted definitions.
func (m *MetadataStore) Load(ctx context.Context) error {
	data, ok, err := m.store.Get(ctx, MetadataKey)
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	if !ok {
		return nil
	}

	defs := make(map[string]core.MetadataDef)
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}

	m.mu.Lock()
	m.defs = defs
	m.mu.Unlock()

	return nil
}

// Save stores def, replacing any definition with the same genesis hash.
func (m *MetadataStore) Save(ctx context.Context, def core.MetadataDef) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	next := make(map[string]core.MetadataDef, len(m.defs)+1)
	for k, v := range m.defs {
		next[k] = v
	}
	m.mu.RUnlock()
	next[def.GenesisHash] = def

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := m.store.Set(ctx, MetadataKey, data); err != nil {
		m.logger.Error("Failed to persist metadata", err, watermill.LogFields{
			"genesis_hash": def.GenesisHash,
		})
		return fmt.Errorf("failed to persist metadata: %w", err)
	}

	m.mu.Lock()
	m.defs = next
	m.mu.Unlock()

	return nil
}

// Get returns the definition for genesisHash.
func (m *MetadataStore) Get(genesisHash string) (core.MetadataDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.defs[genesisHash]
	return def, ok
}

// List returns every definition ordered by chain name.
func (m *MetadataStore) List() []core.MetadataDef {
	m.mu.RLock()
	defs := make([]core.MetadataDef, 0, len(m.defs))
	for _, def := range m.defs {
		defs = append(defs, def)
	}
	m.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Chain == defs[j].Chain {
			return defs[i].GenesisHash < defs[j].GenesisHash
		}
		return defs[i].Chain < defs[j].Chain
	})
	return defs
}
