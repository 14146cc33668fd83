package configstore

import (
	"context"
	"sync"

	"github.com/modwatch/modwatch/internal/types"
)

// MemoryStore is an in-process Store for tests and single-node deployments
// without Redis. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[types.EntityID]types.GuildSettings
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[types.EntityID]types.GuildSettings)}
}

// Set replaces the settings record for guildID.
func (s *MemoryStore) Set(guildID types.EntityID, settings types.GuildSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[guildID] = settings
}

// Settings returns the stored record for guildID, or zero-value settings.
func (s *MemoryStore) Settings(_ context.Context, guildID types.EntityID) (types.GuildSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[guildID], nil
}
