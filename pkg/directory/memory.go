package directory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/CuBnIcK/warfacebot/pkg/model"
)

// Memory is an in-memory Directory. It mirrors SQL validation.
type Memory struct {
	mu       sync.RWMutex
	channels map[string]model.Channel
}

// NewMemory creates an empty Memory directory.
func NewMemory(channels ...model.Channel) *Memory {
	m := &Memory{channels: make(map[string]model.Channel)}
	for _, ch := range channels {
		m.channels[ch.Resource] = ch
	}
	return m
}

// Lookup returns a copy of the entry for resource, or nil.
func (m *Memory) Lookup(resource string) (*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[resource]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

// List returns all entries ordered by server id then resource.
func (m *Memory) List() ([]model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServerID != out[j].ServerID {
			return out[i].ServerID < out[j].ServerID
		}
		return out[i].Resource < out[j].Resource
	})
	return out, nil
}

// Upsert stores or replaces an entry.
func (m *Memory) Upsert(ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("directory: upsert: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Resource] = *ch
	return nil
}

// Delete removes an entry. Unknown resources are ignored.
func (m *Memory) Delete(resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, resource)
	return nil
}

// Close is a no-op for Memory.
func (m *Memory) Close() error {
	return nil
}
