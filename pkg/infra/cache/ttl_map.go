package cache

import (
	"sync"
	"time"
)

// TTLEntry represents an entry in TTLMap
type TTLEntry struct {
	Value     interface{}
	ExpiresAt time.Time
}

// TTLMap is a thread-safe map with TTL for each entry
type TTLMap struct {
	Data map[string]*TTLEntry
	Mu   sync.RWMutex
	TTL  time.Duration

	// now is swappable so expiry can be tested deterministically.
	now func() time.Time
}

// NewTTLMap creates a new TTLMap with the specified TTL
func NewTTLMap(ttl time.Duration) *TTLMap {
	return &TTLMap{
		Data: make(map[string]*TTLEntry),
		TTL:  ttl,
		now:  time.Now,
	}
}

// WithTimeProvider replaces the clock. Test hook.
func (m *TTLMap) WithTimeProvider(now func() time.Time) *TTLMap {
	m.now = now
	return m
}

// Get retrieves a value from the TTLMap if it hasn't expired
func (m *TTLMap) Get(key string) (interface{}, bool) {
	m.Mu.RLock()
	entry, exists := m.Data[key]
	if !exists {
		m.Mu.RUnlock()
		return nil, false
	}
	isExpired := m.now().After(entry.ExpiresAt)
	value := entry.Value
	m.Mu.RUnlock()

	if isExpired {
		m.Mu.Lock()
		if current, ok := m.Data[key]; ok && m.now().After(current.ExpiresAt) {
			delete(m.Data, key)
		}
		m.Mu.Unlock()
		return nil, false
	}

	return value, true
}

// Set adds or updates a value in the TTLMap
func (m *TTLMap) Set(key string, value interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	m.Data[key] = &TTLEntry{
		Value:     value,
		ExpiresAt: m.now().Add(m.TTL),
	}
}

// SetIfAbsent stores value only when no live entry exists for key. It
// returns the entry that is current after the call and whether the store
// happened. Expired entries count as absent.
func (m *TTLMap) SetIfAbsent(key string, value interface{}) (interface{}, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if entry, ok := m.Data[key]; ok && !m.now().After(entry.ExpiresAt) {
		return entry.Value, false
	}

	m.Data[key] = &TTLEntry{
		Value:     value,
		ExpiresAt: m.now().Add(m.TTL),
	}
	return value, true
}

// Delete removes a key from the TTLMap
func (m *TTLMap) Delete(key string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.Data, key)
}

// Clear removes all entries from the TTLMap
func (m *TTLMap) Clear() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Data = make(map[string]*TTLEntry)
}
