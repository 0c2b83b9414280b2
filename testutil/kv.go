package testutil

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/onnwee/chat-archiver/cache"
)

type kvEntry struct {
	value     string
	expiresAt time.Time
}

// MemKV is an in-memory cache.KV for tests. Entries honor their TTL against
// the wall clock; TTLOf exposes the remaining lifetime for assertions.
type MemKV struct {
	mu      sync.Mutex
	entries map[string]kvEntry
}

var _ cache.KV = (*MemKV)(nil)

func NewMemKV() *MemKV {
	return &MemKV{entries: make(map[string]kvEntry)}
}

func (m *MemKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		delete(m.entries, key)
		return "", cache.ErrMiss
	}
	return e.value, nil
}

func (m *MemKV) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := kvEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemKV) Values(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var values []string
	now := time.Now()
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			values = append(values, e.value)
		}
	}
	return values, nil
}

// TTLOf returns the remaining lifetime of key, or false when absent or
// persistent.
func (m *MemKV) TTLOf(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expiresAt.IsZero() {
		return 0, false
	}
	return time.Until(e.expiresAt), true
}

// Len reports how many live entries the fake holds.
func (m *MemKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for _, e := range m.entries {
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
