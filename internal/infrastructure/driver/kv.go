package driver

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrKeyNotFound returned by Get when the key does not exist
var ErrKeyNotFound = errors.New("key not found")

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	SetEX(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Incr increments the counter stored at key, expiration is applied when the counter is created
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
	Del(ctx context.Context, key string) error
	Ping() error
}

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryKV process local KeyValueDB, used when no kv server is configured
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ KeyValueDB = &MemoryKV{}

// NewMemoryKV create a MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]*memoryEntry), now: time.Now}
}

// lookup must be called with mu held
func (m *MemoryKV) lookup(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryKV) expiry(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return m.now().Add(expiration)
}

func (m *MemoryKV) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: value, expireAt: m.expiry(expiration)}
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(key); e != nil {
		return e.value, nil
	}
	return "", ErrKeyNotFound
}

func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key) != nil, nil
}

func (m *MemoryKV) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		e = &memoryEntry{value: "0", expireAt: m.expiry(expiration)}
		m.entries[key] = e
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *MemoryKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryKV) Ping() error {
	return nil
}
