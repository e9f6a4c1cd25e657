package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-node development.
// Expiry is lazy: dead entries are dropped when touched by a read, a write,
// or a scan.
type Memory struct {
	mu     sync.Mutex
	values map[string]memEntry
	hashes map[string]memHash
	now    func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasExpiry bool
}

type memHash struct {
	fields    map[string]string
	expiresAt time.Time
	hasExpiry bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memEntry),
		hashes: make(map[string]memHash),
		now:    time.Now,
	}
}

func (m *Memory) expired(at time.Time, has bool) bool {
	return has && m.now().After(at)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	if m.expired(e.expiresAt, e.hasExpiry) {
		delete(m.values, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
		e.hasExpiry = true
	}
	m.values[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range keys {
		if e, ok := m.values[key]; ok {
			if !m.expired(e.expiresAt, e.hasExpiry) {
				n++
			}
			delete(m.values, key)
		}
		if h, ok := m.hashes[key]; ok {
			if !m.expired(h.expiresAt, h.hasExpiry) {
				n++
			}
			delete(m.hashes, key)
		}
	}
	return n, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	if m.expired(h.expiresAt, h.hasExpiry) {
		delete(m.hashes, key)
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h.fields))
	for f, v := range h.fields {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.liveHash(key)
	for f, v := range fields {
		h.fields[f] = v
	}
	m.hashes[key] = h
	return nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.liveHash(key)
	cur, _ := strconv.ParseInt(h.fields[field], 10, 64)
	cur += n
	h.fields[field] = strconv.FormatInt(cur, 10)
	m.hashes[key] = h
	return cur, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok || m.expired(e.expiresAt, e.hasExpiry) {
		e = memEntry{}
	}
	cur, _ := strconv.ParseInt(string(e.value), 10, 64)
	cur++
	e.value = []byte(strconv.FormatInt(cur, 10))
	m.values[key] = e
	return cur, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.values[key]; ok {
		e.expiresAt = m.now().Add(ttl)
		e.hasExpiry = true
		m.values[key] = e
	}
	if h, ok := m.hashes[key]; ok {
		h.expiresAt = m.now().Add(ttl)
		h.hasExpiry = true
		m.hashes[key] = h
	}
	return nil
}

func (m *Memory) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, e := range m.values {
		if m.expired(e.expiresAt, e.hasExpiry) {
			delete(m.values, k)
			continue
		}
		if Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k, h := range m.hashes {
		if m.expired(h.expiresAt, h.hasExpiry) {
			delete(m.hashes, k)
			continue
		}
		if Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// SetNow overrides the clock used for expiry checks. Test hook.
func (m *Memory) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) liveHash(key string) memHash {
	h, ok := m.hashes[key]
	if !ok || m.expired(h.expiresAt, h.hasExpiry) {
		h = memHash{fields: make(map[string]string)}
	}
	return h
}

var _ Store = (*Memory)(nil)
