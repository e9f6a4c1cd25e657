package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Recorder for tests and deployments without a
// database.
type Memory struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *Memory) Recent(_ context.Context, since time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.recs {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.recs[:0]
	var purged int64
	for _, rec := range m.recs {
		if rec.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	m.recs = kept
	return purged, nil
}

var _ Recorder = (*Memory)(nil)
