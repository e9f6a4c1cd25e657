package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/agentcache/agentcache/internal/store"
)

// Metadata is the per-entry side record kept alongside a cached value.
type Metadata struct {
	CachedAt     int64  // epoch ms
	TTLMs        int64
	SourceURL    string
	ContentHash  string
	AccessCount  int64
	LastAccessed int64 // epoch ms
}

// metadataGrace keeps the metadata hash alive slightly past the value so a
// read racing the value's expiry still classifies instead of defaulting.
const metadataGrace = time.Hour

func entryKey(key string) string { return "entry:" + key }
func metaKey(key string) string  { return "meta:" + key }

func writeMetadata(ctx context.Context, st store.Store, key string, md Metadata, ttl time.Duration) error {
	fields := map[string]string{
		"cachedAt":    strconv.FormatInt(md.CachedAt, 10),
		"ttlMs":       strconv.FormatInt(md.TTLMs, 10),
		"accessCount": strconv.FormatInt(md.AccessCount, 10),
	}
	if md.SourceURL != "" {
		fields["sourceUrl"] = md.SourceURL
	}
	if md.ContentHash != "" {
		fields["contentHash"] = md.ContentHash
	}
	if err := st.HSet(ctx, metaKey(key), fields); err != nil {
		return err
	}
	return st.Expire(ctx, metaKey(key), ttl+metadataGrace)
}

// readMetadata returns nil with no error when the side record is absent.
func readMetadata(ctx context.Context, st store.Store, key string) (*Metadata, error) {
	fields, err := st.HGetAll(ctx, metaKey(key))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	md := &Metadata{
		SourceURL:   fields["sourceUrl"],
		ContentHash: fields["contentHash"],
	}
	md.CachedAt, _ = strconv.ParseInt(fields["cachedAt"], 10, 64)
	md.TTLMs, _ = strconv.ParseInt(fields["ttlMs"], 10, 64)
	md.AccessCount, _ = strconv.ParseInt(fields["accessCount"], 10, 64)
	md.LastAccessed, _ = strconv.ParseInt(fields["lastAccessed"], 10, 64)
	return md, nil
}

// touch bumps accessCount and lastAccessed. Best effort: runs off the read
// path with its own deadline, and a failure is simply dropped.
func (e *Engine) touch(key string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := e.store.HIncrBy(ctx, metaKey(key), "accessCount", 1); err != nil {
		return
	}
	_ = e.store.HSet(ctx, metaKey(key), map[string]string{
		"lastAccessed": strconv.FormatInt(at.UnixMilli(), 10),
	})
}
