package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// DefaultNamespace is applied when a request carries no namespace.
const DefaultNamespace = "default"

// Message is a single turn of an LLM conversation. Order is significant
// when deriving keys.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// KeyInput is the logical identity of a cacheable request.
type KeyInput struct {
	Namespace string
	Provider  string
	Model     string
	Messages  []Message
	Params    map[string]any

	// Override skips hashing entirely; the caller's key is used verbatim,
	// still behind the namespace prefix.
	Override string
}

// DeriveKey computes the namespaced fingerprint for a request. The digest
// covers provider, model, the ordered message list, and decoding params with
// object keys normalized, so two requests that differ only in map ordering
// produce the same key. The namespace is a literal prefix, never hashed,
// which keeps prefix scans and glob invalidation cheap.
func DeriveKey(in KeyInput) string {
	ns := in.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if in.Override != "" {
		return ns + ":" + in.Override
	}

	var b strings.Builder
	b.WriteString(`{"provider":`)
	b.Write(mustJSON(in.Provider))
	b.WriteString(`,"model":`)
	b.Write(mustJSON(in.Model))
	b.WriteString(`,"messages":[`)
	for i, msg := range in.Messages {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(mustJSON(msg))
	}
	b.WriteString(`],"params":`)
	b.Write(canonicalize(in.Params))
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return ns + ":" + hex.EncodeToString(sum[:])
}

// canonicalize renders v as JSON with map keys sorted at every depth.
func canonicalize(v any) []byte {
	switch val := v.(type) {
	case nil:
		return []byte("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, mustJSON(k)...)
			out = append(out, ':')
			out = append(out, canonicalize(val[k])...)
		}
		return append(out, '}')
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, canonicalize(item)...)
		}
		return append(out, ']')
	default:
		return mustJSON(v)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Strings, numbers, bools and Message values cannot fail to marshal.
		return []byte("null")
	}
	return b
}
