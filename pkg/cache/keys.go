package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MakeKey derives the canonical cache key for a query plus an optional
// structured context. The key is the hex-encoded SHA-256 digest of the query
// concatenated with a canonical serialization of the context.
//
// encoding/json marshals map keys in sorted order, so two contexts with the
// same fields produce the same key regardless of construction order. A context
// holding values JSON cannot serialize falls back to fmt's map formatting,
// which also sorts keys, so distinct contexts still get distinct keys.
func MakeKey(query string, context map[string]interface{}) string {
	content := query
	if len(context) > 0 {
		if b, err := json.Marshal(context); err == nil {
			content += string(b)
		} else {
			content += fmt.Sprintf("%v", context)
		}
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// QueryHash identifies a query text inside the semantic index. It is a
// truncated SHA-256 digest of the raw query, independent of any context.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:32]
}
