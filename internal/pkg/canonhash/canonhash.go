// Package canonhash computes order-independent digests of JSON request
// bodies. Two bodies that differ only in object key order hash identically,
// so clients retrying an idempotent request through a different serializer
// still match their original record.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Hash returns the hex sha256 of the canonical form of body. Non-JSON bodies
// are hashed as raw bytes.
func Hash(body []byte) string {
	if len(body) == 0 {
		return hashBytes(nil)
	}
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return hashBytes(body)
	}
	var sb strings.Builder
	writeCanonical(&sb, data)
	return hashBytes([]byte(sb.String()))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// writeCanonical serializes with object keys sorted recursively. Scalars are
// re-marshaled through encoding/json so string escaping stays consistent.
func writeCanonical(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	case float64:
		// json.Number formatting differences (1 vs 1.0) are preserved as
		// decoded; %v on float64 renders both as "1".
		fmt.Fprintf(sb, "%v", val)
	default:
		out, _ := json.Marshal(val)
		sb.Write(out)
	}
}
