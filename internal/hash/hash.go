// Package hash computes canonical content hashes for change detection.
//
// Two documents hash identically exactly when their hashable content is
// identical: object keys are sorted before serialization, timestamps are
// rendered as ISO-8601 UTC strings at second precision, and a deny-list
// of local-only fields (storage paths, sync bookkeeping) is stripped so
// purely local changes never register as content changes. Arrays are
// hashed positionally, so reordering array elements changes the hash.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// defaultDenyList names the local-only fields excluded from hashing.
// These may appear at any nesting depth.
var defaultDenyList = []string{
	"localPath",
	"thumbnailLocalPath",
	"filePath",
	"syncedAt",
	"lastSyncedHash",
	"pendingSync",
}

// Hasher computes canonical content hashes. The zero value is not usable;
// construct with New. Hasher carries its deny-list explicitly so tests and
// future callers can run independent instances.
type Hasher struct {
	deny map[string]struct{}
}

// New creates a Hasher with the default local-only field deny-list.
func New() *Hasher {
	return NewWithDenyList(defaultDenyList)
}

// NewWithDenyList creates a Hasher that strips the given field names
// before hashing.
func NewWithDenyList(fields []string) *Hasher {
	deny := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		deny[f] = struct{}{}
	}
	return &Hasher{deny: deny}
}

// Hash returns the lowercase-hex SHA-256 of the canonical serialization
// of fields. The result is stable across processes and machines.
func (h *Hasher) Hash(fields map[string]any) (string, error) {
	var sb strings.Builder
	if err := h.writeValue(&sb, fields); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

// writeValue serializes v canonically into sb.
func (h *Hasher) writeValue(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		return writeJSONScalar(sb, val)
	case time.Time:
		return writeJSONScalar(sb, canonicalTime(val))
	case map[string]any:
		return h.writeObject(sb, val)
	case []any:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := h.writeValue(sb, elem); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return writeJSONScalar(sb, val)
	default:
		return fmt.Errorf("unhashable value of type %T", v)
	}
	return nil
}

// writeObject serializes a map with sorted keys, skipping denied fields.
func (h *Hasher) writeObject(sb *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, denied := h.deny[k]; denied {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := writeJSONScalar(sb, k); err != nil {
			return err
		}
		sb.WriteByte(':')
		if err := h.writeValue(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

// writeJSONScalar appends the JSON encoding of a scalar value.
func writeJSONScalar(sb *strings.Builder, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sb.Write(data)
	return nil
}

// canonicalTime renders a timestamp as ISO-8601 UTC at second precision.
func canonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
