// Package runrecorder wraps every stage execution in an auditable
// WorkflowRun record (§4.2): startRun/completeRun/failRun plus the
// canonical-JSON input hash that is the only deduplication primitive in
// the core.
package runrecorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize renders v as JSON with object keys sorted lexicographically,
// array order preserved, and fields holding an unset (nil) value dropped.
// Two structurally-equal values canonicalize to byte-identical output
// regardless of map iteration or field order, which is what makes the
// resulting hash stable (§8, "Round trip: canonicalization").
func Canonicalize(v interface{}) (string, error) {
	normalized := normalize(v)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return string(b), nil
}

// normalize walks an arbitrary JSON-shaped value (maps, slices, primitives)
// and returns an equivalent value built from ordered key-value pairs so
// that json.Marshal's natural map-key sort gives us a stable key order,
// and strips keys whose value is nil.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		keys := make([]string, 0, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// HashInputs computes the SHA-256 hash of the canonical JSON form of
// inputs. This is the inputHash stored on every WorkflowRun and the sole
// basis for findRunsByInputHash.
func HashInputs(inputs map[string]interface{}) (string, error) {
	canon, err := Canonicalize(inputs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:]), nil
}
