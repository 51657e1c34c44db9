// Package checksum derives content digests and HTTP validators.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag is a weak validator for a response computed from the cache at
// generation with the given inputs. Any mutation of the cache changes it.
func ETag(generation uint64, inputs ...string) string {
	buf := strconv.AppendUint(nil, generation, 10)
	for _, in := range inputs {
		buf = append(buf, 0)
		buf = append(buf, in...)
	}
	return `W/"` + Sum(buf)[:32] + `"`
}
