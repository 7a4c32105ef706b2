// Package checksum computes the fingerprints used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/starford/herald/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Metadata returns a fixed-width hex fingerprint of a parsed header.
// Keys are visited in sorted order so map iteration never leaks into the result.
func Metadata(m models.Metadata) string {
	var b strings.Builder
	for _, k := range m.Keys() {
		v := m[k]
		b.WriteString(k)
		b.WriteByte('\x00')
		b.WriteString(strconv.Itoa(int(v.Kind)))
		b.WriteByte('\x00')
		b.WriteString(v.Canonical())
		b.WriteByte('\n')
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}
