// Package checksum computes the content digests used as optimistic-concurrency
// tokens for flow documents.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns Sum(data) as a strong HTTP entity tag.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Normalize strips the quoting and weak prefix an If-Match header may carry.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}

// Matches reports whether ifMatch allows writing over data. An empty value
// or "*" always matches.
func Matches(ifMatch string, data []byte) bool {
	tag := Normalize(ifMatch)
	if tag == "" || tag == "*" {
		return true
	}
	return tag == Sum(data)
}
