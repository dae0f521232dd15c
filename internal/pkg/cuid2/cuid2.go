// Package cuid2 generates short prefixed identifiers such as generation log ids.
package cuid2

import (
	"crypto/rand"
	"strings"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Lengths of the id parts
const (
	TimestampLength = 6
	RandomLength    = 18
)

// EncodeTimestamp encodes unix seconds as a fixed-width base62 string that
// sorts lexicographically in time order
func EncodeTimestamp(t time.Time) string {
	n := t.Unix()
	if n < 0 {
		n = 0
	}
	out := make([]byte, TimestampLength)
	for i := TimestampLength - 1; i >= 0; i-- {
		out[i] = alphabet[n%62]
		n /= 62
	}
	return string(out)
}

// randomString returns length base62 characters from crypto/rand using
// 6-bit rejection sampling
func randomString(length int) string {
	var b strings.Builder
	b.Grow(length)
	buf := make([]byte, length+8)

	for b.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			panic("cuid2: crypto/rand failed: " + err.Error())
		}
		for _, c := range buf {
			if v := c & 0x3f; v < 62 {
				b.WriteByte(alphabet[v])
				if b.Len() == length {
					break
				}
			}
		}
	}
	return b.String()
}

// New returns prefix_<timestamp><random>; ids from later seconds sort after earlier ones
func New(prefix string) string {
	return NewAt(prefix, time.Now())
}

// NewAt is New with an explicit timestamp
func NewAt(prefix string, t time.Time) string {
	return prefix + "_" + EncodeTimestamp(t) + randomString(RandomLength)
}

// NewRandom returns prefix_<random> without a time component
func NewRandom(prefix string, length int) string {
	if length <= 0 {
		length = TimestampLength + RandomLength
	}
	return prefix + "_" + randomString(length)
}
