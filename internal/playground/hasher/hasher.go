// Package hasher provides the placeholder hash used by the playground's PII
// middleware.
package hasher

import "encoding/base64"

// ServiceName is the name the hasher is registered under.
const ServiceName = "playground.hasher"

// Prefix marks a hashed value.
const Prefix = "[HASHED]_"

// Hasher hashes values. It only base64 encodes them, so it must never be used
// to protect real data.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hashed form of value, or "" for an empty value.
func (h *Hasher) Hash(value string) string {
	if value == "" {
		return ""
	}
	return Prefix + base64.StdEncoding.EncodeToString([]byte(value))
}
