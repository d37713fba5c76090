package ir

import (
	"crypto/sha256"
)

// Domain prefixes for content-addressed identity. The version suffix lets
// a future change of hash algorithm or canonical encoding coexist with
// fingerprints computed under an older scheme without colliding.
const (
	DomainQuery     = "latch/query/v1"
	DomainFragment  = "latch/fragment/v1"
	DomainWhitelist = "latch/whitelist/v1"
)

// HashWithDomain computes a raw SHA-256 digest with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator prevents
// a crafted data value from shifting the domain/data boundary.
func HashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
