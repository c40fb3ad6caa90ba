// Package crypto derives client identifiers from local secrets.
package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"os"

	"golang.org/x/crypto/blake2b"
)

// fingerprintLen is the number of hash bytes kept in a fingerprint.
const fingerprintLen = 6

// HardwareID derives a stable positive hardware id from seed. An empty
// seed falls back to the host name.
func HardwareID(seed string) int32 {
	if seed == "" {
		seed, _ = os.Hostname()
	}
	sum := blake2b.Sum256([]byte("hw_id:" + seed))
	id := int32(binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id
}

// Fingerprint returns a short digest of secret that is safe to log.
// Equal secrets give equal fingerprints.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:fingerprintLen])
}
