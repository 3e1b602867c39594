package upstream

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// checksumSeed starts the timestamp obfuscation chain.
const checksumSeed = 165

// GenerateChecksum derives an x-cursor-checksum value for token. The prefix
// is a 6-byte timestamp (milliseconds divided by 1e6) obfuscated by a
// rolling XOR and encoded as base64url; the suffix is a machine id and a
// mac machine id, both SHA-256 digests derived from the token so the value
// is stable per token.
func GenerateChecksum(token string, now time.Time) string {
	ts := uint64(now.UnixMilli() / 1e6)

	b := []byte{
		byte(ts >> 40),
		byte(ts >> 32),
		byte(ts >> 24),
		byte(ts >> 16),
		byte(ts >> 8),
		byte(ts),
	}

	prev := byte(checksumSeed)
	for i := range b {
		b[i] = (b[i] ^ prev) + byte(i)
		prev = b[i]
	}

	machineID := sha256.Sum256([]byte(token + "machineId"))
	macMachineID := sha256.Sum256([]byte(token + "macMachineId"))

	return base64.URLEncoding.EncodeToString(b) +
		hex.EncodeToString(machineID[:]) + "/" + hex.EncodeToString(macMachineID[:])
}
