package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint hashes a session id into a short string that is safe to log.
// The raw id is a bearer handle and must not end up in log files.
func Fingerprint(sessionID string) string {
	hasher := sha256.New()
	hasher.Write([]byte(sessionID))
	hashedBytes := hasher.Sum(nil)
	return hex.EncodeToString(hashedBytes)[:12]
}
