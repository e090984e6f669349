package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint hashes the normalized request so a key reused with different
// parameters can be detected as a conflict.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.TrimRight(path, "/")))
	h.Write([]byte("|"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
