package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeviceFingerprint derives a stable device id from the client's
// User-Agent header and remote address. It is a SHA-256 digest of the two
// values joined by a newline. Missing values are treated as empty strings.
//
// Clients behind the same address with identical user agents collapse to
// one device; that is an accepted precision limit.
func DeviceFingerprint(userAgent, remoteAddr string) string {
	h := sha256.New()
	h.Write([]byte(userAgent))
	h.Write([]byte{'\n'})
	h.Write([]byte(remoteAddr))
	return hex.EncodeToString(h.Sum(nil))
}
