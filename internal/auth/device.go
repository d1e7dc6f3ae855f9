package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxUserAgentLen caps the stored client descriptor on trusted-device grants.
const MaxUserAgentLen = 200

// HashDeviceToken returns the SHA-256 hex digest of a raw device token.
// Only the digest is ever persisted.
func HashDeviceToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TruncateUserAgent trims a User-Agent header to the stored limit.
func TruncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLen {
		return ua[:MaxUserAgentLen]
	}
	return ua
}
