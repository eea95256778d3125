package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header carries the hex HMAC-SHA256 of the raw request body.
const Header = "X-Signature"

// Verify validates a hex HMAC-SHA256 signature of payload.
// An optional "sha256=" prefix is accepted.
func Verify(payload []byte, signature string, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")

	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hmac.Equal(given, h.Sum(nil))
}

// Sign creates the hex HMAC-SHA256 signature of payload.
func Sign(payload []byte, secret string) string {
	if secret == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
