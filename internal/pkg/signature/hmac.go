package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName carries the hex HMAC-SHA256 of the raw webhook body.
const HeaderName = "X-Signature"

// Verify validates a hex HMAC-SHA256 signature over payload.
// Any malformed input (empty secret, empty or undecodable signature) yields false.
func Verify(payload []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	given, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(signature), "sha256="))
	if err != nil {
		return false
	}

	return hmac.Equal(given, compute(payload, secret))
}

// Sign returns the hex HMAC-SHA256 of payload, or "" without a secret.
func Sign(payload []byte, secret string) string {
	if secret == "" {
		return ""
	}
	return hex.EncodeToString(compute(payload, secret))
}

func compute(payload []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return h.Sum(nil)
}
