package pay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func digest(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	return hex.EncodeToString(digest(body, secret))
}

// VerifyHMAC reports whether signature is the hex HMAC-SHA256 of body under
// secret. An empty secret never verifies.
func VerifyHMAC(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(digest(body, secret), got)
}
