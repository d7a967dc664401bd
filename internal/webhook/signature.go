// Package webhook exposes the inbound HTTP surface: the GitHub webhook
// receiver that feeds the triage pipeline and a liveness endpoint.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body in constant time. A missing or malformed signature fails
// verification; it never panics.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
