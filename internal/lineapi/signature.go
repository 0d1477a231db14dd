package lineapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Line-Signature"

// Sign returns the base64 HMAC-SHA256 of body keyed by the channel secret.
// The server never signs; tests and local tooling use it to forge deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether signature matches body. An empty secret never validates.
func ValidateSignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	return webhook.ValidateSignature(secret, strings.TrimSpace(signature), body)
}
